// Package parser parses simulation scenario YAML files. Decoding is
// strict - a misspelled fault parameter would otherwise silently fall
// back to its default and quietly change what the run simulates - and
// ${VAR} references must resolve, from caller variables or the
// environment, or parsing fails.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jihwankim/detsim/pkg/scenario"
)

// Parser parses scenario YAML files
type Parser struct {
	// Variables take precedence over the environment during expansion.
	Variables map[string]string
}

// New creates a new parser with optional variables
func New(variables map[string]string) *Parser {
	if variables == nil {
		variables = make(map[string]string)
	}
	return &Parser{
		Variables: variables,
	}
}

// ParseFile parses a scenario from a YAML file
func (p *Parser) ParseFile(path string) (*scenario.Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	s, err := p.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// Parse parses a scenario from YAML bytes
func (p *Parser) Parse(raw []byte) (*scenario.Scenario, error) {
	expanded, err := p.expandVariables(string(raw))
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	var s scenario.Scenario
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("scenario document is empty")
		}
		return nil, fmt.Errorf("decode scenario: %w", err)
	}

	if err := p.validateRequiredFields(&s); err != nil {
		return nil, err
	}

	return &s, nil
}

// expandVariables resolves $VAR and ${VAR} references from the parser
// variables, then the environment. Unresolved references are an error:
// a scenario with a missing seed or fault parameter must not run with a
// silently blanked value.
func (p *Parser) expandVariables(content string) (string, error) {
	missing := make(map[string]bool)

	expanded := os.Expand(content, func(name string) string {
		if val, ok := p.Variables[name]; ok {
			return val
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing[name] = true
		return ""
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", fmt.Errorf("unresolved scenario variables: %s", strings.Join(names, ", "))
	}
	return expanded, nil
}

// validateRequiredFields checks the minimal structural requirements; the
// validator package does the semantic checks.
func (p *Parser) validateRequiredFields(s *scenario.Scenario) error {
	if s.APIVersion == "" {
		return fmt.Errorf("apiVersion is required")
	}
	if s.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if s.Metadata.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	return nil
}

// ApplyOverrides applies --set style key=value overrides to a parsed
// scenario. Recognized keys: seed, tick_interval, max_sim_time,
// check_invariants_frequency, workload.requests, workload.retries,
// workload.servers, workload.clients.
func ApplyOverrides(s *scenario.Scenario, overrides map[string]string) error {
	for key, value := range overrides {
		switch key {
		case "seed":
			seed, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seed override %q: %w", value, err)
			}
			s.Spec.Seed = seed
		case "tick_interval":
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid tick_interval override %q: %w", value, err)
			}
			s.Spec.TickInterval = scenario.Duration(d)
		case "max_sim_time":
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid max_sim_time override %q: %w", value, err)
			}
			s.Spec.MaxSimTime = scenario.Duration(d)
		case "check_invariants_frequency":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid check_invariants_frequency override %q: %w", value, err)
			}
			s.Spec.CheckInvariantsFrequency = n
		case "workload.requests":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid workload.requests override %q: %w", value, err)
			}
			s.Spec.Workload.Requests = n
		case "workload.retries":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid workload.retries override %q: %w", value, err)
			}
			s.Spec.Workload.Retries = b
		case "workload.servers":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid workload.servers override %q: %w", value, err)
			}
			s.Spec.Workload.Servers = n
		case "workload.clients":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid workload.clients override %q: %w", value, err)
			}
			s.Spec.Workload.Clients = n
		default:
			return fmt.Errorf("unknown override key %q", key)
		}
	}
	return nil
}
