package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/detsim/pkg/scenario/parser"
	"github.com/jihwankim/detsim/pkg/scenario/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Args:  cobra.NoArgs,
	Short: "Validate a scenario file without running it",
	RunE:  validateScenario,
}

func init() {
	validateCmd.Flags().String("scenario", "", "path to scenario YAML file")
}

func validateScenario(cmd *cobra.Command, args []string) error {
	scenarioPath, _ := cmd.Flags().GetString("scenario")
	if scenarioPath == "" {
		return fmt.Errorf("--scenario flag is required")
	}

	p := parser.New(nil)
	s, err := p.ParseFile(scenarioPath)
	if err != nil {
		return fmt.Errorf("failed to parse scenario: %w", err)
	}

	v := validator.New()
	validationErr := v.Validate(s)
	fmt.Print(v.GetReport())
	if validationErr != nil {
		return validationErr
	}

	fmt.Printf("Scenario %q is valid\n", s.Metadata.Name)
	return nil
}
