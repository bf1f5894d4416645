package reporting

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Storage persists run reports, one JSON document per (scenario, seed).
// Runs are deterministic, so saving the same seed again overwrites its
// report instead of accumulating timestamped copies. Retention prunes
// completed and timed-out runs beyond keepLastN; invariant violations
// are replay evidence and are never pruned.
type Storage struct {
	outputDir string
	keepLastN int
	logger    *Logger
}

// statusRank orders reports most-interesting-first: a violated invariant
// outranks a timeout, which outranks a clean completion.
var statusRank = map[RunStatus]int{
	StatusInvariantViolated: 0,
	StatusTimedOut:          1,
	StatusCompleted:         2,
}

// NewStorage creates a report store rooted at outputDir.
func NewStorage(outputDir string, keepLastN int, logger *Logger) (*Storage, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory %s: %w", outputDir, err)
	}
	return &Storage{
		outputDir: outputDir,
		keepLastN: keepLastN,
		logger:    logger,
	}, nil
}

// reportFilename keys a report by scenario and seed. Seeds are
// zero-padded so lexicographic and numeric order agree.
func reportFilename(scenario string, seed uint64) string {
	return fmt.Sprintf("%s-seed%020d.json", scenario, seed)
}

// SaveReport writes the report for its (scenario, seed) key, replacing
// any earlier run of the same seed, then applies retention.
func (s *Storage) SaveReport(report *RunReport) (string, error) {
	path := filepath.Join(s.outputDir, reportFilename(report.ScenarioName, report.Seed))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report for seed %d: %w", report.Seed, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report for seed %d: %w", report.Seed, err)
	}

	s.logger.Info().
		Str("path", path).
		Uint64("seed", report.Seed).
		Str("status", string(report.Status)).
		Msg("run report saved")

	if err := s.prune(); err != nil {
		s.logger.Warn().Err(err).Msg("report pruning failed")
	}
	return path, nil
}

// LoadReport reads one report document.
func (s *Storage) LoadReport(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var report RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", filepath.Base(path), err)
	}
	return &report, nil
}

// FindReportBySeed loads the report of one seeded run directly by its
// key, without scanning the directory.
func (s *Storage) FindReportBySeed(scenario string, seed uint64) (*RunReport, error) {
	path := filepath.Join(s.outputDir, reportFilename(scenario, seed))
	report, err := s.LoadReport(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no report for scenario %q seed %d", scenario, seed)
	}
	return report, err
}

// ListReports returns all stored runs, violations first, then timeouts,
// then completions; ties break newest-first, then by seed.
func (s *Storage) ListReports() ([]ReportSummary, error) {
	dirents, err := os.ReadDir(s.outputDir)
	if err != nil {
		return nil, fmt.Errorf("scan report directory: %w", err)
	}

	var summaries []ReportSummary
	for _, ent := range dirents {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.outputDir, ent.Name())
		report, err := s.LoadReport(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable report")
			continue
		}
		summaries = append(summaries, ReportSummary{
			RunID:        report.RunID,
			ScenarioName: report.ScenarioName,
			Seed:         report.Seed,
			StartTime:    report.StartTime,
			Status:       report.Status,
			Completed:    report.Completed,
			Filepath:     path,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if statusRank[summaries[i].Status] != statusRank[summaries[j].Status] {
			return statusRank[summaries[i].Status] < statusRank[summaries[j].Status]
		}
		if !summaries[i].StartTime.Equal(summaries[j].StartTime) {
			return summaries[i].StartTime.After(summaries[j].StartTime)
		}
		return summaries[i].Seed < summaries[j].Seed
	})
	return summaries, nil
}

// ViolationSeeds returns the seeds of every stored invariant violation
// for the scenario, ascending. These are the seeds worth replaying.
func (s *Storage) ViolationSeeds(scenario string) ([]uint64, error) {
	summaries, err := s.ListReports()
	if err != nil {
		return nil, err
	}
	var seeds []uint64
	for _, sum := range summaries {
		if sum.Status == StatusInvariantViolated && sum.ScenarioName == scenario {
			seeds = append(seeds, sum.Seed)
		}
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })
	return seeds, nil
}

// Dir returns the report directory.
func (s *Storage) Dir() string {
	return s.outputDir
}

// prune deletes the oldest completed and timed-out reports beyond
// keepLastN. Violation reports are never deleted.
func (s *Storage) prune() error {
	if s.keepLastN <= 0 {
		return nil
	}
	summaries, err := s.ListReports()
	if err != nil {
		return err
	}

	var expendable []ReportSummary
	for _, sum := range summaries {
		if sum.Status != StatusInvariantViolated {
			expendable = append(expendable, sum)
		}
	}
	sort.Slice(expendable, func(i, j int) bool {
		return expendable[i].StartTime.After(expendable[j].StartTime)
	})
	if len(expendable) <= s.keepLastN {
		return nil
	}

	for _, sum := range expendable[s.keepLastN:] {
		if err := os.Remove(sum.Filepath); err != nil {
			s.logger.Warn().Err(err).Str("path", sum.Filepath).Msg("could not delete old report")
			continue
		}
		s.logger.Debug().Str("path", sum.Filepath).Msg("deleted old report")
	}
	return nil
}
