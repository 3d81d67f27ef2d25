// Package driver turns a directory of waveform scripts into a sequence
// of TuningController runs: it gathers the five operator inputs spec.md
// §6 calls for, selects the matching files, and runs each one to
// completion with a pause between files.
package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/n5hz/wavetuner/internal/config"
	"github.com/n5hz/wavetuner/internal/controller"
	"github.com/n5hz/wavetuner/internal/logging"
)

// Category selects which basename-prefix class of script the driver acts on.
type Category int

const (
	CategoryL1Only Category = 1
	CategoryL2Only Category = 2
	CategoryDual   Category = 3
	CategoryAll    Category = 4
)

// ParseCategory converts the raw 1-4 prompt answer.
func ParseCategory(n int) (Category, error) {
	switch Category(n) {
	case CategoryL1Only, CategoryL2Only, CategoryDual, CategoryAll:
		return Category(n), nil
	default:
		return 0, fmt.Errorf("driver: category must be 1-4, got %d", n)
	}
}

// Options holds the operator inputs spec.md §6 names, gathered either
// from the interactive form or from flags/env in --batch mode.
type Options struct {
	Dir       string
	Category  Category
	AmpModel  controller.AmpModel
	TargetMin float64
	TargetMax float64
	Critical  controller.Critical
	Watch     bool
}

// Validate reports the same fatal-input errors the interactive form would
// otherwise have prevented, for the --batch path.
func (o Options) Validate() error {
	if strings.TrimSpace(o.Dir) == "" {
		return fmt.Errorf("driver: directory is required")
	}
	info, err := os.Stat(o.Dir)
	if err != nil {
		return fmt.Errorf("driver: directory %s: %w", o.Dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("driver: %s is not a directory", o.Dir)
	}
	if _, err := ParseCategory(int(o.Category)); err != nil {
		return err
	}
	if o.AmpModel != controller.ModelX300 && o.AmpModel != controller.ModelN321 {
		return fmt.Errorf("driver: amp model must be x300 or N321, got %q", o.AmpModel)
	}
	if o.Critical != controller.CriticalHigh && o.Critical != controller.CriticalLow {
		return fmt.Errorf("driver: critical must be HIGH or LOW, got %q", o.Critical)
	}
	if o.TargetMax < o.TargetMin {
		return fmt.Errorf("driver: target_max (%v) is below target_min (%v)", o.TargetMax, o.TargetMin)
	}
	return nil
}

// ClassifyName reports whether base (a script's basename) belongs to
// category, using the same prefix rules as controller.NewJob.
func ClassifyName(base string, category Category) bool {
	switch category {
	case CategoryL1Only:
		return strings.HasPrefix(base, "L1_") && !strings.HasPrefix(base, "L1_L2_")
	case CategoryL2Only:
		return strings.HasPrefix(base, "L2_")
	case CategoryDual:
		return strings.HasPrefix(base, "L1_L2_")
	case CategoryAll:
		return strings.HasPrefix(base, "L1_") || strings.HasPrefix(base, "L2_")
	default:
		return false
	}
}

// SelectFiles lists dir's waveform scripts matching category, honouring
// cfg's filename exclusions, sorted for deterministic batch ordering.
func SelectFiles(dir string, category Category, cfg config.Config) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("driver: read %s: %w", dir, err)
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".py" {
			continue
		}
		if cfg.Excluded(name) {
			continue
		}
		if !ClassifyName(name, category) {
			continue
		}
		matches = append(matches, filepath.Join(dir, name))
	}
	sort.Strings(matches)
	return matches, nil
}

// BetweenFilesPause is the fixed delay spec.md §7 requires between files,
// applied regardless of whether the prior file finished or failed. A var,
// not a const, so tests can shrink it.
var BetweenFilesPause = 3 * time.Second

// Runner runs a single job to completion. Production code supplies a
// *controller.Controller; tests supply a fake.
type Runner interface {
	Start(job controller.Job) controller.Outcome
}

// RunBatch runs every script selected by opts once, pausing
// BetweenFilesPause between files regardless of outcome. Per-file
// failures are logged and do not abort the batch; sleep is skipped after
// the last file.
func RunBatch(opts Options, cfg config.Config, newRunner func(scriptPath string) Runner, diag logging.Logger) error {
	if diag == nil {
		diag = logging.Default()
	}
	files, err := SelectFiles(opts.Dir, opts.Category, cfg)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		diag.Warn("driver: no matching scripts found", logging.Field{Key: "dir", Value: opts.Dir})
		return nil
	}
	for i, path := range files {
		runOne(path, opts, newRunner, diag)
		if i < len(files)-1 {
			time.Sleep(BetweenFilesPause)
		}
	}
	return nil
}

func runOne(path string, opts Options, newRunner func(scriptPath string) Runner, diag logging.Logger) {
	job := controller.NewJob(path, opts.AmpModel, opts.TargetMin, opts.TargetMax, opts.Critical)
	diag.Info("driver: starting tuning run", logging.Field{Key: "script", Value: job.Name()})
	outcome := newRunner(path).Start(job)
	switch outcome.Kind {
	case controller.OutcomeFinished:
		diag.Info("driver: tuning run finished",
			logging.Field{Key: "script", Value: job.Name()},
			logging.Field{Key: "final_min", Value: outcome.FinalMin},
			logging.Field{Key: "final_max", Value: outcome.FinalMax},
		)
	case controller.OutcomeFailed:
		diag.Warn("driver: tuning run failed",
			logging.Field{Key: "script", Value: job.Name()},
			logging.Field{Key: "reason", Value: outcome.Reason},
		)
	}
}
