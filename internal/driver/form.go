package driver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/n5hz/wavetuner/internal/controller"
)

// PromptForm runs the interactive operator prompts spec.md §6 lists —
// directory, category, amp model, target window, critical bound — and
// returns a validated Options. Watch is left false; the caller sets it
// from the --watch flag.
func PromptForm() (Options, error) {
	var (
		dir       string
		category  int
		ampModel  string
		critical  string
		targetMin string
		targetMax string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Waveform directory").
				Value(&dir).
				Validate(requireNonEmpty),
			huh.NewSelect[int]().
				Title("Category").
				Options(
					huh.NewOption("1 - L1 only", 1),
					huh.NewOption("2 - L2 only", 2),
					huh.NewOption("3 - L1+L2 (dual channel)", 3),
					huh.NewOption("4 - All", 4),
				).
				Value(&category),
			huh.NewSelect[string]().
				Title("Amplifier model").
				Options(
					huh.NewOption("x300", string(controller.ModelX300)),
					huh.NewOption("N321", string(controller.ModelN321)),
				).
				Value(&ampModel),
			huh.NewInput().
				Title("Target minimum power (dBm)").
				Value(&targetMin).
				Validate(requireFloat),
			huh.NewInput().
				Title("Target maximum power (dBm)").
				Value(&targetMax).
				Validate(requireFloat),
			huh.NewSelect[string]().
				Title("Critical bound").
				Options(
					huh.NewOption("HIGH", string(controller.CriticalHigh)),
					huh.NewOption("LOW", string(controller.CriticalLow)),
				).
				Value(&critical),
		),
	)

	if err := form.Run(); err != nil {
		return Options{}, fmt.Errorf("driver: prompt: %w", err)
	}

	min, _ := strconv.ParseFloat(targetMin, 64)
	max, _ := strconv.ParseFloat(targetMax, 64)
	cat, err := ParseCategory(category)
	if err != nil {
		return Options{}, err
	}

	opts := Options{
		Dir:       dir,
		Category:  cat,
		AmpModel:  controller.AmpModel(ampModel),
		TargetMin: min,
		TargetMax: max,
		Critical:  controller.Critical(critical),
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func requireNonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func requireFloat(s string) error {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("must be a number")
	}
	return nil
}
