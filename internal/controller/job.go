package controller

import (
	"path/filepath"
	"strings"
)

// AmpModel selects the initial gain a job starts tuning from.
type AmpModel string

const (
	ModelX300 AmpModel = "x300"
	ModelN321 AmpModel = "N321"
)

// InitialGain returns the starting software gain for model: 0 for x300, 12
// for N321. An unrecognised model also starts at 0.
func InitialGain(model AmpModel) int {
	if model == ModelN321 {
		return 12
	}
	return 0
}

// Critical names the target bound that must be met tightly.
type Critical string

const (
	CriticalHigh Critical = "HIGH"
	CriticalLow  Critical = "LOW"
)

// Job is a single waveform tuning request, as produced by the driver.
type Job struct {
	ScriptPath string
	AmpModel   AmpModel
	TargetMin  float64
	TargetMax  float64
	Critical   Critical

	// Channel and IsDual are derived from ScriptPath's basename.
	Channel int
	IsDual  bool
}

// NewJob derives Channel and IsDual from scriptPath's basename and returns
// a ready-to-run Job.
func NewJob(scriptPath string, model AmpModel, targetMin, targetMax float64, critical Critical) Job {
	base := filepath.Base(scriptPath)
	channel := 0
	isDual := false
	switch {
	case strings.HasPrefix(base, "L1_L2_"):
		isDual = true
	case strings.HasPrefix(base, "L2_"):
		channel = 1
	case strings.HasPrefix(base, "L1_"):
		channel = 0
	}
	return Job{
		ScriptPath: scriptPath,
		AmpModel:   model,
		TargetMin:  targetMin,
		TargetMax:  targetMax,
		Critical:   critical,
		Channel:    channel,
		IsDual:     isDual,
	}
}

// Name returns the job's script basename, used in log output.
func (j Job) Name() string {
	return filepath.Base(j.ScriptPath)
}

// ChannelLabel renders j.Channel the way LogResults' message does.
func (j Job) ChannelLabel() string {
	if j.Channel == 1 {
		return "L2"
	}
	return "L1"
}
