package controller

import (
	"strings"
	"time"

	"github.com/n5hz/wavetuner/internal/ampfleet"
	"github.com/n5hz/wavetuner/internal/generator"
	"github.com/n5hz/wavetuner/internal/logging"
)

// handleAmpEvent is the single entry point for every line arriving from the
// fleet, in either kind. An error line goes straight to handleAmpFault and
// is not scanned for a reading; every other line has reading accumulation
// (spec §4.3.2) applied before any state-specific reaction.
func (c *Controller) handleAmpEvent(ev ampfleet.Event) {
	if ev.Kind == ampfleet.ErrorLineEvent {
		c.handleAmpFault()
		return
	}

	if v, ok := firstNumber(ev.Text); ok {
		if buf, exists := c.buffers[ev.Device]; exists {
			buf.Append(v)
			c.reportReading(ev.Device, v)
		}
	}

	if strings.Contains(ev.Text, "ALC Range") {
		switch c.state {
		case QueryFwdPwrALC, WaitForAlcStable:
			c.alcRangeHits++
		}
	}

	if c.state == CheckAmpMode {
		c.handleCheckAmpModeLine(ev.Text)
	}
}

// handleCheckAmpModeLine drives the CheckAmpMode state's four-way branch
// on the amplifier's MODE? reply.
func (c *Controller) handleCheckAmpModeLine(text string) {
	targets := c.targetDevices()
	switch {
	case strings.Contains(text, "STANDBY, VVA"):
		c.enter(InitialModeVVA)
	case strings.Contains(text, "STANDBY, ALC"):
		c.fleet.Broadcast(targets, cmdModeVVA)
		c.scheduleState(500*time.Millisecond, CheckAmpMode)
	case strings.Contains(text, "ONLINE, VVA"):
		c.fleet.Broadcast(targets, cmdStandby)
		c.scheduleState(500*time.Millisecond, CheckAmpMode)
	case strings.Contains(text, "ONLINE, ALC"):
		c.fleet.Broadcast(targets, cmdStandby)
		c.scheduleState(500*time.Millisecond, CheckAmpMode)
	}
}

// handleAmpFault reacts to an ERROR:-tagged line from any device. Per
// spec §7 this is handled locally rather than surfaced to the caller,
// unless the configured fault ceiling (an Open Question this codebase
// resolves, see DESIGN.md) has been exceeded.
func (c *Controller) handleAmpFault() {
	switch c.state {
	case Idle, Finished, Failed, RetryAfterFault:
		return
	}
	c.faultCount++
	if c.faultCount > c.maxFaultRetries() {
		c.fail("too many amplifier faults")
		return
	}
	c.scheduleState(1000*time.Millisecond, RetryAfterFault)
}

// handleGenEvent reacts to the generator subprocess's events. Only the
// readiness token drives the state machine; the exit notice and runaway
// ThresholdExceeded events are only logged (on a runaway the Process has
// already stopped the child itself).
func (c *Controller) handleGenEvent(ev generator.Event) {
	switch ev.Kind {
	case generator.StdoutChunk:
		if !strings.Contains(ev.Chunk, "Press Enter to quit") {
			return
		}
		switch c.state {
		case WaitForPythonPrompt:
			c.scheduleState(500*time.Millisecond, SetModeVVAAll)
		case WaitForPythonPromptALC:
			c.scheduleState(1000*time.Millisecond, QueryFwdPwrALC)
		}
	case generator.Exited:
		c.diag.Debug("generator exited",
			logging.Field{Key: "pid", Value: ev.PID},
			logging.Field{Key: "code", Value: ev.Code},
		)
	case generator.ThresholdExceeded:
		c.diag.Warn("generator runaway marker threshold exceeded",
			logging.Field{Key: "marker", Value: string(ev.Marker)},
			logging.Field{Key: "window_ms", Value: ev.Window.Milliseconds()},
		)
	}
}
