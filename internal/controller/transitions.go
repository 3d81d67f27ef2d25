package controller

import (
	"fmt"
	"time"

	"github.com/n5hz/wavetuner/internal/logging"
)

// enter runs next's entry action and records the transition. Every
// delay literal below reproduces spec §4.3.1 exactly; these are the
// amplifier's physical settling time and the generator's boot time, and
// per §5 must not be shortened.
func (c *Controller) enter(next State) {
	c.state = next
	c.reportState()

	switch next {
	case Idle:
		// no action; Start schedules the first real transition.

	case CheckAmpMode:
		c.fleet.Broadcast(c.targetDevices(), cmdModeQuery)
		// Resolved by handleCheckAmpModeLine on the next matching line.

	case InitialModeVVA:
		c.fleet.Broadcast(c.targetDevices(), cmdModeVVA)
		c.scheduleState(1200*time.Millisecond, InitialVvaLevel)

	case InitialVvaLevel:
		c.fleet.Broadcast(c.targetDevices(), cmdVVALevel(100))
		c.scheduleState(1000*time.Millisecond, InitialModeALC)

	case InitialModeALC:
		c.fleet.Broadcast(c.targetDevices(), cmdModeALC)
		c.scheduleState(1000*time.Millisecond, InitialAlcLevel)

	case InitialAlcLevel:
		c.fleet.Broadcast(c.targetDevices(), cmdALCLevel(c.job.TargetMin))
		c.scheduleState(1000*time.Millisecond, SetOnline)

	case SetOnline:
		c.fleet.Broadcast(c.targetDevices(), cmdOnline)
		c.scheduleState(500*time.Millisecond, SetInitialGain)

	case SetInitialGain:
		c.enterSetInitialGain()

	case StartWaveform:
		c.startGenerator()
		c.enter(WaitForPythonPrompt)

	case WaitForPythonPrompt:
		c.after(c.promptTimeout(), func() { c.fail("generator did not signal readiness") })

	case SetModeVVAAll:
		c.fleet.Broadcast(c.targetDevices(), cmdModeVVA)
		c.scheduleState(1000*time.Millisecond, SetGain100All)

	case SetGain100All:
		c.fleet.Broadcast(c.targetDevices(), cmdVVALevel(100))
		c.scheduleState(1000*time.Millisecond, QueryFwdPwr)

	case QueryFwdPwr:
		c.clearAllBuffers()
		c.fleet.Broadcast(c.targetDevices(), cmdFwdPwr)
		c.scheduleState(500*time.Millisecond, WaitForStable)

	case WaitForStable:
		c.enterWaitForStable()

	case StopWaveform:
		c.proc.Stop()
		c.scheduleState(500*time.Millisecond, ComparePower)

	case ComparePower:
		c.enterComparePower()

	case AdjustGainUp:
		c.enterAdjustGainUp()

	case AdjustGainDown:
		c.enterAdjustGainDown()

	case SetModeALC:
		c.clearBuffers(c.testingSubs)
		c.fleet.Broadcast(c.testingSubs, cmdModeALC)
		c.scheduleState(1500*time.Millisecond, PreSetAlc)

	case PreSetAlc:
		c.fleet.Broadcast(c.testingSubs, cmdALCLevel(c.job.TargetMin))
		c.scheduleState(1500*time.Millisecond, StartWaveformALC)

	case StartWaveformALC:
		c.alcRangeHits = 0
		c.startGenerator()
		c.enter(WaitForPythonPromptALC)

	case WaitForPythonPromptALC:
		c.after(c.promptTimeout(), func() { c.fail("generator did not signal readiness") })

	case QueryFwdPwrALC:
		c.fleet.Broadcast(c.testingSubs, cmdFwdPwr)
		c.scheduleState(1000*time.Millisecond, WaitForAlcStable)

	case WaitForAlcStable:
		c.enterWaitForAlcStable()

	case AdjustMinDown:
		c.enterAdjustMinDown()

	case FinalizeTuning:
		c.enterFinalizeTuning()

	case RecheckMax:
		c.clearBuffers(c.testingSubs)
		c.fleet.Broadcast(c.testingSubs, cmdFwdPwr)
		c.scheduleState(1000*time.Millisecond, WaitForMaxStable)

	case WaitForMaxStable:
		c.enterWaitForMaxStable()

	case LogResults:
		c.enterLogResults()

	case RetryAfterFault:
		c.enterRetryAfterFault()

	case Finished, Failed:
		// terminal states are reached through fail()/finish(), not enter().
	}
}

func (c *Controller) enterSetInitialGain() {
	if c.job.IsDual && c.channel == 0 {
		if err := c.editor.EditGain(c.job.ScriptPath, c.gain, 0); err != nil {
			c.fail(editFailReason(err))
			return
		}
		if err := c.editor.EditGain(c.job.ScriptPath, c.gain, 1); err != nil {
			c.fail(editFailReason(err))
			return
		}
	} else if err := c.editGain(); err != nil {
		c.fail(editFailReason(err))
		return
	}
	c.scheduleState(500*time.Millisecond, StartWaveform)
}

func (c *Controller) startGenerator() {
	if err := c.proc.Start(); err != nil {
		c.diag.Warn("generator spawn failed", logging.Field{Key: "error", Value: err.Error()})
	}
}

func (c *Controller) enterWaitForStable() {
	stableAny := false
	for _, d := range c.targetDevices() {
		buf := c.buffers[d]
		if buf != nil && buf.Stable(0.01) {
			c.addTestingSubset(d)
			stableAny = true
		}
	}
	if stableAny {
		c.scheduleState(500*time.Millisecond, StopWaveform)
		return
	}
	c.fleet.Broadcast(c.targetDevices(), cmdFwdPwr)
	c.scheduleState(500*time.Millisecond, WaitForStable)
}

func (c *Controller) enterComparePower() {
	avg, _ := meanOf(c.testingSubs, c.buffers)
	diff := c.job.TargetMax - avg
	switch {
	case diff > 0.1:
		c.gainStep = upStep(diff)
		c.scheduleState(1000*time.Millisecond, AdjustGainUp)
	case diff < -0.3:
		c.lastAvg = avg
		c.gainStep = 1
		c.scheduleState(1000*time.Millisecond, AdjustGainDown)
	default:
		c.finalMax = avg
		c.scheduleState(1000*time.Millisecond, SetModeALC)
	}
}

func (c *Controller) enterAdjustGainUp() {
	c.gain += c.gainStep
	c.lastDir = 1
	c.downCount = 0
	c.clearAllBuffers()
	if err := c.editGain(); err != nil {
		c.fail(editFailReason(err))
		return
	}
	c.scheduleState(1000*time.Millisecond, StartWaveform)
}

func (c *Controller) enterAdjustGainDown() {
	c.downCount++
	c.lastDir = -1
	if c.downCount >= 3 {
		c.finalMax = c.lastAvg
		c.downCount = 0
		c.scheduleState(1000*time.Millisecond, SetModeALC)
		return
	}
	c.gain -= c.gainStep
	c.clearAllBuffers()
	if err := c.editGain(); err != nil {
		c.fail(editFailReason(err))
		return
	}
	c.scheduleState(1000*time.Millisecond, StartWaveform)
}

func (c *Controller) enterWaitForAlcStable() {
	allStable := true
	for _, d := range c.testingSubs {
		buf := c.buffers[d]
		if buf == nil || buf.Len() < 3 || !buf.Stable(0.2) {
			allStable = false
			break
		}
	}
	if !allStable && c.alcRangeThreshold() > 0 && c.alcRangeHits >= c.alcRangeThreshold() {
		// Resolved Open Question (see DESIGN.md): treat a sustained run of
		// "ALC Range" replies as stability rather than requerying forever.
		allStable = true
	}
	if !allStable {
		c.scheduleState(1000*time.Millisecond, QueryFwdPwrALC)
		return
	}

	avgAlc, _ := meanOf(c.testingSubs, c.buffers)
	if c.job.Critical == CriticalLow && (avgAlc-c.job.TargetMin) > 0.2 {
		c.scheduleState(1000*time.Millisecond, AdjustMinDown)
		return
	}
	c.finalMin = avgAlc
	c.scheduleState(1000*time.Millisecond, FinalizeTuning)
}

func (c *Controller) enterAdjustMinDown() {
	if c.gain <= 0 {
		c.fail("gain cannot be lowered further for LOW critical tuning")
		return
	}
	c.gain--
	if err := c.editGain(); err != nil {
		c.fail(editFailReason(err))
		return
	}
	c.clearBuffers(c.testingSubs)
	c.proc.Stop()
	c.scheduleState(1000*time.Millisecond, StartWaveformALC)
}

func (c *Controller) enterFinalizeTuning() {
	c.fleet.Broadcast(c.testingSubs, cmdModeVVA)
	c.after(500*time.Millisecond, func() {
		c.fleet.Broadcast(c.testingSubs, cmdVVALevel(100))
		c.clearBuffers(c.testingSubs)
		c.after(2000*time.Millisecond, func() { c.enter(RecheckMax) })
	})
}

func (c *Controller) enterWaitForMaxStable() {
	allStable := true
	for _, d := range c.testingSubs {
		buf := c.buffers[d]
		if buf == nil || !buf.Stable(0.01) {
			allStable = false
			break
		}
	}
	if !allStable {
		c.fleet.Broadcast(c.testingSubs, cmdFwdPwr)
		c.scheduleState(1000*time.Millisecond, WaitForMaxStable)
		return
	}
	mean, _ := meanOf(c.testingSubs, c.buffers)
	c.finalMax = mean
	c.scheduleState(1000*time.Millisecond, LogResults)
}

func (c *Controller) enterLogResults() {
	c.logResult()
	if c.job.IsDual && c.channel == 0 {
		c.channel = 1
		c.gain = c.initialGain
		c.testingSubs = nil
		c.proc.Stop()
		c.scheduleState(1000*time.Millisecond, SetInitialGain)
		return
	}
	c.proc.Stop()
	c.finish()
}

func (c *Controller) enterRetryAfterFault() {
	c.proc.Stop()
	c.gain--
	c.lastDir = -1
	if err := c.editGain(); err != nil {
		c.fail(editFailReason(err))
		return
	}
	if err := c.proc.Start(); err != nil {
		c.diag.Warn("generator restart after fault failed", logging.Field{Key: "error", Value: err.Error()})
	}
	c.scheduleState(1000*time.Millisecond, SetModeALC)
}

func (c *Controller) logResult() {
	current := c.job
	current.Channel = c.channel
	msg := fmt.Sprintf("Waveform %s for channel %s is tuned to a minimum power of %.1f dBm and a maximum power of %.1f dBm",
		c.job.Name(), current.ChannelLabel(), c.finalMin, c.finalMax)
	if c.wlog != nil {
		if err := c.wlog.DebugAndLog(msg); err != nil {
			c.diag.Warn("failed to write tuning log", logging.Field{Key: "error", Value: err.Error()})
		}
		return
	}
	c.diag.Info(msg)
}

func (c *Controller) addTestingSubset(device string) {
	for _, d := range c.testingSubs {
		if d == device {
			return
		}
	}
	c.testingSubs = append(c.testingSubs, device)
}

func (c *Controller) promptTimeout() time.Duration {
	if c.cfg.PythonPromptTimeout > 0 {
		return c.cfg.PythonPromptTimeout
	}
	return 30 * time.Second
}

func (c *Controller) maxFaultRetries() int {
	if c.cfg.MaxFaultRetries > 0 {
		return c.cfg.MaxFaultRetries
	}
	return 5
}

func (c *Controller) alcRangeThreshold() int {
	if c.cfg.ALCRangeThreshold > 0 {
		return c.cfg.ALCRangeThreshold
	}
	return 12
}

func upStep(diff float64) int {
	switch {
	case diff > 2.2:
		return 5
	case diff > 1.8:
		return 4
	case diff > 1.2:
		return 3
	case diff > 0.6:
		return 2
	default:
		return 1
	}
}

func editFailReason(err error) string {
	return fmt.Sprintf("gain edit rejected: %v", err)
}
