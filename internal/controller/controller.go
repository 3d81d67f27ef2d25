// Package controller implements the tuning state machine: it sequences
// amplifier mode/level commands, starts and stops the waveform generator,
// accumulates forward-power readings, detects stability, and adjusts the
// generator's software gain until the measured power falls inside the
// requested window.
package controller

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/n5hz/wavetuner/internal/ampfleet"
	"github.com/n5hz/wavetuner/internal/config"
	"github.com/n5hz/wavetuner/internal/generator"
	"github.com/n5hz/wavetuner/internal/logging"
	"github.com/n5hz/wavetuner/internal/telemetry"
	"github.com/n5hz/wavetuner/internal/wavelog"
)

// Fleet is the subset of *ampfleet.Fleet the controller depends on.
type Fleet interface {
	Discover(opts ampfleet.DiscoverOptions) error
	Devices() []string
	Events() <-chan ampfleet.Event
	Broadcast(devices []string, command string)
	DisconnectAll()
}

// Process is the subset of *generator.Process the controller depends on.
type Process interface {
	Events() <-chan generator.Event
	Start() error
	Stop()
}

// Editor is the subset of *gainfile.Editor the controller depends on.
type Editor interface {
	EditGain(path string, newGain, targetChannel int) error
}

// Controller runs exactly one tuning job per Start call. It is not safe
// for concurrent use: the state machine is cooperative and single
// threaded, as specified.
type Controller struct {
	fleet      Fleet
	newProcess func(scriptPath string) Process
	editor     Editor
	wlog       *wavelog.Logger
	diag       logging.Logger
	reporter   telemetry.Reporter
	cfg        config.Config

	discoverOpts ampfleet.DiscoverOptions

	runID string
	job   Job

	state   State
	devices []string
	buffers map[string]*ReadingBuffer

	gain         int
	initialGain  int
	channel      int
	testingSubs  []string
	gainStep     int
	lastAvg      float64
	lastDir      int
	downCount    int
	faultCount   int
	alcRangeHits int
	finalMin     float64
	finalMax     float64

	proc  Process
	timer *time.Timer
	fire  func()

	outcome chan Outcome
}

// New builds a Controller. reporter and diag may be nil; a nil diag falls
// back to logging.Default(), a nil reporter simply drops samples.
func New(fleet Fleet, newProcess func(scriptPath string) Process, editor Editor, wlog *wavelog.Logger, reporter telemetry.Reporter, diag logging.Logger, cfg config.Config) *Controller {
	if diag == nil {
		diag = logging.Default()
	}
	return &Controller{
		fleet:      fleet,
		newProcess: newProcess,
		editor:     editor,
		wlog:       wlog,
		reporter:   reporter,
		diag:       diag,
		cfg:        cfg,
	}
}

// WithDiscoverOptions overrides the options passed to Fleet.Discover; the
// zero value scans the default serial namespace with no network probe.
func (c *Controller) WithDiscoverOptions(opts ampfleet.DiscoverOptions) {
	c.discoverOpts = opts
}

// Start runs job to completion, blocking until it emits Finished or Failed.
func (c *Controller) Start(job Job) Outcome {
	c.job = job
	c.runID = uuid.NewString()
	c.gain = InitialGain(job.AmpModel)
	c.initialGain = c.gain
	c.channel = job.Channel
	c.buffers = make(map[string]*ReadingBuffer)
	c.testingSubs = nil
	c.lastDir = 0
	c.downCount = 0
	c.faultCount = 0
	c.alcRangeHits = 0
	c.outcome = make(chan Outcome, 1)

	c.proc = c.newProcess(job.ScriptPath)

	if err := c.fleet.Discover(c.discoverOpts); err != nil {
		return c.terminal(OutcomeFailed, fmt.Sprintf("amplifier discovery failed: %v", err))
	}
	c.devices = orderDevices(c.fleet.Devices())
	if len(c.devices) == 0 {
		return c.terminal(OutcomeFailed, "no amplifier devices found")
	}
	for _, d := range c.devices {
		c.buffers[d] = &ReadingBuffer{}
	}

	defer c.teardown()

	c.enter(Idle)
	c.scheduleState(1000*time.Millisecond, CheckAmpMode)

	return c.loop()
}

func (c *Controller) loop() Outcome {
	ampEvents := c.fleet.Events()
	for {
		select {
		case ev, ok := <-ampEvents:
			if !ok {
				ampEvents = nil
				continue
			}
			c.handleAmpEvent(ev)
		case ev, ok := <-c.proc.Events():
			if !ok {
				continue
			}
			c.handleGenEvent(ev)
		case <-c.timerChan():
			fn := c.fire
			c.fire = nil
			if fn != nil {
				fn()
			}
		case out := <-c.outcome:
			return out
		}
	}
}

func (c *Controller) teardown() {
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.proc != nil {
		c.proc.Stop()
	}
	c.fleet.DisconnectAll()
}

// terminal builds and records the final Outcome without relying on the
// event loop, for failures detected before loop() starts.
func (c *Controller) terminal(kind OutcomeKind, reason string) Outcome {
	out := Outcome{Kind: kind, Reason: reason, FinalMin: c.finalMin, FinalMax: c.finalMax}
	if c.proc != nil {
		c.proc.Stop()
	}
	if c.fleet != nil {
		c.fleet.DisconnectAll()
	}
	return out
}

func (c *Controller) fail(reason string) {
	if c.state == Failed || c.state == Finished {
		return
	}
	c.state = Failed
	c.disarmTimer()
	c.outcome <- Outcome{Kind: OutcomeFailed, Reason: reason, FinalMin: c.finalMin, FinalMax: c.finalMax}
}

func (c *Controller) finish() {
	if c.state == Failed || c.state == Finished {
		return
	}
	c.state = Finished
	c.disarmTimer()
	c.outcome <- Outcome{Kind: OutcomeFinished, FinalMin: c.finalMin, FinalMax: c.finalMax}
}

func (c *Controller) disarmTimer() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.fire = nil
}

// after arms the controller's single-shot timer, replacing any timer
// already pending.
func (c *Controller) after(d time.Duration, fn func()) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.fire = fn
	c.timer = time.NewTimer(d)
}

func (c *Controller) timerChan() <-chan time.Time {
	if c.timer == nil {
		return nil
	}
	return c.timer.C
}

// scheduleState arms a timer that, on firing, transitions directly into
// next via enter.
func (c *Controller) scheduleState(d time.Duration, next State) {
	c.after(d, func() { c.enter(next) })
}

func (c *Controller) reportState() {
	if c.reporter == nil {
		return
	}
	c.reporter.Report(telemetry.Sample{Timestamp: time.Now(), RunID: c.runID, State: c.state.String(), Gain: c.gain})
}

func (c *Controller) reportReading(device string, v float64) {
	if c.reporter == nil {
		return
	}
	c.reporter.Report(telemetry.Sample{Timestamp: time.Now(), RunID: c.runID, State: c.state.String(), Device: device, Gain: c.gain, ReadingDB: v})
}

func (c *Controller) clearAllBuffers() {
	for _, b := range c.buffers {
		b.Clear()
	}
}

func (c *Controller) clearBuffers(devices []string) {
	for _, d := range devices {
		if b, ok := c.buffers[d]; ok {
			b.Clear()
		}
	}
}

// editGain rewrites the generator script's gain call for the current
// channel only, enforcing invariant I1 through the Editor. The extra
// channel-1 edit of a dual-channel job is made by enterSetInitialGain.
func (c *Controller) editGain() error {
	return c.editor.EditGain(c.job.ScriptPath, c.gain, c.channel)
}
