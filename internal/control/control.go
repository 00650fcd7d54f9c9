package control

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ectherm/fancontrold/internal/ecreader"
	"github.com/ectherm/fancontrold/internal/ecwriter"
	"github.com/ectherm/fancontrold/internal/loader"
)

// Loop owns State for the lifetime of the process and is the only
// component that talks to the EC (through reader/writer), the config
// loader and the sensor sampler. Every mutation happens on Loop.Run's
// goroutine; callers communicate through Send.
type Loop struct {
	state *State

	cfgLoader *loader.Loader
	writer    *ecwriter.Writer
	reader    *ecreader.Reader
	sampler   Sampler

	commands chan Command
	events   chan Event

	// defaultTempCompute seeds State.TempCompute the first time a config
	// installs, before any State exists to carry it.
	defaultTempCompute TempComputeMethod

	log zerolog.Logger
}

// New builds a Loop in the Idle state (no config installed); it starts
// running its tick/command select only once Run is called.
func New(cfgLoader *loader.Loader, writer *ecwriter.Writer, reader *ecreader.Reader, sampler Sampler, tempCompute TempComputeMethod, log zerolog.Logger) *Loop {
	l := &Loop{
		cfgLoader: cfgLoader,
		writer:    writer,
		reader:    reader,
		sampler:   sampler,
		commands:  make(chan Command, 32),
		events:    make(chan Event, 32),
		log:       log,
	}
	l.defaultTempCompute = tempCompute
	return l
}

// Events returns the channel the IPC surface should drain for
// change-notifications.
func (l *Loop) Events() <-chan Event { return l.events }

// Send enqueues a command for the loop goroutine. It never blocks the
// caller beyond the channel's buffer; callers needing a reply should read
// from the Reply channel they supplied.
func (l *Loop) Send(cmd Command) { l.commands <- cmd }

// InstallInitial performs the first hot-swap at startup: the loop blocks
// in Idle until this (or a SetConfig command) succeeds.
func (l *Loop) InstallInitial(name string) error {
	return l.installConfig(name)
}

// Run drives the cooperative event loop until ctx is cancelled or a
// Shutdown command is received, performing a final reset(all=true)
// exactly once before returning.
func (l *Loop) Run(ctx context.Context) error {
	defer l.finalReset()

	for {
		var tickC <-chan time.Time
		if l.state != nil {
			tickC = time.After(l.state.PollInterval)
		}

		select {
		case <-ctx.Done():
			return nil
		case cmd := <-l.commands:
			if _, shutdown := cmd.(Shutdown); shutdown {
				return nil
			}
			l.handle(cmd)
		case <-tickC:
			l.tick()
		}
	}
}

func (l *Loop) finalReset() {
	if l.state == nil || l.writer == nil {
		return
	}
	if err := l.writer.Reset(true); err != nil {
		l.log.Error().Err(err).Msg("final ec reset failed")
	}
}

func (l *Loop) handle(cmd Command) {
	switch c := cmd.(type) {
	case SetConfig:
		err := l.installConfig(c.Name)
		if c.Reply != nil {
			c.Reply <- err
		}
	case SetAuto:
		if l.state != nil {
			l.state.Auto = c.Auto
			l.emit(EventAuto, c.Auto)
		}
	case SetTarget:
		err := l.setTarget(c.Index, c.Percent)
		if c.Reply != nil {
			c.Reply <- err
		}
	case SetTargets:
		err := l.setTargets(c.Percents)
		if c.Reply != nil {
			c.Reply <- err
		}
	case QuerySpeed:
		var speed float64
		if l.state != nil && c.Index >= 0 && c.Index < len(l.state.Fans) {
			speed = l.state.Fans[c.Index].LastReadSpeed
		}
		if c.Reply != nil {
			c.Reply <- speed
		}
	case ExternalTempChange:
		if l.state != nil {
			l.applyTemperature(c.Temp)
		}
	}
}

func (l *Loop) setTarget(index int, percent float64) error {
	if l.state == nil {
		return invalidArg("no config installed")
	}
	if index < 0 || index >= len(l.state.Fans) {
		return invalidArg("fan index %d out of range (have %d fans)", index, len(l.state.Fans))
	}
	if percent < 0 || percent > 100 {
		return invalidArg("speed %v out of range [0, 100]", percent)
	}
	l.state.Auto = false
	l.state.Targets[index] = percent
	l.state.ManualTargetDirty = true
	l.emit(EventAuto, false)
	l.emit(EventTargetFansSpeeds, append([]float64(nil), l.state.Targets...))
	return nil
}

func (l *Loop) setTargets(percents []float64) error {
	if l.state == nil {
		return invalidArg("no config installed")
	}
	if len(percents) != len(l.state.Fans) {
		return invalidArg("expected %d target speeds, got %d", len(l.state.Fans), len(percents))
	}
	for _, p := range percents {
		if p < 0 || p > 100 {
			return invalidArg("speed %v out of range [0, 100]", p)
		}
	}
	l.state.Auto = false
	copy(l.state.Targets, percents)
	l.state.ManualTargetDirty = true
	l.emit(EventAuto, false)
	l.emit(EventTargetFansSpeeds, append([]float64(nil), l.state.Targets...))
	return nil
}

// installConfig resolves, test-loads (validating the candidate config) and
// installs it, preserving fan targets by index. Failure leaves the
// previously installed config untouched.
func (l *Loop) installConfig(name string) error {
	cfg, err := l.cfgLoader.TestLoad(name)
	if err != nil {
		return &ConfigError{Name: name, Err: err}
	}

	tempCompute := l.defaultTempCompute
	var prevTargets []float64
	if l.state != nil {
		prevTargets = l.state.Targets
		tempCompute = l.state.TempCompute
	}

	if err := l.writer.RefreshConfig(cfg); err != nil {
		return &ConfigError{Name: name, Err: err}
	}
	l.reader.RefreshConfig(cfg)

	l.state = newState(name, cfg, prevTargets, tempCompute)

	l.emit(EventConfig, name)
	l.emit(EventPollInterval, uint64(l.state.PollInterval/time.Millisecond))
	l.emit(EventFansNames, l.state.FanNames())
	l.emit(EventTargetFansSpeeds, append([]float64(nil), l.state.Targets...))
	return nil
}

// tick executes one poll-interval pass: sample sensors, update the driving
// temperature and critical state, then read-then-write every fan.
func (l *Loop) tick() {
	if l.state == nil {
		return
	}

	sample, err := l.sampler.Sample()
	if err != nil {
		l.log.Warn().Err(err).Msg("sensor sample unavailable, retrying next tick")
		return
	}
	l.state.Temperatures = sample
	if cpuMean, ok := drivingTemperature(sample, CPUOnly); ok {
		l.state.CPUTemp = cpuMean
	}

	t, ok := drivingTemperature(sample, l.state.TempCompute)
	if !ok {
		l.log.Warn().Msg("no sensor readings available for configured temp_compute method")
		return
	}

	l.emit(EventTemperatures, sample)
	l.applyTemperature(t)
}

// applyTemperature runs the hysteretic critical update against driving
// temperature t, then does a per-fan read-then-write pass.
func (l *Loop) applyTemperature(t float64) {
	s := l.state
	wasCritical := s.Critical
	s.Critical = updateCritical(s.Critical, t, s.CriticalTemperature)
	if s.Critical != wasCritical {
		l.emit(EventCritical, s.Critical)
	}

	for i, fan := range s.Fans {
		speed, err := l.reader.ReadSpeedPercent(i)
		if err != nil {
			l.log.Warn().Err(err).Int("fan", i).Msg("ec read failed, skipping fan this tick")
			continue
		}
		fan.LastReadSpeed = speed

		target, shouldWrite := l.selectTarget(fan, i, t)
		if !shouldWrite {
			continue
		}
		if err := l.writer.WriteSpeedPercent(i, target); err != nil {
			l.log.Warn().Err(err).Int("fan", i).Msg("ec write failed, skipping fan this tick")
			continue
		}
		fan.LastWrittenSpeed = target
	}

	l.emit(EventFansSpeeds, s.FanSpeeds())
}

// selectTarget picks fan i's next write target, if any.
func (l *Loop) selectTarget(fan *FanRuntime, i int, t float64) (float64, bool) {
	s := l.state
	if s.Critical {
		return 100.0, true
	}
	if !s.Auto {
		return clampPercent(s.Targets[i]), true
	}

	next, changed := selectThreshold(fan.Thresholds, fan.CurrentThresholdIndex, t)
	if !changed {
		return 0, false
	}
	fan.CurrentThresholdIndex = next
	return float64(fan.Thresholds[next].FanSpeed), true
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func (l *Loop) emit(kind EventKind, value interface{}) {
	select {
	case l.events <- Event{Kind: kind, Value: value, CorrelationID: newCorrelationID()}:
	default:
		l.log.Warn().Str("event", string(kind)).Msg("event channel full, dropping notification")
	}
}
