package control

import "github.com/google/uuid"

// Command is the sealed set of messages IPC handlers send to the loop's
// single owning goroutine: handlers never touch State directly, they send
// a typed command and, where a reply is meaningful, wait on a per-command
// reply channel.
type Command interface {
	isCommand()
}

// SetConfig requests a hot-swap to the named config. Reply carries nil on
// success or the error that caused the swap to be rejected (old config
// stays installed).
type SetConfig struct {
	Name  string
	Reply chan<- error
}

// SetAuto switches the global automatic-threshold mode on or off.
type SetAuto struct {
	Auto bool
}

// SetTarget sets fan Index's manual target percentage; it implies
// Auto=false.
type SetTarget struct {
	Index   int
	Percent float64
	Reply   chan<- error
}

// SetTargets replaces every fan's manual target percentage at once
// (IPC's writable TargetFansSpeeds property).
type SetTargets struct {
	Percents []float64
	Reply    chan<- error
}

// QuerySpeed asks for fan Index's last-read speed percentage.
type QuerySpeed struct {
	Index int
	Reply chan<- float64
}

// ExternalTempChange pushes a driving temperature directly, bypassing the
// Sampler — an alternate push-model entry point for callers that already
// have a temperature reading.
type ExternalTempChange struct {
	Temp float64
}

// Shutdown requests a graceful stop: a final reset(all=true), then return.
type Shutdown struct{}

func (SetConfig) isCommand()          {}
func (SetAuto) isCommand()            {}
func (SetTarget) isCommand()          {}
func (SetTargets) isCommand()         {}
func (QuerySpeed) isCommand()         {}
func (ExternalTempChange) isCommand() {}
func (Shutdown) isCommand()           {}

// EventKind names a change-notify event the loop emits toward the IPC
// surface, one per read/write property clients can observe.
type EventKind string

const (
	EventFansSpeeds       EventKind = "FansSpeeds"
	EventFansNames        EventKind = "FansNames"
	EventTemperatures     EventKind = "Temperatures"
	EventPollInterval     EventKind = "PollInterval"
	EventCritical         EventKind = "Critical"
	EventTargetFansSpeeds EventKind = "TargetFansSpeeds"
	EventConfig           EventKind = "Config"
	EventAuto             EventKind = "Auto"
)

// Event is one change-notification, value shape depending on Kind.
// CorrelationID lets a client match an event against the command that
// produced it (e.g. a hot-swap's EventConfig against the SetConfig that
// triggered it) when several are in flight at once.
type Event struct {
	Kind           EventKind
	Value          interface{}
	CorrelationID  string
}

// newCorrelationID generates the id stamped on every emitted Event.
func newCorrelationID() string {
	return uuid.NewString()
}
