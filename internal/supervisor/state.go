// Package supervisor implements the Lifecycle Supervisor (C5): the
// top-level state machine, grounded on this codebase's server/lifecycle.go
// named-phase-with-logged-transitions shape and server/broadcast.go's
// one-shot notification pattern (repurposed here from WebSocket clients to
// the process-wide event bus).
package supervisor

import (
	"sync"

	"github.com/makapix/agent-core/internal/corelog"
	"github.com/makapix/agent-core/internal/eventbus"
)

// State is the tagged lifecycle value of spec §3/§4.5, extended with the
// INCOMPLETE_REGISTRATION value resolving Open Question 1 (DESIGN.md).
type State string

const (
	StateIdle                   State = "IDLE"
	StateProvisioning           State = "PROVISIONING"
	StateShowCode               State = "SHOW_CODE"
	StateConnecting             State = "CONNECTING"
	StateConnected              State = "CONNECTED"
	StateDisconnected           State = "DISCONNECTED"
	StateRegistrationInvalid    State = "REGISTRATION_INVALID"
	StateIncompleteRegistration State = "INCOMPLETE_REGISTRATION"
)

// StateChangedEvent is the payload of the "state_changed" eventbus event.
type StateChangedEvent struct {
	From State
	To   State
}

// Supervisor is the single-writer owner of lifecycle state. All mutation
// goes through typed methods rather than ambient globals (Design Notes:
// "Global mutable supervisor state").
type Supervisor struct {
	mu    sync.Mutex
	state State
	bus   *eventbus.Bus

	registrationCode string
	codeExpiryUnix   int64
	cancelFlag       bool
}

// New constructs a Supervisor in IDLE.
func New(bus *eventbus.Bus) *Supervisor {
	return &Supervisor{state: StateIdle, bus: bus}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves to `to`, logging and emitting the one-shot event. Not
// exported: every transition has a named method below enforcing the edge
// table of spec §4.5.
func (s *Supervisor) transition(to State) {
	log := corelog.For("supervisor")
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	log.Infow("state transition", "from", from, "to", to)
	if s.bus != nil {
		s.bus.Emit(eventbus.Event{Kind: "state_changed", Payload: StateChangedEvent{From: from, To: to}})
	}
}

// RegistrationCode returns the active code and whether one is set.
func (s *Supervisor) RegistrationCode() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registrationCode, s.registrationCode != ""
}

func (s *Supervisor) setRegistrationCode(code string, expiryUnix int64) {
	s.mu.Lock()
	s.registrationCode = code
	s.codeExpiryUnix = expiryUnix
	s.mu.Unlock()
}

func (s *Supervisor) clearRegistrationCode() {
	s.mu.Lock()
	s.registrationCode = ""
	s.codeExpiryUnix = 0
	s.mu.Unlock()
}

// CancelRequested reports and does not clear the cooperative cancellation
// flag (spec §5: monotonic, checked at every suspension point).
func (s *Supervisor) CancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelFlag
}

func (s *Supervisor) clearCancel() {
	s.mu.Lock()
	s.cancelFlag = false
	s.mu.Unlock()
}
