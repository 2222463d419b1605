package supervisor

import "github.com/makapix/agent-core/internal/corerrors"

// StartProvisioning implements the IDLE/REGISTRATION_INVALID ->
// PROVISIONING edge. Disconnects the session first per the table's note on
// the IDLE edge, and resets the auth-failure counter per the
// REGISTRATION_INVALID edge's note — both handled by the caller (the
// agent-level wiring owns the session reference); this method only
// enforces which source states are legal.
func (s *Supervisor) StartProvisioning() error {
	cur := s.State()
	switch cur {
	case StateIdle, StateRegistrationInvalid, StateIncompleteRegistration:
		s.clearCancel()
		s.transition(StateProvisioning)
		return nil
	default:
		return corerrors.Mark(corerrors.Newf("start_provisioning not permitted from %s", cur), corerrors.ErrInvalidState)
	}
}

// PhaseAOk implements PROVISIONING -> SHOW_CODE, storing the code/expiry.
func (s *Supervisor) PhaseAOk(code string, expiryUnix int64) error {
	if s.State() != StateProvisioning {
		return corerrors.Mark(corerrors.Newf("phase-A ok not permitted from %s", s.State()), corerrors.ErrInvalidState)
	}
	s.setRegistrationCode(code, expiryUnix)
	s.transition(StateShowCode)
	return nil
}

// PhaseAFail implements PROVISIONING -> IDLE.
func (s *Supervisor) PhaseAFail() error {
	if s.State() != StateProvisioning {
		return corerrors.Mark(corerrors.Newf("phase-A fail not permitted from %s", s.State()), corerrors.ErrInvalidState)
	}
	s.transition(StateIdle)
	return nil
}

// Cancel implements PROVISIONING/SHOW_CODE -> IDLE: sets the cancellation
// flag and clears the code.
func (s *Supervisor) Cancel() error {
	cur := s.State()
	if cur != StateProvisioning && cur != StateShowCode {
		return corerrors.Mark(corerrors.Newf("cancel not permitted from %s", cur), corerrors.ErrInvalidState)
	}
	s.mu.Lock()
	s.cancelFlag = true
	s.mu.Unlock()
	s.clearRegistrationCode()
	s.transition(StateIdle)
	return nil
}

// PhaseBOk implements SHOW_CODE -> CONNECTING: certs installed.
func (s *Supervisor) PhaseBOk() error {
	if s.State() != StateShowCode {
		return corerrors.Mark(corerrors.Newf("phase-B ok not permitted from %s", s.State()), corerrors.ErrInvalidState)
	}
	s.clearRegistrationCode()
	s.transition(StateConnecting)
	return nil
}

// CodeExpired implements SHOW_CODE -> IDLE (15 min timeout).
func (s *Supervisor) CodeExpired() error {
	if s.State() != StateShowCode {
		return corerrors.Mark(corerrors.Newf("code expiry not permitted from %s", s.State()), corerrors.ErrInvalidState)
	}
	s.clearRegistrationCode()
	s.transition(StateIdle)
	return nil
}

// ConnectIfRegistered implements IDLE -> CONNECTING, requiring the caller
// to have already verified identity+certs are present.
func (s *Supervisor) ConnectIfRegistered() error {
	if s.State() != StateIdle {
		return corerrors.Mark(corerrors.Newf("connect_if_registered not permitted from %s", s.State()), corerrors.ErrInvalidState)
	}
	s.transition(StateConnecting)
	return nil
}

// EnterIncompleteRegistration is the startup-reconciliation entry point
// resolving Open Question 1 (DESIGN.md): identity present, certs absent.
func (s *Supervisor) EnterIncompleteRegistration() error {
	if s.State() != StateIdle {
		return corerrors.Mark(corerrors.Newf("incomplete-registration entry not permitted from %s", s.State()), corerrors.ErrInvalidState)
	}
	s.transition(StateIncompleteRegistration)
	return nil
}

// ConnectedEdge implements CONNECTING -> CONNECTED and DISCONNECTED ->
// CONNECTED. Invoked from the session's connection callback on the
// false->true edge only.
func (s *Supervisor) ConnectedEdge() error {
	cur := s.State()
	if cur != StateConnecting && cur != StateDisconnected {
		return corerrors.Mark(corerrors.Newf("connected edge not permitted from %s", cur), corerrors.ErrInvalidState)
	}
	s.transition(StateConnected)
	return nil
}

// DisconnectedEdge implements CONNECTED -> DISCONNECTED. The caller is
// responsible for spawning the reconnect task.
func (s *Supervisor) DisconnectedEdge() error {
	if s.State() != StateConnected {
		return corerrors.Mark(corerrors.Newf("disconnected edge not permitted from %s", s.State()), corerrors.ErrInvalidState)
	}
	s.transition(StateDisconnected)
	return nil
}

// AuthFailuresExceeded implements DISCONNECTED/CONNECTING ->
// REGISTRATION_INVALID: terminal until re-provision.
func (s *Supervisor) AuthFailuresExceeded() error {
	cur := s.State()
	if cur != StateDisconnected && cur != StateConnecting {
		return corerrors.Mark(corerrors.Newf("auth-failures-exceeded not permitted from %s", cur), corerrors.ErrInvalidState)
	}
	s.transition(StateRegistrationInvalid)
	return nil
}
