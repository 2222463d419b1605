package channel

import "sync"

// pendingRequest is the Pending-Channel Request of spec §3: a single-slot
// tuple written by any caller of RequestSwitch and read only by the switch
// task loop.
type pendingRequest struct {
	kind        string
	identifier  string
	displayName string
	has         bool
}

type pendingSlot struct {
	mu  sync.Mutex
	req pendingRequest
}

func (p *pendingSlot) write(req pendingRequest) {
	p.mu.Lock()
	p.req = req
	p.mu.Unlock()
}

// drain reads and clears the slot, returning whether a request was
// present.
func (p *pendingSlot) drain() (pendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req := p.req
	had := req.has
	p.req = pendingRequest{}
	return req, had
}

func (p *pendingSlot) hasRequest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.req.has
}
