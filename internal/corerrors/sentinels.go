package corerrors

// Sentinel errors shared across components, one per failure class named in
// the error handling design. Components compare with Is, never by string.
var (
	ErrNotFound      = New("not_found")
	ErrTruncated     = New("truncated")
	ErrIOError       = New("io_error")
	ErrInvalidArg    = New("invalid_argument")
	ErrNotReady      = New("not_ready")
	ErrNotConnected  = New("not_connected")
	ErrTimeout       = New("timeout")
	ErrInvalidState  = New("invalid_state")
	ErrInvalidResp   = New("invalid_response")
	ErrPublishFailed = New("publish_failed")
	ErrNoMem         = New("no_mem")
)
