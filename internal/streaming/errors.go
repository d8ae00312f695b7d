package streaming

// ErrorKind classifies engine errors.
type ErrorKind int

const (
	// ErrorNetwork covers manifest and segment fetch failures. Recoverable by reloading.
	ErrorNetwork ErrorKind = iota
	// ErrorMedia covers decode and buffering failures. Recoverable by a decoder reset.
	ErrorMedia
	// ErrorOther is everything else. Unrecoverable.
	ErrorOther
)

const (
	msgNetworkError = "Network error occurred while streaming"
	msgMediaError   = "Media error occurred"
	msgFatalError   = "Fatal error occurred"
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNetwork:
		return "network"
	case ErrorMedia:
		return "media"
	default:
		return "other"
	}
}

// message is the user-facing text for a fatal error of this kind.
func (k ErrorKind) message() string {
	switch k {
	case ErrorNetwork:
		return msgNetworkError
	case ErrorMedia:
		return msgMediaError
	default:
		return msgFatalError
	}
}
