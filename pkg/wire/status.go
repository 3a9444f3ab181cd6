package wire

// Status represents a reply status code.
type Status uint8

const (
	// StatusSuccess indicates the call completed successfully.
	StatusSuccess Status = 0

	// StatusNotImplemented indicates the method is not known on the channel.
	StatusNotImplemented Status = 1

	// StatusUnsupported indicates the platform lacks the capability.
	StatusUnsupported Status = 2

	// StatusInvalidArgument indicates a malformed or missing argument.
	StatusInvalidArgument Status = 3

	// StatusError indicates the handler failed.
	StatusError Status = 4
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNotImplemented:
		return "NOT_IMPLEMENTED"
	case StatusUnsupported:
		return "UNSUPPORTED"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
