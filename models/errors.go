package models

// CodedError is a domain error with a machine-readable code the HTTP layer
// can map onto responses without string matching.
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string {
	return e.Message
}

var (
	// ErrSequenceNoSteps rejects activation of a sequence without any active steps
	ErrSequenceNoSteps = &CodedError{
		Code:    "SEQUENCE_NO_STEPS",
		Message: "sequence must have at least one active step",
	}

	// ErrInvalidStatusTransition rejects a lifecycle move the state machine does not allow
	ErrInvalidStatusTransition = &CodedError{
		Code:    "INVALID_STATUS_TRANSITION",
		Message: "status transition not allowed from the current state",
	}
)
