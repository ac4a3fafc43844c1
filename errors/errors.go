package errors

import "fmt"

var (
	ErrInvalidParticipants = fmt.Errorf("a conversation needs two distinct participants")
	ErrInvalidBody         = fmt.Errorf("message body is empty or exceeds the allowed length")
	ErrNotAParticipant     = fmt.Errorf("user is not a participant of the conversation")
	ErrNotFound            = fmt.Errorf("entity not found")
	ErrTransientStore      = fmt.Errorf("store temporarily unavailable")
	ErrSubscriptionClosed  = fmt.Errorf("subscription already closed")
	ErrWorkerPanic         = fmt.Errorf("worker panic")
)
