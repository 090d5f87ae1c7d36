package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrMessageNotFound   = fmt.Errorf("message not found")
	ErrNotIdentified     = fmt.Errorf("connection has not identified")
	ErrUnknownConnection = fmt.Errorf("unknown connection")
	ErrNoRoom            = fmt.Errorf("no room given and no active room")
	ErrEmptyMessage      = fmt.Errorf("message has no content")
	ErrContentTooLong    = fmt.Errorf("message content too long")
	ErrImageTooLarge     = fmt.Errorf("image payload too large")
	ErrUnsupportedImage  = fmt.Errorf("image payload is not an image")
	ErrUnknownEventType  = fmt.Errorf("unknown event type")
	ErrSlowConsumer      = fmt.Errorf("connection buffer full, event dropped")
)
