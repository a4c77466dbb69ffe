package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrStoreWrite         = fmt.Errorf("store rejected or failed the append")
	ErrSendTimeout        = fmt.Errorf("no acknowledgment from store")
	ErrConnectionLost     = fmt.Errorf("store stream dropped")
	ErrStoreClosed        = fmt.Errorf("store is closed")
	ErrNotAuthenticated   = fmt.Errorf("no authenticated user")
	ErrEmptyBody          = fmt.Errorf("message body is empty")
	ErrBodyTooLong        = fmt.Errorf("message body is too long")
	ErrAlreadySubscribed  = fmt.Errorf("feed already has an active subscription")
	ErrInvalidRecord      = fmt.Errorf("invalid record")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidPassword    = fmt.Errorf("password does not meet requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)
