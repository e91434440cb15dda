package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVenue is returned by Admit when the venue id is unknown.
	ErrInvalidVenue = errors.New("invalid venue")
	// ErrValidation is returned by Admit when the profile is rejected.
	ErrValidation = errors.New("validation failed")
	// ErrUnknownSession is returned for tokens that were never issued or
	// whose session has already ended.
	ErrUnknownSession = errors.New("unknown session")
	// ErrCrossVenue is returned when a direct message targets a session in
	// another venue. It is never shown to the sender.
	ErrCrossVenue = errors.New("sessions belong to different venues")
)

// ValidationError names the profile field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }
