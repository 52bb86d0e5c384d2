package domain

import "errors"

var (
	ErrSenderNotFound = errors.New("sender not found")
	ErrSenderExists   = errors.New("sender already registered")
	ErrNoSnapshot     = errors.New("no statistics snapshot available")
	ErrSessionClosed  = errors.New("session closed")
)
