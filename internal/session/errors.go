package session

import "errors"

var (
	// ErrSessionNotFound is returned for ids that were never started or have ended.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrNoJoinURL is returned when a session cannot obtain a call to join.
	ErrNoJoinURL = errors.New("session: no join url")
	// ErrEmptySlot is returned when a slot selection carries no slot.
	ErrEmptySlot = errors.New("session: empty slot selection")
	// ErrSessionEnded is returned by operations on a session that has ended.
	ErrSessionEnded = errors.New("session: ended")
)
