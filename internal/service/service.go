// Package service implements confession submission, the feeds, reactions
// and moderation on top of the store, publishing a change event for every
// write.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/sujalbistaa/confessly/internal/store"
	"github.com/sujalbistaa/confessly/internal/ws"
)

const (
	MaxConfessionLength = 1000
	MaxCommentLength    = 500

	// UnknownClient is recorded when no client address is available.
	UnknownClient = "unknown"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStorage wraps every failure of the underlying store.
	ErrStorage = errors.New("storage failure")
)

// Publisher receives change events after successful writes.
type Publisher interface {
	Publish(ws.Event)
}

// Subscriber registers for change events.
type Subscriber interface {
	Subscribe(ws.Filter, func(ws.Event)) *ws.Subscription
}

// Clock returns the current time. Nil means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

func storageErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func clientOrUnknown(clientID string) string {
	if clientID == "" {
		return UnknownClient
	}
	return clientID
}
