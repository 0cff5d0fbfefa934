// Package system provides the wall clock used to stamp paper records.
package system

import (
	"fmt"
	"time"
)

// Clock implements harvest.Clock using time.Now in a fixed location.
type Clock struct {
	loc *time.Location
}

// New creates a UTC Clock.
func New() *Clock {
	return &Clock{loc: time.UTC}
}

// NewIn creates a Clock reporting times in the named IANA zone, or the host
// zone for "Local". An empty name means UTC.
func NewIn(name string) (*Clock, error) {
	if name == "" {
		return New(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return &Clock{loc: loc}, nil
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	if c == nil || c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}
