// Package system is the wall clock used outside tests.
package system

import "time"

// Clock reports the current UTC time.
type Clock struct{}

// New returns a wall clock.
func New() *Clock { return &Clock{} }

// Now returns time.Now in UTC so session timestamps serialize uniformly.
func (Clock) Now() time.Time { return time.Now().UTC() }
