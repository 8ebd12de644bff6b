package client

import "time"

// Timer is a cancellable scheduled call.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the coordinator so tests can drive debounce and
// retry deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// realClock is the wall clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock returns the wall-clock implementation used outside tests.
func RealClock() Clock { return realClock{} }
