package driver

import "time"

// Clock schedules delayed calls. The driver keeps at most one pending call.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending call that can be stopped before it fires.
type Timer interface {
	Stop() bool
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
