// Package clock supplies wall-clock timestamps for envelope and
// presence stamping.
package clock

import "time"

// Clock reads the system clock.
type Clock struct{}

// NowUnix returns the current time in unix seconds.
func (Clock) NowUnix() int64 {
	return time.Now().Unix()
}
