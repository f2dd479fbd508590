package data

import (
	"math"
	"time"
)

// Direction is the direction of travel along the list.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionBackward
)

func (d Direction) String() string {
	if d == DirectionBackward {
		return "backward"
	}
	return "forward"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

const (
	// DefaultCancelThreshold is the velocity, in units per millisecond, above
	// which new loads are suppressed.
	DefaultCancelThreshold = 25
	// DefaultPreloadThreshold is the velocity above which loads reach ahead
	// in the scroll direction.
	DefaultPreloadThreshold = 2
	DefaultPreloadAhead     = 50

	// samples older than this are not blended with the new one
	staleSample = 100 * time.Millisecond
	smoothing   = 0.6
)

// VelocityOptions tunes load suppression and prefetch.
type VelocityOptions struct {
	CancelThreshold  float64
	PreloadThreshold float64
	PreloadAhead     int
}

func (o VelocityOptions) withDefaults() VelocityOptions {
	if o.CancelThreshold <= 0 {
		o.CancelThreshold = DefaultCancelThreshold
	}
	if o.PreloadThreshold <= 0 {
		o.PreloadThreshold = DefaultPreloadThreshold
	}
	if o.PreloadAhead <= 0 {
		o.PreloadAhead = DefaultPreloadAhead
	}
	return o
}

// Tracker estimates scroll velocity from successive positions.
type Tracker struct {
	pos       float64
	at        time.Time
	velocity  float64
	direction Direction
	started   bool
}

// Update feeds a new position and returns the smoothed velocity in units per
// millisecond.
func (t *Tracker) Update(pos float64, now time.Time) float64 {
	if math.IsNaN(pos) || math.IsInf(pos, 0) {
		return t.velocity
	}
	if !t.started {
		t.pos, t.at, t.started = pos, now, true
		return t.velocity
	}

	delta := pos - t.pos
	elapsed := now.Sub(t.at)
	t.pos, t.at = pos, now
	if delta > 0 {
		t.direction = DirectionForward
	} else if delta < 0 {
		t.direction = DirectionBackward
	}
	if elapsed <= 0 {
		return t.velocity
	}

	instant := math.Abs(delta) / (float64(elapsed) / float64(time.Millisecond))
	if elapsed > staleSample {
		t.velocity = instant
	} else {
		t.velocity = smoothing*instant + (1-smoothing)*t.velocity
	}
	return t.velocity
}

func (t *Tracker) Velocity() float64 { return t.velocity }

func (t *Tracker) Direction() Direction { return t.direction }

// Settle zeroes the velocity, keeping the last position and direction.
func (t *Tracker) Settle() {
	t.velocity = 0
}
