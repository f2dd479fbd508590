package virtual

import (
	"github.com/charmbracelet/vlist/internal/pubsub"
	"github.com/charmbracelet/vlist/internal/virtual/compress"
	"github.com/charmbracelet/vlist/internal/virtual/data"
	"github.com/charmbracelet/vlist/internal/virtual/viewport"
)

const (
	EventRangeChanged       pubsub.EventType = "range_changed"
	EventScroll             pubsub.EventType = "scroll"
	EventVelocityChanged    pubsub.EventType = "velocity_changed"
	EventCompressionChanged pubsub.EventType = "compression_changed"
)

// Event is the payload of every engine event. Only the fields relevant to
// the event type are set.
type Event struct {
	Range       viewport.Range
	Visible     viewport.Range
	Position    float64
	Direction   data.Direction
	Velocity    float64
	Compression compress.State
}
