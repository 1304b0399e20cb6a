package widget

import (
	"github.com/i474232898/air-quality-map/internal/airquality"
	"github.com/i474232898/air-quality-map/internal/mapview"
)

// State is the lifecycle stage of a Widget.
type State int32

const (
	Uninitialized State = iota
	Initializing
	FetchingDetails
	Idle
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case FetchingDetails:
		return "fetching_details"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// MarshalText lets State encode as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EventType names a change published to a Listener.
type EventType string

const (
	EventLoading EventType = "loading"
	EventHeat    EventType = "heat"
	EventMarker  EventType = "marker"
	EventIdle    EventType = "idle"
)

// Event is a single change to the mounted view.
type Event struct {
	Type    EventType               `json:"type"`
	Loading *bool                   `json:"loading,omitempty"`
	Heat    *mapview.HeatLayer      `json:"heat,omitempty"`
	Marker  *mapview.CircleMarker   `json:"marker,omitempty"`
	Reading *airquality.CityReading `json:"reading,omitempty"`
}

// Listener receives events. Calls are serialised per widget.
type Listener func(Event)

// Snapshot is the observable state of a widget.
type Snapshot struct {
	State    State                    `json:"state"`
	Loading  bool                     `json:"loading"`
	View     *mapview.Snapshot        `json:"view,omitempty"`
	Readings []airquality.CityReading `json:"readings"`
}

func loadingEvent(v bool) Event {
	return Event{Type: EventLoading, Loading: &v}
}
