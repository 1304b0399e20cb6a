// Package mapview models the map a browser draws: a viewport with a base
// tile layer, an optional heat overlay and circle markers.
package mapview

import (
	"errors"
	"sync"

	"github.com/i474232898/air-quality-map/internal/airquality"
)

// ErrReleased is returned when a layer is added to a view that has been released.
var ErrReleased = errors.New("map view released")

// TileLayer is the base raster layer, in Leaflet URL template form.
type TileLayer struct {
	URLTemplate string `json:"urlTemplate"`
	MaxZoom     int    `json:"maxZoom"`
	Attribution string `json:"attribution,omitempty"`
}

// Coordinate is a WGS 84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Options describe the initial viewport.
type Options struct {
	Center Coordinate `json:"center"`
	Zoom   int        `json:"zoom"`
	Tiles  TileLayer  `json:"tiles"`
}

// DefaultOptions centers on Africa with OpenStreetMap tiles.
func DefaultOptions() Options {
	return Options{
		Center: Coordinate{Lat: 2.5, Lon: 17.5},
		Zoom:   3,
		Tiles: TileLayer{
			URLTemplate: "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			MaxZoom:     19,
			Attribution: "&copy; OpenStreetMap contributors",
		},
	}
}

// HeatLayer is the heat overlay built from one bulk query.
type HeatLayer struct {
	Points []airquality.HeatPoint `json:"points"`
}

// CircleMarker is a colored circle with a popup.
type CircleMarker struct {
	Center      Coordinate `json:"center"`
	Radius      int        `json:"radius"`
	Color       string     `json:"color"`
	FillColor   string     `json:"fillColor"`
	FillOpacity float64    `json:"fillOpacity"`
	Popup       string     `json:"popup"`
}

// Snapshot is a point-in-time copy of a View.
type Snapshot struct {
	Options
	Heat    *HeatLayer     `json:"heat,omitempty"`
	Markers []CircleMarker `json:"markers"`
}

// View is a concurrency-safe map model. Once released it rejects every mutation.
type View struct {
	mu       sync.RWMutex
	opts     Options
	heat     *HeatLayer
	markers  []CircleMarker
	released bool
}

// New creates a view with the base tile layer from opts.
func New(opts Options) *View {
	return &View{opts: opts}
}

// Options returns the viewport the view was created with.
func (v *View) Options() Options {
	return v.opts
}

// AttachHeatLayer sets the heat overlay. A second call replaces the first.
func (v *View) AttachHeatLayer(points []airquality.HeatPoint) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.released {
		return ErrReleased
	}
	cp := make([]airquality.HeatPoint, len(points))
	copy(cp, points)
	v.heat = &HeatLayer{Points: cp}
	return nil
}

// AddMarker appends a circle marker.
func (v *View) AddMarker(m CircleMarker) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.released {
		return ErrReleased
	}
	v.markers = append(v.markers, m)
	return nil
}

// Release detaches the view. Layers already added stay visible in snapshots.
func (v *View) Release() {
	v.mu.Lock()
	v.released = true
	v.mu.Unlock()
}

// Released reports whether Release has been called.
func (v *View) Released() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.released
}

// Snapshot returns a copy of the current layers.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	snap := Snapshot{
		Options: v.opts,
		Markers: make([]CircleMarker, len(v.markers)),
	}
	copy(snap.Markers, v.markers)
	if v.heat != nil {
		pts := make([]airquality.HeatPoint, len(v.heat.Points))
		copy(pts, v.heat.Points)
		snap.Heat = &HeatLayer{Points: pts}
	}
	return snap
}
