package airquality

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedPayload is returned when a provider response does not have the expected shape.
	ErrUnexpectedPayload = errors.New("unexpected payload shape")
	// ErrMissingReading is returned when a station feed carries no PM2.5 value.
	ErrMissingReading = errors.New("station feed has no pm25 reading")
)

// Location is a named place of interest rendered as a single marker.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// String returns the provider's geo key for the location, e.g. "geo:6.5244;3.3792".
func (l Location) String() string {
	return fmt.Sprintf("geo:%g;%g", l.Lat, l.Lon)
}

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// WorldBounds covers the full latitude and longitude range.
var WorldBounds = Bounds{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}

// HeatPoint is a single weighted point of the heat overlay.
type HeatPoint struct {
	Lat       float64
	Lon       float64
	Intensity float64
}

// MarshalJSON encodes the point as [lat, lon, intensity], the layout Leaflet.heat expects.
func (p HeatPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{p.Lat, p.Lon, p.Intensity})
}

// UnmarshalJSON decodes the [lat, lon, intensity] layout.
func (p *HeatPoint) UnmarshalJSON(b []byte) error {
	var raw [3]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.Lat, p.Lon, p.Intensity = raw[0], raw[1], raw[2]
	return nil
}

// CityReading is the PM2.5 reading of one location at the time it was fetched.
type CityReading struct {
	Location Location `json:"location"`
	PM25     float64  `json:"pm25"`
	Category Category `json:"category"`
}

// NewCityReading classifies the PM2.5 value for loc.
func NewCityReading(loc Location, pm25 float64) CityReading {
	return CityReading{
		Location: loc,
		PM25:     pm25,
		Category: Classify(pm25),
	}
}
