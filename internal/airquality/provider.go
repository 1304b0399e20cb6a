package airquality

import "context"

// Provider abstracts an air-quality data source (e.g. WAQI).
type Provider interface {
	Name() string
	// FetchBounds returns one heat point per station inside b, in provider order.
	FetchBounds(ctx context.Context, b Bounds) ([]HeatPoint, error)
	// FetchPM25 returns the PM2.5 AQI reported nearest to loc.
	FetchPM25(ctx context.Context, loc Location) (float64, error)
}

// LocationSource supplies the cities rendered as markers.
type LocationSource interface {
	Locations() []Location
}

// StaticLocations is a fixed LocationSource.
type StaticLocations []Location

// Locations returns a copy of the list.
func (s StaticLocations) Locations() []Location {
	out := make([]Location, len(s))
	copy(out, s)
	return out
}
