// Package locations loads the static list of cities rendered as markers.
package locations

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/i474232898/air-quality-map/internal/airquality"
)

//go:embed cities.yaml
var defaultCities []byte

var validate = validator.New()

// ErrNoCoordinates is returned for an entry without lat/lon when no geocoder is available.
var ErrNoCoordinates = errors.New("location has no coordinates")

// Entry is one item of a locations file. City and Country default to Name
// and are only used for geocoding.
type Entry struct {
	Name    string   `mapstructure:"name" validate:"required"`
	City    string   `mapstructure:"city"`
	Country string   `mapstructure:"country"`
	Lat     *float64 `mapstructure:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon     *float64 `mapstructure:"lon" validate:"omitempty,gte=-180,lte=180"`
}

// Load reads the locations file at path, or the embedded default list when
// path is empty. gc may be nil.
func Load(path string, gc Geocoder) (airquality.StaticLocations, error) {
	v := viper.New()
	if path == "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader(defaultCities)); err != nil {
			return nil, fmt.Errorf("read default locations: %w", err)
		}
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read locations file %s: %w", path, err)
		}
	}

	var entries []Entry
	if err := v.UnmarshalKey("locations", &entries); err != nil {
		return nil, fmt.Errorf("unmarshal locations: %w", err)
	}

	return Resolve(entries, gc)
}

// Resolve validates entries and fills in missing coordinates through gc.
func Resolve(entries []Entry, gc Geocoder) (airquality.StaticLocations, error) {
	if len(entries) == 0 {
		return nil, errors.New("no locations configured")
	}

	out := make(airquality.StaticLocations, 0, len(entries))
	for i, e := range entries {
		if err := validate.Struct(e); err != nil {
			return nil, fmt.Errorf("location %d (%q): %w", i, e.Name, err)
		}

		loc := airquality.Location{Name: e.Name}
		if e.Lat != nil && e.Lon != nil {
			loc.Lat, loc.Lon = *e.Lat, *e.Lon
			out = append(out, loc)
			continue
		}

		if gc == nil {
			return nil, fmt.Errorf("location %q: %w", e.Name, ErrNoCoordinates)
		}
		lat, lon, err := gc.Geocode(e)
		if err != nil {
			return nil, fmt.Errorf("geocode %q: %w", e.Name, err)
		}
		slog.Info("geocoded location", "name", e.Name, "lat", lat, "lon", lon)
		loc.Lat, loc.Lon = lat, lon
		out = append(out, loc)
	}
	return out, nil
}
