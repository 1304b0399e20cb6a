package locations

import (
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"
)

// Geocoder resolves an entry to coordinates.
type Geocoder interface {
	Geocode(e Entry) (lat, lon float64, err error)
}

// GoogleGeocoder resolves entries with the Google Geocoding API.
type GoogleGeocoder struct {
	APIKey string
}

// the geocoder package keeps its key in a package variable
var geocoderMu sync.Mutex

func (g GoogleGeocoder) Geocode(e Entry) (float64, float64, error) {
	city := e.City
	if city == "" {
		city = e.Name
	}

	geocoderMu.Lock()
	defer geocoderMu.Unlock()

	geocoder.ApiKey = g.APIKey
	loc, err := geocoder.Geocoding(geocoder.Address{
		City:    city,
		Country: e.Country,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("google geocoding: %w", err)
	}
	return loc.Latitude, loc.Longitude, nil
}
