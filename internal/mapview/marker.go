package mapview

import (
	"html"
	"strconv"

	"github.com/i474232898/air-quality-map/internal/airquality"
)

const (
	markerRadius      = 10
	markerFillOpacity = 0.5
)

// MarkerFor builds the circle marker of a city reading: outline and fill in
// the reading's category color and a "<name><br>PM2.5: <value>" popup.
func MarkerFor(r airquality.CityReading) CircleMarker {
	color := string(r.Category)
	return CircleMarker{
		Center:      Coordinate{Lat: r.Location.Lat, Lon: r.Location.Lon},
		Radius:      markerRadius,
		Color:       color,
		FillColor:   color,
		FillOpacity: markerFillOpacity,
		Popup:       PopupText(r.Location.Name, r.PM25),
	}
}

// PopupText formats a marker popup. The name is HTML-escaped; the line break is markup.
func PopupText(name string, pm25 float64) string {
	return html.EscapeString(name) + "<br>PM2.5: " + strconv.FormatFloat(pm25, 'f', -1, 64)
}
