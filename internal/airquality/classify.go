package airquality

// Category is the color band of an AQI value. Values are valid CSS color names.
type Category string

const (
	CategoryGreen  Category = "green"
	CategoryYellow Category = "yellow"
	CategoryOrange Category = "orange"
	CategoryRed    Category = "red"
	CategoryPurple Category = "purple"
	CategoryMaroon Category = "maroon"
)

// Classify maps an AQI value to its color band. Upper bounds are inclusive
// and checked in ascending order.
func Classify(aqi float64) Category {
	switch {
	case aqi <= 50:
		return CategoryGreen
	case aqi <= 100:
		return CategoryYellow
	case aqi <= 150:
		return CategoryOrange
	case aqi <= 200:
		return CategoryRed
	case aqi <= 300:
		return CategoryPurple
	default:
		return CategoryMaroon
	}
}
