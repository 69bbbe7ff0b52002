package inference

import "time"

// Time-of-day buckets, encoded numerically so they fit the flat feature map.
const (
	TimeOfDayMorning   = 0 // 05:00-11:59
	TimeOfDayAfternoon = 1 // 12:00-17:59
	TimeOfDayNight     = 2 // everything else
)

var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ExtractTimeFeatures derives the temporal model inputs from a datetime
// string. An unparseable or empty value falls back to the current time
// rather than failing: the pickup time is optional upstream.
func ExtractTimeFeatures(value string) map[string]float64 {
	t := time.Now()
	for _, layout := range datetimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t = parsed
			break
		}
	}

	isWeekend := 0.0
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		isWeekend = 1.0
	}

	return map[string]float64{
		FeatureDay:       float64(t.Day()),
		FeatureMonth:     float64(t.Month()),
		FeatureIsWeekend: isWeekend,
		FeatureTimeOfDay: float64(timeOfDayBucket(t.Hour())),
	}
}

func timeOfDayBucket(hour int) int {
	switch {
	case hour >= 5 && hour <= 11:
		return TimeOfDayMorning
	case hour >= 12 && hour <= 17:
		return TimeOfDayAfternoon
	default:
		return TimeOfDayNight
	}
}
