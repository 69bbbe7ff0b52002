package inference

import "math"

// PredictDemand estimates the number of pickup requests for a region at a
// given hour. The base demand is scaled by weekend, time-of-day, seasonal,
// and per-region factors.
func PredictDemand(features map[string]float64) (map[string]float64, error) {
	region, err := requireFeature(features, FeatureRegionId)
	if err != nil {
		return nil, err
	}
	if region < 0 || region != math.Trunc(region) {
		return nil, invalidFeaturef(FeatureRegionId, "must be a non-negative integer, got %g", region)
	}

	const baseDemand = 20.0

	weekendFactor := 1.0
	if features[FeatureIsWeekend] == 1 {
		weekendFactor = 1.5
	}

	timeOfDayFactor := 1.0
	switch features[FeatureTimeOfDay] {
	case TimeOfDayMorning:
		timeOfDayFactor = 1.2 // rush hour
	case TimeOfDayNight:
		timeOfDayFactor = 0.8
	}

	monthFactor := 1.0
	switch features[FeatureMonth] {
	case 12, 1, 2: // winter
		monthFactor = 0.9
	case 6, 7, 8: // summer
		monthFactor = 1.2
	}

	regionFactor := 0.8 + math.Mod(region, 10)/10

	demand := math.Floor(baseDemand * weekendFactor * timeOfDayFactor * monthFactor * regionFactor)

	return map[string]float64{OutputDemand: demand}, nil
}
