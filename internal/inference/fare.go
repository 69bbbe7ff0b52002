package inference

// PredictFareDuration estimates the fare in dollars and the trip duration in
// seconds for a single ride. Weekend trips cost more but run faster.
func PredictFareDuration(features map[string]float64) (map[string]float64, error) {
	passengers, err := requireFeature(features, FeaturePassengerCount)
	if err != nil {
		return nil, err
	}
	if passengers < 1 || passengers > 4 {
		return nil, invalidFeaturef(FeaturePassengerCount, "must be between 1 and 4, got %g", passengers)
	}

	distance, err := requireFeature(features, FeatureTripDistance)
	if err != nil {
		return nil, err
	}
	if distance <= 0 {
		return nil, invalidFeaturef(FeatureTripDistance, "must be positive, got %g", distance)
	}

	weekend := features[FeatureIsWeekend] == 1

	fare := 15.0 + 2.5*distance + 0.5*passengers
	if weekend {
		fare *= 1.2
	}

	duration := 300.0 + 180.0*distance
	if weekend {
		duration *= 0.85 // less traffic on weekends
	}

	return map[string]float64{
		OutputFareAmount:   fare,
		OutputTripDuration: duration,
	}, nil
}
