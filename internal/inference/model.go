// Package inference holds the prediction models applied by workers. Each
// model is a pure, deterministic function over a flat map of numeric
// features; an error return always means the input was rejected, never an
// infrastructure problem.
package inference

import "fmt"

// Feature keys shared between the API tier (which builds payloads) and the
// models (which consume them).
const (
	FeaturePassengerCount = "passenger_count"
	FeatureTripDistance   = "trip_distance"
	FeatureRegionId       = "region_id"
	FeatureDay            = "day"
	FeatureMonth          = "month"
	FeatureIsWeekend      = "is_weekend"
	FeatureTimeOfDay      = "time_of_day"
)

// Output keys.
const (
	OutputFareAmount   = "fare_amount"
	OutputTripDuration = "trip_duration"
	OutputDemand       = "demand"
)

// Func is the contract a worker invokes per job.
type Func func(features map[string]float64) (map[string]float64, error)

// InvalidFeatureError reports an out-of-range or missing feature value.
type InvalidFeatureError struct {
	Feature string
	Reason  string
}

func (e *InvalidFeatureError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Feature, e.Reason)
}

func invalidFeaturef(feature, format string, args ...any) error {
	return &InvalidFeatureError{Feature: feature, Reason: fmt.Sprintf(format, args...)}
}

func requireFeature(features map[string]float64, key string) (float64, error) {
	value, ok := features[key]
	if !ok {
		return 0, invalidFeaturef(key, "feature is missing")
	}
	return value, nil
}
