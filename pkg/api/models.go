// Package api defines the request and response bodies of the HTTP endpoints.
package api

import (
	"time"

	"github.com/google/uuid"
)

const (
	PredictionFareDuration = "fare_duration"
	PredictionDemand       = "demand"
)

type FareDurationRequest struct {
	PassengerCount int     `json:"passenger_count"`
	TripDistance   float64 `json:"trip_distance"`
	// PickupDatetime is "YYYY-MM-DD HH:MM:SS"; empty means now.
	PickupDatetime string `json:"pickup_datetime,omitempty"`
}

type FareDurationResponse struct {
	Success      bool    `json:"success"`
	FareAmount   float64 `json:"fare_amount"`
	TripDuration float64 `json:"trip_duration"`
}

type DemandRequest struct {
	RegionId int `json:"region_id"`
	// DateHour is "YYYY-MM-DD HH:MM:SS"; empty means now.
	DateHour string `json:"date_hour,omitempty"`
}

type DemandResponse struct {
	Success bool    `json:"success"`
	Demand  float64 `json:"demand"`
}

type FeedbackRequest struct {
	PredictionType string `json:"prediction_type"`
	Rating         int    `json:"rating"`
	Comment        string `json:"comment,omitempty"`

	PredictedFare     float64 `json:"predicted_fare,omitempty"`
	PredictedDuration float64 `json:"predicted_duration,omitempty"`
	PassengerCount    int     `json:"passenger_count,omitempty"`
	TripDistance      float64 `json:"trip_distance,omitempty"`

	PredictedDemand int    `json:"predicted_demand,omitempty"`
	RegionId        int    `json:"region_id,omitempty"`
	DateHour        string `json:"date_hour,omitempty"`
}

type FeedbackSubmitResponse struct {
	Message    string    `json:"message"`
	FeedbackId uuid.UUID `json:"feedback_id"`
}

type Feedback struct {
	Id             uuid.UUID `json:"id"`
	PredictionType string    `json:"prediction_type"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment,omitempty"`
	CreationTime   time.Time `json:"creation_time"`

	PredictedFare     float64 `json:"predicted_fare,omitempty"`
	PredictedDuration float64 `json:"predicted_duration,omitempty"`
	PassengerCount    int     `json:"passenger_count,omitempty"`
	TripDistance      float64 `json:"trip_distance,omitempty"`

	PredictedDemand int    `json:"predicted_demand,omitempty"`
	RegionId        int    `json:"region_id,omitempty"`
	DateHour        string `json:"date_hour,omitempty"`
}

type FeedbackStats struct {
	FeedbackCount int     `json:"feedback_count"`
	AvgRating     float64 `json:"avg_rating"`
}

type FeedbackListRequest struct {
	PredictionType string `schema:"prediction_type"`
	Limit          int    `schema:"limit"`
}
