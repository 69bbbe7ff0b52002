package database

import (
	"time"

	"github.com/google/uuid"
)

const (
	PredictionFareDuration string = "fare_duration"
	PredictionDemand       string = "demand"
)

// Feedback stores a user's rating of a prediction together with the inputs
// and outputs it concerned. The fare/duration and demand field groups are
// mutually exclusive, selected by PredictionType.
type Feedback struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	PredictionType string `gorm:"size:20;not null;index"`
	Rating         int    `gorm:"not null"`
	Comment        string
	CreationTime   time.Time

	PredictedFare     float64
	PredictedDuration float64
	PassengerCount    int
	TripDistance      float64

	PredictedDemand int
	RegionId        int
	DateHour        string
}
