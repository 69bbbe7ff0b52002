package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	backend "taxi-backend/internal/api"
	"taxi-backend/internal/broker"
	"taxi-backend/internal/database"
	"taxi-backend/internal/dispatch"
	"taxi-backend/internal/inference"
	"taxi-backend/internal/worker"
	"taxi-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

// createRouter wires the service against an in-memory broker. When models is
// non-nil a worker pool serves those queues until the test ends.
func createRouter(t *testing.T, db *gorm.DB, models map[string]inference.Func, resultTimeout time.Duration) chi.Router {
	t.Helper()

	b := broker.NewInMemoryBroker()
	if models != nil {
		pool := &worker.Pool{Broker: b, Models: models, ResultTTL: time.Minute, Concurrency: 1}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			pool.Run(ctx) //nolint:errcheck
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}

	service := backend.NewBackendService(db, dispatch.NewDispatcher(b), resultTimeout)
	router := chi.NewRouter()
	service.AddRoutes(router)
	return router
}

func defaultModels() map[string]inference.Func {
	return map[string]inference.Func{
		broker.FareDurationQueue: inference.PredictFareDuration,
		broker.DemandQueue:       inference.PredictDemand,
	}
}

func postJSON(t *testing.T, router chi.Router, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router := createRouter(t, createDB(t), nil, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredictFareDuration(t *testing.T) {
	router := createRouter(t, createDB(t), defaultModels(), 5*time.Second)

	// 2025-03-12 is a Wednesday.
	rec := postJSON(t, router, "/model/predict/fare_duration", api.FareDurationRequest{
		PassengerCount: 2,
		TripDistance:   3.5,
		PickupDatetime: "2025-03-12 14:30:00",
	})

	assert.Equal(t, http.StatusOK, rec.Code, "received response: "+rec.Body.String())
	var response api.FareDurationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.InDelta(t, 24.75, response.FareAmount, 1e-9)
	assert.InDelta(t, 930, response.TripDuration, 1e-9)
}

func TestPredictFareDurationWeekendSurcharge(t *testing.T) {
	router := createRouter(t, createDB(t), defaultModels(), 5*time.Second)

	// 2025-03-15 is a Saturday.
	rec := postJSON(t, router, "/model/predict/fare_duration", api.FareDurationRequest{
		PassengerCount: 2,
		TripDistance:   3.5,
		PickupDatetime: "2025-03-15 14:30:00",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var response api.FareDurationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.InDelta(t, 29.7, response.FareAmount, 1e-9)
	assert.InDelta(t, 790.5, response.TripDuration, 1e-9)
}

func TestPredictFareDurationValidation(t *testing.T) {
	router := createRouter(t, createDB(t), nil, time.Second)

	tests := []struct {
		name    string
		request api.FareDurationRequest
	}{
		{"too many passengers", api.FareDurationRequest{PassengerCount: 5, TripDistance: 1}},
		{"zero passengers", api.FareDurationRequest{PassengerCount: 0, TripDistance: 1}},
		{"negative distance", api.FareDurationRequest{PassengerCount: 1, TripDistance: -2}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, router, "/model/predict/fare_duration", tc.request)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPredictDemand(t *testing.T) {
	router := createRouter(t, createDB(t), defaultModels(), 5*time.Second)

	// 2025-07-12 is a Saturday: weekend, summer, morning bucket.
	rec := postJSON(t, router, "/model/predict/demand", api.DemandRequest{
		RegionId: 5,
		DateHour: "2025-07-12 09:00:00",
	})

	assert.Equal(t, http.StatusOK, rec.Code, "received response: "+rec.Body.String())
	var response api.DemandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, 56.0, response.Demand)
}

func TestPredictDemandValidation(t *testing.T) {
	router := createRouter(t, createDB(t), nil, time.Second)

	rec := postJSON(t, router, "/model/predict/demand", api.DemandRequest{RegionId: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictTimeout(t *testing.T) {
	// No worker pool: the result never arrives and the wait budget elapses.
	router := createRouter(t, createDB(t), nil, 200*time.Millisecond)

	rec := postJSON(t, router, "/model/predict/fare_duration", api.FareDurationRequest{
		PassengerCount: 1,
		TripDistance:   2,
	})

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "timed out")
}

func TestPredictModelRejection(t *testing.T) {
	router := createRouter(t, createDB(t), map[string]inference.Func{
		broker.FareDurationQueue: func(features map[string]float64) (map[string]float64, error) {
			return nil, errors.New("feature out of training range")
		},
	}, 5*time.Second)

	rec := postJSON(t, router, "/model/predict/fare_duration", api.FareDurationRequest{
		PassengerCount: 1,
		TripDistance:   2,
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "feature out of training range")
}

func TestPredictMalformedBody(t *testing.T) {
	router := createRouter(t, createDB(t), nil, time.Second)

	req := httptest.NewRequest(http.MethodPost, "/model/predict/fare_duration", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitFeedback(t *testing.T) {
	db := createDB(t)
	router := createRouter(t, db, nil, time.Second)

	rec := postJSON(t, router, "/feedback/", api.FeedbackRequest{
		PredictionType: api.PredictionFareDuration,
		Rating:         4,
		Comment:        "close enough",
		PredictedFare:  24.75,
		PassengerCount: 2,
		TripDistance:   3.5,
	})

	assert.Equal(t, http.StatusOK, rec.Code, "received response: "+rec.Body.String())
	var response api.FeedbackSubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.NotEqual(t, uuid.Nil, response.FeedbackId)

	var saved database.Feedback
	require.NoError(t, db.First(&saved, "id = ?", response.FeedbackId).Error)
	assert.Equal(t, api.PredictionFareDuration, saved.PredictionType)
	assert.Equal(t, 4, saved.Rating)
	assert.Equal(t, "close enough", saved.Comment)
}

func TestSubmitFeedbackValidation(t *testing.T) {
	router := createRouter(t, createDB(t), nil, time.Second)

	rec := postJSON(t, router, "/feedback/", api.FeedbackRequest{
		PredictionType: api.PredictionFareDuration,
		Rating:         6,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/feedback/", api.FeedbackRequest{
		PredictionType: "surge",
		Rating:         3,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown prediction_type")
}

func TestListFeedback(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	db := createDB(t,
		&database.Feedback{Id: id1, PredictionType: api.PredictionFareDuration, Rating: 5, CreationTime: time.Now().UTC().Add(-time.Hour)},
		&database.Feedback{Id: id2, PredictionType: api.PredictionDemand, Rating: 2, CreationTime: time.Now().UTC()},
	)
	router := createRouter(t, db, nil, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/feedback/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response []api.Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 2)
	// Newest first.
	assert.Equal(t, id2, response[0].Id)
	assert.Equal(t, id1, response[1].Id)

	req = httptest.NewRequest(http.MethodGet, "/feedback/?prediction_type=demand&limit=10", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	response = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 1)
	assert.Equal(t, id2, response[0].Id)

	req = httptest.NewRequest(http.MethodGet, "/feedback/?prediction_type=surge", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackStats(t *testing.T) {
	db := createDB(t,
		&database.Feedback{Id: uuid.New(), PredictionType: api.PredictionFareDuration, Rating: 5, CreationTime: time.Now().UTC()},
		&database.Feedback{Id: uuid.New(), PredictionType: api.PredictionFareDuration, Rating: 2, CreationTime: time.Now().UTC()},
		&database.Feedback{Id: uuid.New(), PredictionType: api.PredictionDemand, Rating: 4, CreationTime: time.Now().UTC()},
	)
	router := createRouter(t, db, nil, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/feedback/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response api.FeedbackStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 3, response.FeedbackCount)
	assert.InDelta(t, 11.0/3.0, response.AvgRating, 1e-9)
}

func TestFeedbackStatsEmpty(t *testing.T) {
	router := createRouter(t, createDB(t), nil, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/feedback/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response api.FeedbackStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 0, response.FeedbackCount)
	assert.Zero(t, response.AvgRating)
}
