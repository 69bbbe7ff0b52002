package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"taxi-backend/internal/broker"
	"taxi-backend/internal/database"
	"taxi-backend/internal/dispatch"
	"taxi-backend/internal/inference"
	"taxi-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BackendService routes prediction requests through the dispatcher and
// persists user feedback. One dispatcher serves all requests; each request
// waits only on its own correlation id.
type BackendService struct {
	db            *gorm.DB
	dispatcher    *dispatch.Dispatcher
	resultTimeout time.Duration
}

func NewBackendService(db *gorm.DB, dispatcher *dispatch.Dispatcher, resultTimeout time.Duration) *BackendService {
	return &BackendService{db: db, dispatcher: dispatcher, resultTimeout: resultTimeout}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/model", func(r chi.Router) {
		r.Post("/predict/fare_duration", RestHandler(s.PredictFareDuration))
		r.Post("/predict/demand", RestHandler(s.PredictDemand))
	})
	r.Route("/feedback", func(r chi.Router) {
		r.Post("/", RestHandler(s.SubmitFeedback))
		r.Get("/", RestHandler(s.ListFeedback))
		r.Get("/stats", RestHandler(s.GetFeedbackStats))
	})
}

// runPrediction submits one job and waits, bounded, for its result, mapping
// each dispatch outcome to a distinct status: 503 when the queue is down,
// 504 when the budget elapses, 422 when the model rejected the input.
func (s *BackendService) runPrediction(ctx context.Context, queue string, payload map[string]float64) (map[string]float64, error) {
	jobId, err := s.dispatcher.Submit(ctx, queue, payload)
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidPayload) {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid prediction payload")
		}
		if errors.Is(err, broker.ErrUnavailable) {
			slog.Error("broker unavailable on submit", "queue", queue, "error", err)
			return nil, CodedErrorf(http.StatusServiceUnavailable, "prediction service unavailable")
		}
		slog.Error("error submitting prediction job", "queue", queue, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue prediction")
	}

	result, err := s.dispatcher.AwaitResult(ctx, jobId, s.resultTimeout)
	if err != nil {
		if errors.Is(err, dispatch.ErrTimeout) {
			slog.Warn("prediction timed out", "job_id", jobId, "queue", queue)
			return nil, CodedErrorf(http.StatusGatewayTimeout, "prediction timed out, please try again later")
		}
		if errors.Is(err, broker.ErrUnavailable) {
			slog.Error("broker unavailable awaiting result", "job_id", jobId, "error", err)
			return nil, CodedErrorf(http.StatusServiceUnavailable, "prediction service unavailable")
		}
		slog.Error("error awaiting prediction result", "job_id", jobId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to retrieve prediction")
	}

	if result.Status == broker.StatusFailed {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "model rejected input: %s", result.Error)
	}
	return result.Output, nil
}

func (s *BackendService) PredictFareDuration(r *http.Request) (any, error) {
	req, err := ParseRequest[api.FareDurationRequest](r)
	if err != nil {
		return nil, err
	}

	if req.PassengerCount < 1 || req.PassengerCount > 4 {
		return nil, CodedErrorf(http.StatusBadRequest, "passenger_count must be between 1 and 4")
	}
	if req.TripDistance <= 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "trip_distance must be positive")
	}

	payload := inference.ExtractTimeFeatures(req.PickupDatetime)
	payload[inference.FeaturePassengerCount] = float64(req.PassengerCount)
	payload[inference.FeatureTripDistance] = req.TripDistance

	output, err := s.runPrediction(r.Context(), broker.FareDurationQueue, payload)
	if err != nil {
		return nil, err
	}

	return api.FareDurationResponse{
		Success:      true,
		FareAmount:   output[inference.OutputFareAmount],
		TripDuration: output[inference.OutputTripDuration],
	}, nil
}

func (s *BackendService) PredictDemand(r *http.Request) (any, error) {
	req, err := ParseRequest[api.DemandRequest](r)
	if err != nil {
		return nil, err
	}

	if req.RegionId < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "region_id must be non-negative")
	}

	payload := inference.ExtractTimeFeatures(req.DateHour)
	payload[inference.FeatureRegionId] = float64(req.RegionId)

	output, err := s.runPrediction(r.Context(), broker.DemandQueue, payload)
	if err != nil {
		return nil, err
	}

	return api.DemandResponse{
		Success: true,
		Demand:  output[inference.OutputDemand],
	}, nil
}

func (s *BackendService) SubmitFeedback(r *http.Request) (any, error) {
	req, err := ParseRequest[api.FeedbackRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Rating < 1 || req.Rating > 5 {
		return nil, CodedErrorf(http.StatusBadRequest, "rating must be between 1 and 5")
	}
	if req.PredictionType != api.PredictionFareDuration && req.PredictionType != api.PredictionDemand {
		return nil, CodedErrorf(http.StatusBadRequest, "unknown prediction_type '%s'", req.PredictionType)
	}

	feedback := &database.Feedback{
		Id:             uuid.New(),
		PredictionType: req.PredictionType,
		Rating:         req.Rating,
		Comment:        req.Comment,
		CreationTime:   time.Now().UTC(),

		PredictedFare:     req.PredictedFare,
		PredictedDuration: req.PredictedDuration,
		PassengerCount:    req.PassengerCount,
		TripDistance:      req.TripDistance,

		PredictedDemand: req.PredictedDemand,
		RegionId:        req.RegionId,
		DateHour:        req.DateHour,
	}

	if err := database.SaveFeedback(r.Context(), s.db, feedback); err != nil {
		slog.Error("error saving feedback", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to save feedback")
	}

	return api.FeedbackSubmitResponse{Message: "Feedback submitted successfully", FeedbackId: feedback.Id}, nil
}

func (s *BackendService) ListFeedback(r *http.Request) (any, error) {
	req, err := ParseRequestQueryParams[api.FeedbackListRequest](r)
	if err != nil {
		return nil, err
	}

	if req.PredictionType != "" && req.PredictionType != api.PredictionFareDuration && req.PredictionType != api.PredictionDemand {
		return nil, CodedErrorf(http.StatusBadRequest, "unknown prediction_type '%s'", req.PredictionType)
	}
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	rows, err := database.ListFeedback(r.Context(), s.db, req.PredictionType, limit)
	if err != nil {
		slog.Error("error listing feedback", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to list feedback")
	}

	feedback := make([]api.Feedback, 0, len(rows))
	for _, row := range rows {
		feedback = append(feedback, api.Feedback{
			Id:             row.Id,
			PredictionType: row.PredictionType,
			Rating:         row.Rating,
			Comment:        row.Comment,
			CreationTime:   row.CreationTime,

			PredictedFare:     row.PredictedFare,
			PredictedDuration: row.PredictedDuration,
			PassengerCount:    row.PassengerCount,
			TripDistance:      row.TripDistance,

			PredictedDemand: row.PredictedDemand,
			RegionId:        row.RegionId,
			DateHour:        row.DateHour,
		})
	}
	return feedback, nil
}

func (s *BackendService) GetFeedbackStats(r *http.Request) (any, error) {
	count, avg, err := database.GetFeedbackStats(r.Context(), s.db)
	if err != nil {
		slog.Error("error aggregating feedback stats", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to compute feedback stats")
	}

	return api.FeedbackStats{FeedbackCount: int(count), AvgRating: avg}, nil
}
