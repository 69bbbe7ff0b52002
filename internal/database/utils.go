package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

func SaveFeedback(ctx context.Context, db *gorm.DB, feedback *Feedback) error {
	if err := db.WithContext(ctx).Create(feedback).Error; err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

func ListFeedback(ctx context.Context, db *gorm.DB, predictionType string, limit int) ([]Feedback, error) {
	query := db.WithContext(ctx).Order("creation_time desc")
	if predictionType != "" {
		query = query.Where("prediction_type = ?", predictionType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []Feedback
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("could not query feedback: %w", err)
	}
	return rows, nil
}

// GetFeedbackStats aggregates the count and mean rating over all feedback.
func GetFeedbackStats(ctx context.Context, db *gorm.DB) (int64, float64, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&Feedback{}).Count(&count).Error; err != nil {
		return 0, 0, fmt.Errorf("could not count feedback: %w", err)
	}
	if count == 0 {
		return 0, 0, nil
	}

	var avg float64
	if err := db.WithContext(ctx).Model(&Feedback{}).Select("avg(rating)").Scan(&avg).Error; err != nil {
		return 0, 0, fmt.Errorf("could not aggregate ratings: %w", err)
	}
	return count, avg, nil
}
