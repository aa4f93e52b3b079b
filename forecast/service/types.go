package service

import (
	"github.com/tanpawarit/bizai-insight/forecast/model"
)

type RetrainRequest struct {
	BusinessID string              `json:"business_id"`
	Data       []model.DailyRecord `json:"data"`
	model.Hyperparameters
}

type RetrainMetrics struct {
	model.Metrics
	ModelVersion string `json:"model_version"`
}

type RetrainResponse struct {
	Status       string             `json:"status"`
	BusinessID   string             `json:"business_id"`
	ArtifactID   string             `json:"artifact_id"`
	ModelType    string             `json:"model_type"`
	ModelVersion string             `json:"model_version"`
	Metrics      RetrainMetrics     `json:"metrics"`
	TrainingInfo model.TrainingInfo `json:"training_info"`
}

// Horizon selects the days to forecast. Future wins over the date range; an
// empty range starts the day after the latest known date and spans
// output_chunk_length days.
type Horizon struct {
	BeginDate string            `json:"begin_date,omitempty"`
	EndDate   string            `json:"end_date,omitempty"`
	Future    []model.FutureDay `json:"future_data,omitempty"`
}

// PredictRequest trains on Data in memory and forecasts from it. Nothing is
// persisted.
type PredictRequest struct {
	BusinessID string              `json:"business_id"`
	Data       []model.DailyRecord `json:"data"`
	ItemIDs    []string            `json:"item_ids,omitempty"`
	Horizon
	model.Hyperparameters
}

// PredictFastRequest forecasts from the tenant's latest artifact, optionally
// extended with recent records.
type PredictFastRequest struct {
	BusinessID string              `json:"business_id"`
	ItemIDs    []string            `json:"item_ids"`
	RecentData []model.DailyRecord `json:"recent_data,omitempty"`
	Horizon
}

type DayForecast struct {
	Date        string             `json:"date"`
	Predictions []model.Prediction `json:"predictions"`
}

type PredictResponse struct {
	BusinessID   string        `json:"business_id"`
	ModelVersion string        `json:"model_version,omitempty"`
	Forecast     []DayForecast `json:"forecast"`
}
