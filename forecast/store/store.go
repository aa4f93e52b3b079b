package store

import (
	"context"
	"errors"
	"time"

	"github.com/tanpawarit/bizai-insight/forecast/model"
)

var (
	ErrArtifactNotFound = errors.New("model not found")
	ErrInvalidArtifact  = errors.New("invalid artifact")
)

// Artifact is one committed model version for a tenant. Seq increases by one
// per commit within a tenant.
type Artifact struct {
	ID           string             `json:"artifact_id"`
	BusinessID   string             `json:"business_id"`
	Seq          int64              `json:"seq"`
	Version      string             `json:"model_version"`
	ModelType    string             `json:"model_type"`
	Metrics      model.Metrics      `json:"metrics"`
	TrainingInfo model.TrainingInfo `json:"training_info"`
	Snapshot     model.Snapshot     `json:"snapshot"`
	CreatedAt    time.Time          `json:"created_at"`
}

func (a Artifact) validate() error {
	if a.BusinessID == "" || a.ID == "" || a.Version == "" {
		return ErrInvalidArtifact
	}
	return nil
}

// Store maps tenant id to versioned artifacts. Commit is the only writer and
// is serialized per tenant; readers see the last committed artifact.
type Store interface {
	Commit(ctx context.Context, a Artifact) (Artifact, error)
	Latest(ctx context.Context, businessID string) (Artifact, error)
	Get(ctx context.Context, businessID, version string) (Artifact, error)
}
