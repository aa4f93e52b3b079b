package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tanpawarit/bizai-insight/forecast/service"
	qstashx "github.com/tanpawarit/bizai-insight/pkg/qstash"
)

const (
	StatusTrained = "trained"
	StatusQueued  = "queued"
)

type RetrainReceipt struct {
	Status    string                   `json:"status"`
	MessageID string                   `json:"message_id,omitempty"`
	Result    *service.RetrainResponse `json:"result,omitempty"`
}

// Retrainer submits a retrain job, either inline or through a queue.
type Retrainer interface {
	SubmitRetrain(ctx context.Context, req service.RetrainRequest) (RetrainReceipt, error)
}

var (
	_ Retrainer = (*Client)(nil)
	_ Retrainer = (*Dispatcher)(nil)
)

type Publisher interface {
	PublishJSON(ctx context.Context, destination string, payload any) (qstashx.PublishResponse, error)
}

// Dispatcher hands retrain jobs to QStash, which delivers them to the
// forecast service with retries.
type Dispatcher struct {
	pub         Publisher
	destination string
}

func NewDispatcher(pub Publisher, destination string) (*Dispatcher, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, errors.New("retrain destination is required")
	}
	return &Dispatcher{pub: pub, destination: destination}, nil
}

func (d *Dispatcher) SubmitRetrain(ctx context.Context, req service.RetrainRequest) (RetrainReceipt, error) {
	res, err := d.pub.PublishJSON(ctx, d.destination, req)
	if err != nil {
		return RetrainReceipt{}, fmt.Errorf("queue retrain: %w", err)
	}
	return RetrainReceipt{Status: StatusQueued, MessageID: res.MessageID}, nil
}
