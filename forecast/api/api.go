package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/tanpawarit/bizai-insight/forecast/model"
	"github.com/tanpawarit/bizai-insight/forecast/service"
	"github.com/tanpawarit/bizai-insight/forecast/store"
	logx "github.com/tanpawarit/bizai-insight/pkg/logger"
	qstashx "github.com/tanpawarit/bizai-insight/pkg/qstash"
)

const maxBodyBytes = 10 << 20

type Config struct {
	Addr string `envconfig:"ADDR" split_words:"true" default:":8080"`
	// PublicURL is the externally reachable base URL. When set, QStash
	// signatures must name this service's /retrain as their subject.
	PublicURL  string `envconfig:"PUBLIC_URL" split_words:"true"`
	BusinessID string `envconfig:"BUSINESS_ID" split_words:"true" default:"biz_001"`
}

func (c Config) RetrainURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.PublicURL), "/")
	if base == "" {
		return ""
	}
	return base + "/retrain"
}

// Forecasts is the service surface the handlers need.
type Forecasts interface {
	Retrain(ctx context.Context, req service.RetrainRequest) (service.RetrainResponse, error)
	Predict(ctx context.Context, req service.PredictRequest) (service.PredictResponse, error)
	PredictFast(ctx context.Context, req service.PredictFastRequest) (service.PredictResponse, error)
	Artifact(ctx context.Context, businessID, version string) (store.Artifact, error)
}

type Handler struct {
	svc        Forecasts
	verifier   *qstashx.Verifier
	retrainURL string
}

func NewHandler(svc Forecasts, verifier *qstashx.Verifier, cfg Config) *Handler {
	return &Handler{svc: svc, verifier: verifier, retrainURL: cfg.RetrainURL()}
}

func (h *Handler) Routes(logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logx.Middleware(logger))

	r.Get("/healthz", h.healthz)
	r.Post("/retrain", h.retrain)
	r.Post("/predict", h.predict)
	r.Post("/predict_custom", h.predict)
	r.Post("/predict-fast", h.predictFast)
	r.Get("/models/{business_id}", h.download)
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) retrain(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large or unreadable")
		return
	}

	if h.verifier.Enabled() {
		if err := h.verifier.Verify(r.Header.Get(qstashx.SignatureHeader), body, h.retrainURL); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("rejected retrain signature")
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var req service.RetrainRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.svc.Retrain(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	var req service.PredictRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Predict(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) predictFast(w http.ResponseWriter, r *http.Request) {
	var req service.PredictFastRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.PredictFast(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	businessID := chi.URLParam(r, "business_id")
	art, err := h.svc.Artifact(r.Context(), businessID, r.URL.Query().Get("version"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.BusinessID+"-"+art.Version+".json"))
	writeJSON(w, http.StatusOK, art)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusNotFound:
		msg = "Model not found"
	case http.StatusInternalServerError:
		hlog.FromRequest(r).Error().Err(err).Msg("forecast request failed")
	}
	writeError(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, model.ErrInvalidRecords):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"response could not be encoded"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(raw, '\n'))
}
