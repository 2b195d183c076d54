// Package httpapi exposes the classifier over HTTP/JSON:
//
//	POST /mnist/predict  {"pixels": [784 numbers]} → {"predicted_label", "probabilities"}
//	GET  /health         liveness, no dependency checks
//	GET  /metrics        Prometheus exposition
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/httpx"
	"github.com/dmitrijs2005/mnistlab/internal/logging"
	"github.com/dmitrijs2005/mnistlab/internal/mnist"
)

const maxBodyBytes = 1 << 20

// Predictor is the model handle the API serves.
type Predictor interface {
	Predict(pixels []float64) (int, mnist.Probabilities, error)
}

type PredictRequest struct {
	Pixels []float64 `json:"pixels" validate:"required,len=784,dive,gte=0,lte=255"`
}

type PredictResponse struct {
	PredictedLabel int                 `json:"predicted_label"`
	Probabilities  mnist.Probabilities `json:"probabilities"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type API struct {
	model    Predictor
	version  string
	logger   logging.Logger
	metrics  *httpx.Metrics
	validate *validator.Validate

	predictions *prometheus.CounterVec
	latency     prometheus.Histogram
}

func New(model Predictor, version string, l logging.Logger, m *httpx.Metrics) *API {
	a := &API{
		model:    model,
		version:  version,
		logger:   l.With("module", "predict_api"),
		metrics:  m,
		validate: validator.New(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "mnist_predictions_total",
			Help:        "Predictions served, by predicted label",
			ConstLabels: prometheus.Labels{"model_version": version},
		}, []string{"label"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "mnist_prediction_duration_seconds",
			Help:        "Time spent in the forward pass",
			ConstLabels: prometheus.Labels{"model_version": version},
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	m.Registry.MustRegister(a.predictions, a.latency)
	return a
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.Instrument(a.metrics, a.logger))

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", a.metrics.Handler())
	r.Post("/mnist/predict", a.handlePredict)

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: common.InferenceServiceName})
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, err := a.decode(w, r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	label, probs, err := a.model.Predict(req.Pixels)
	a.latency.Observe(time.Since(start).Seconds())
	if err != nil {
		a.logger.Error(r.Context(), "prediction failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	a.predictions.WithLabelValues(strconv.Itoa(label)).Inc()
	a.logger.Debug(r.Context(), "prediction served", "label", label, "confidence", probs[label])

	httpx.WriteJSON(w, http.StatusOK, PredictResponse{PredictedLabel: label, Probabilities: probs})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request) (*PredictRequest, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	var req PredictRequest
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", common.ErrorValidation, maxBodyBytes)
		}
		return nil, fmt.Errorf("%w: malformed JSON: %v", common.ErrorValidation, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON body", common.ErrorValidation)
	}

	if err := a.validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%w: pixels must be %d values in [0,255] (got %d)", common.ErrorValidation, mnist.Pixels, len(req.Pixels))
	}
	return &req, nil
}
