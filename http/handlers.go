package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"mlserve/db"
	"mlserve/ml"
	"mlserve/monitoring"
)

const predictionCacheSize = 1024

// Handlers serves the prediction API over one loaded artifact. The artifact
// is set at construction and read-only afterwards, so concurrent requests
// share it without locking. A nil artifact means "no model loaded": liveness
// still answers, everything else reports service-unavailable.
type Handlers struct {
	artifact *ml.Artifact
	log      *zap.Logger
	metrics  *monitoring.Metrics
	hub      *monitoring.Hub
	cache    *lru.Cache[string, cachedPrediction]
}

// cachedPrediction is a single-predict result minus its timestamp. The model
// is a pure function of its input, so identical feature vectors may be
// answered from cache.
type cachedPrediction struct {
	Prediction     int
	PredictedClass string
	Probabilities  map[string]float64
	Confidence     float64
}

// NewHandlers builds the handler set. metrics and hub may be nil.
func NewHandlers(artifact *ml.Artifact, log *zap.Logger, metrics *monitoring.Metrics, hub *monitoring.Hub) *Handlers {
	cache, _ := lru.New[string, cachedPrediction](predictionCacheSize)
	return &Handlers{
		artifact: artifact,
		log:      log,
		metrics:  metrics,
		hub:      hub,
		cache:    cache,
	}
}

// Register wires all API routes.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleHome)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /model/info", h.handleModelInfo)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("POST /predict/batch", h.handlePredictBatch)
	if h.hub != nil {
		mux.HandleFunc("GET /ws/events", h.hub.ServeWS)
	}
}

type homeResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	ModelLoaded bool   `json:"model_loaded"`
}

func (h *Handlers) handleHome(w http.ResponseWriter, r *http.Request) {
	h.respond(w, "/", http.StatusOK, homeResponse{
		Status:      "healthy",
		Message:     "ML Model API is running",
		Timestamp:   timestamp(),
		ModelLoaded: h.artifact != nil,
	})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.artifact == nil {
		h.respond(w, "/health", http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"reason": "model not loaded",
		})
		return
	}
	h.respond(w, "/health", http.StatusOK, map[string]string{"status": "healthy"})
}

type modelInfoResponse struct {
	FeatureNames []string `json:"feature_names"`
	TargetNames  []string `json:"target_names"`
	NumFeatures  int      `json:"num_features"`
	NumClasses   int      `json:"num_classes"`
	ModelType    string   `json:"model_type"`
}

func (h *Handlers) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if h.artifact == nil {
		h.respond(w, "/model/info", http.StatusServiceUnavailable, map[string]string{"error": "model not loaded"})
		return
	}
	meta := h.artifact.Meta
	h.respond(w, "/model/info", http.StatusOK, modelInfoResponse{
		FeatureNames: meta.FeatureNames,
		TargetNames:  meta.TargetNames,
		NumFeatures:  len(meta.FeatureNames),
		NumClasses:   len(meta.TargetNames),
		ModelType:    h.artifact.ModelType,
	})
}

type predictRequest struct {
	Features json.RawMessage `json:"features"`
}

type predictResponse struct {
	Prediction     int                `json:"prediction"`
	PredictedClass string             `json:"predicted_class"`
	Probabilities  map[string]float64 `json:"probabilities"`
	Confidence     float64            `json:"confidence"`
	Timestamp      string             `json:"timestamp"`
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	const route = "/predict"
	if h.artifact == nil {
		h.respond(w, route, http.StatusServiceUnavailable, map[string]string{"error": "model not loaded"})
		return
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, route, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	features, errPayload := h.parseFeatureVector(req.Features)
	if errPayload != nil {
		h.respond(w, route, http.StatusBadRequest, errPayload)
		return
	}

	if cached, ok := h.cache.Get(cacheKey(features)); ok {
		if h.metrics != nil {
			h.metrics.CacheHitsTotal.Inc()
		}
		h.recordPrediction(cached, 1)
		h.respond(w, route, http.StatusOK, predictResponse{
			Prediction:     cached.Prediction,
			PredictedClass: cached.PredictedClass,
			Probabilities:  cached.Probabilities,
			Confidence:     cached.Confidence,
			Timestamp:      timestamp(),
		})
		return
	}

	results, err := h.runModel([][]float64{features})
	if err != nil {
		h.internalError(w, route, err)
		return
	}

	result := results[0]
	h.cache.Add(cacheKey(features), result)
	h.recordPrediction(result, 1)
	h.respond(w, route, http.StatusOK, predictResponse{
		Prediction:     result.Prediction,
		PredictedClass: result.PredictedClass,
		Probabilities:  result.Probabilities,
		Confidence:     result.Confidence,
		Timestamp:      timestamp(),
	})
}

type batchRequest struct {
	Samples json.RawMessage `json:"samples"`
}

type batchPrediction struct {
	SampleIndex    int                `json:"sample_index"`
	Prediction     int                `json:"prediction"`
	PredictedClass string             `json:"predicted_class"`
	Probabilities  map[string]float64 `json:"probabilities"`
	Confidence     float64            `json:"confidence"`
}

type batchResponse struct {
	Predictions  []batchPrediction `json:"predictions"`
	TotalSamples int               `json:"total_samples"`
	Timestamp    string            `json:"timestamp"`
}

func (h *Handlers) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	const route = "/predict/batch"
	if h.artifact == nil {
		h.respond(w, route, http.StatusServiceUnavailable, map[string]string{"error": "model not loaded"})
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, route, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	expected := len(h.artifact.Meta.FeatureNames)

	if len(req.Samples) == 0 {
		h.respond(w, route, http.StatusBadRequest, map[string]interface{}{
			"error": `missing "samples" in request body`,
			"example": map[string]interface{}{
				"samples": [][]float64{
					{5.1, 3.5, 1.4, 0.2},
					{6.2, 2.9, 4.3, 1.3},
				},
			},
		})
		return
	}
	if !looksLikeList(req.Samples) {
		h.respond(w, route, http.StatusBadRequest, map[string]string{"error": "samples must be a list"})
		return
	}

	var samples [][]float64
	if err := json.Unmarshal(req.Samples, &samples); err != nil {
		h.respond(w, route, http.StatusBadRequest, map[string]string{"error": "each sample must be a list of numbers"})
		return
	}

	// A ragged batch is one validation failure for the whole request; no
	// row is processed.
	for i, sample := range samples {
		if len(sample) != expected {
			h.respond(w, route, http.StatusBadRequest, map[string]interface{}{
				"error":             fmt.Sprintf("expected %d features per sample, got %d at sample %d", expected, len(sample), i),
				"expected_features": h.artifact.Meta.FeatureNames,
			})
			return
		}
	}

	results, err := h.runModel(samples)
	if err != nil {
		h.internalError(w, route, err)
		return
	}

	predictions := make([]batchPrediction, len(results))
	for i, result := range results {
		predictions[i] = batchPrediction{
			SampleIndex:    i,
			Prediction:     result.Prediction,
			PredictedClass: result.PredictedClass,
			Probabilities:  result.Probabilities,
			Confidence:     result.Confidence,
		}
	}
	if len(results) > 0 {
		h.recordPrediction(results[0], len(results))
	}

	h.respond(w, route, http.StatusOK, batchResponse{
		Predictions:  predictions,
		TotalSamples: len(predictions),
		Timestamp:    timestamp(),
	})
}

// parseFeatureVector applies the ordered validation of a single feature
// vector: field present, then list-shaped, then exact width. It returns a
// ready-to-send error payload on failure.
func (h *Handlers) parseFeatureVector(raw json.RawMessage) ([]float64, map[string]interface{}) {
	if len(raw) == 0 {
		return nil, map[string]interface{}{
			"error": `missing "features" in request body`,
			"example": map[string]interface{}{
				"features": []float64{5.1, 3.5, 1.4, 0.2},
			},
		}
	}
	if !looksLikeList(raw) {
		return nil, map[string]interface{}{"error": "features must be a list"}
	}

	var features []float64
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, map[string]interface{}{"error": "features must be a list of numbers"}
	}

	expected := len(h.artifact.Meta.FeatureNames)
	if len(features) != expected {
		return nil, map[string]interface{}{
			"error":             fmt.Sprintf("expected %d features, got %d", expected, len(features)),
			"expected_features": h.artifact.Meta.FeatureNames,
		}
	}
	return features, nil
}

// runModel invokes the classifier on a validated batch and shapes one result
// per row. Any classifier failure is returned as-is for the caller to turn
// into a generic internal error; it must never crash the serving loop.
func (h *Handlers) runModel(batch [][]float64) ([]cachedPrediction, error) {
	start := time.Now()
	model := h.artifact.Model
	targetNames := h.artifact.Meta.TargetNames

	preds, err := model.Predict(batch)
	if err != nil {
		return nil, err
	}
	proba, err := model.PredictProba(batch)
	if err != nil {
		return nil, err
	}
	if len(preds) != len(batch) || len(proba) != len(batch) {
		return nil, fmt.Errorf("classifier returned %d/%d rows for a batch of %d", len(preds), len(proba), len(batch))
	}

	results := make([]cachedPrediction, len(batch))
	for i := range batch {
		if preds[i] < 0 || preds[i] >= len(targetNames) {
			return nil, fmt.Errorf("predicted index %d out of range [0,%d)", preds[i], len(targetNames))
		}
		if len(proba[i]) != len(targetNames) {
			return nil, fmt.Errorf("probability row has %d entries, want %d", len(proba[i]), len(targetNames))
		}

		probabilities := make(map[string]float64, len(targetNames))
		confidence := 0.0
		for j, name := range targetNames {
			probabilities[name] = proba[i][j]
			if proba[i][j] > confidence {
				confidence = proba[i][j]
			}
		}
		results[i] = cachedPrediction{
			Prediction:     preds[i],
			PredictedClass: targetNames[preds[i]],
			Probabilities:  probabilities,
			Confidence:     confidence,
		}
	}

	if h.metrics != nil && len(results) > 0 {
		h.metrics.RecordPredict(time.Since(start).Seconds(), results[0].PredictedClass)
	}
	return results, nil
}

// recordPrediction persists and broadcasts a served prediction. A batch is
// recorded as one entry carrying its first row and the batch size, not one
// entry per row. Bookkeeping failures are logged, never surfaced to the
// client.
func (h *Handlers) recordPrediction(result cachedPrediction, batchSize int) {
	if db.Enabled() {
		if err := db.SavePrediction(result.Prediction, result.PredictedClass, result.Confidence, batchSize); err != nil {
			h.log.Warn("failed to persist prediction", zap.Error(err))
		}
	}
	if h.hub != nil {
		h.hub.Broadcast(monitoring.PredictionEvent{
			Type:           "prediction",
			PredictedClass: result.PredictedClass,
			Confidence:     result.Confidence,
			BatchSize:      batchSize,
			Timestamp:      time.Now().UTC(),
		})
	}
}

func (h *Handlers) internalError(w http.ResponseWriter, route string, err error) {
	h.log.Error("prediction failed", zap.String("route", route), zap.Error(err))
	h.respond(w, route, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func (h *Handlers) respond(w http.ResponseWriter, route string, status int, data interface{}) {
	if h.metrics != nil {
		h.metrics.RecordRequest(route, strconv.Itoa(status))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn("failed to encode response", zap.Error(err))
	}
}

// looksLikeList reports whether raw JSON is an array, distinguishing "wrong
// shape" from "right shape, bad element types".
func looksLikeList(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

func cacheKey(features []float64) string {
	return fmt.Sprintf("%v", features)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
