package http

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"testing"

	"go.uber.org/zap"

	"mlserve/ml"
)

func TestHandlePredict(t *testing.T) {
	model := &fakeClassifier{label: 0, proba: []float64{0.8, 0.15, 0.05}}
	mux := newTestMux(t, model)

	w, payload := doJSON(t, mux, http.MethodPost, "/predict", `{"features":[5.1,3.5,1.4,0.2]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, payload)
	}

	if payload["prediction"].(float64) != 0 {
		t.Fatalf("unexpected prediction: %v", payload["prediction"])
	}
	if payload["predicted_class"] != "setosa" {
		t.Fatalf("unexpected predicted_class: %v", payload["predicted_class"])
	}
	if math.Abs(payload["confidence"].(float64)-0.8) > 1e-9 {
		t.Fatalf("unexpected confidence: %v", payload["confidence"])
	}
	if payload["timestamp"] == nil {
		t.Fatal("expected timestamp")
	}

	// All target labels must be present, not just the winner, and the
	// mapping must sum to 1.
	probs := payload["probabilities"].(map[string]interface{})
	if len(probs) != 3 {
		t.Fatalf("expected 3 probability entries, got %d", len(probs))
	}
	sum := 0.0
	for _, name := range []string{"setosa", "versicolor", "virginica"} {
		p, ok := probs[name].(float64)
		if !ok {
			t.Fatalf("missing probability for %s", name)
		}
		if p < 0 || p > 1 {
			t.Fatalf("probability for %s out of range: %f", name, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Fatalf("probabilities sum to %f", sum)
	}
}

func TestHandlePredictMissingFeatures(t *testing.T) {
	model := &fakeClassifier{label: 0, proba: []float64{1, 0, 0}}
	mux := newTestMux(t, model)

	w, payload := doJSON(t, mux, http.MethodPost, "/predict", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(payload["error"].(string), "missing") {
		t.Fatalf("unexpected error: %v", payload["error"])
	}
	if payload["example"] == nil {
		t.Fatal("expected example payload")
	}
	if model.predictCalls != 0 {
		t.Fatalf("classifier invoked %d times on invalid input", model.predictCalls)
	}
}

func TestHandlePredictFeaturesNotAList(t *testing.T) {
	model := &fakeClassifier{label: 0, proba: []float64{1, 0, 0}}
	mux := newTestMux(t, model)

	for _, body := range []string{`{"features":5}`, `{"features":{"a":1}}`, `{"features":"nope"}`, `{"features":null}`} {
		w, payload := doJSON(t, mux, http.MethodPost, "/predict", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, w.Code)
		}
		if !strings.Contains(payload["error"].(string), "must be a list") {
			t.Fatalf("body %s: unexpected error: %v", body, payload["error"])
		}
	}
	if model.predictCalls != 0 {
		t.Fatalf("classifier invoked %d times on invalid input", model.predictCalls)
	}
}

func TestHandlePredictWrongLength(t *testing.T) {
	model := &fakeClassifier{label: 0, proba: []float64{1, 0, 0}}
	mux := newTestMux(t, model)

	w, payload := doJSON(t, mux, http.MethodPost, "/predict", `{"features":[5.1,3.5,1.4]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(payload["error"].(string), "expected 4 features, got 3") {
		t.Fatalf("unexpected error: %v", payload["error"])
	}
	expected := payload["expected_features"].([]interface{})
	if len(expected) != 4 || expected[0] != "sepal_length" {
		t.Fatalf("unexpected expected_features: %v", expected)
	}
	if model.predictCalls != 0 {
		t.Fatalf("classifier invoked %d times on invalid input", model.predictCalls)
	}
}

func TestHandlePredictClassifierFailure(t *testing.T) {
	model := &fakeClassifier{err: errors.New("boom")}
	mux := newTestMux(t, model)

	w, payload := doJSON(t, mux, http.MethodPost, "/predict", `{"features":[5.1,3.5,1.4,0.2]}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	// Internal detail must not leak to the client.
	if payload["error"] != "internal server error" {
		t.Fatalf("unexpected error body: %v", payload["error"])
	}
}

func TestHandlePredictUnloaded(t *testing.T) {
	mux := newUnloadedMux(t)
	w, _ := doJSON(t, mux, http.MethodPost, "/predict", `{"features":[5.1,3.5,1.4,0.2]}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandlePredictServesIdenticalInputFromCache(t *testing.T) {
	model := &fakeClassifier{label: 1, proba: []float64{0.1, 0.7, 0.2}}
	mux := newTestMux(t, model)

	first, firstPayload := doJSON(t, mux, http.MethodPost, "/predict", `{"features":[6.2,2.9,4.3,1.3]}`)
	second, secondPayload := doJSON(t, mux, http.MethodPost, "/predict", `{"features":[6.2,2.9,4.3,1.3]}`)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected 200/200, got %d/%d", first.Code, second.Code)
	}
	if model.predictCalls != 1 {
		t.Fatalf("expected one classifier call, got %d", model.predictCalls)
	}
	if firstPayload["predicted_class"] != secondPayload["predicted_class"] {
		t.Fatal("cached response differs from computed response")
	}
}

func TestHandlePredictBatch(t *testing.T) {
	model := &fakeClassifier{label: 2, proba: []float64{0.05, 0.15, 0.8}}
	mux := newTestMux(t, model)

	body := `{"samples":[[5.1,3.5,1.4,0.2],[6.2,2.9,4.3,1.3],[7.3,2.9,6.3,1.8]]}`
	w, payload := doJSON(t, mux, http.MethodPost, "/predict/batch", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, payload)
	}

	if payload["total_samples"].(float64) != 3 {
		t.Fatalf("unexpected total_samples: %v", payload["total_samples"])
	}
	predictions := payload["predictions"].([]interface{})
	if len(predictions) != 3 {
		t.Fatalf("expected 3 predictions, got %d", len(predictions))
	}
	for i, entry := range predictions {
		p := entry.(map[string]interface{})
		if p["sample_index"].(float64) != float64(i) {
			t.Fatalf("prediction %d has sample_index %v", i, p["sample_index"])
		}
		if p["predicted_class"] != "virginica" {
			t.Fatalf("prediction %d: unexpected class %v", i, p["predicted_class"])
		}
		if len(p["probabilities"].(map[string]interface{})) != 3 {
			t.Fatalf("prediction %d: incomplete probability mapping", i)
		}
	}
}

func TestHandlePredictBatchRaggedRejectedWhole(t *testing.T) {
	model := &fakeClassifier{label: 0, proba: []float64{1, 0, 0}}
	mux := newTestMux(t, model)

	body := `{"samples":[[5.1,3.5,1.4,0.2],[6.2,2.9,4.3]]}`
	w, payload := doJSON(t, mux, http.MethodPost, "/predict/batch", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(payload["error"].(string), "expected 4 features per sample") {
		t.Fatalf("unexpected error: %v", payload["error"])
	}
	if model.predictCalls != 0 {
		t.Fatalf("classifier invoked %d times on ragged batch", model.predictCalls)
	}
}

func TestHandlePredictBatchValidation(t *testing.T) {
	model := &fakeClassifier{label: 0, proba: []float64{1, 0, 0}}
	mux := newTestMux(t, model)

	w, payload := doJSON(t, mux, http.MethodPost, "/predict/batch", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(payload["error"].(string), "missing") {
		t.Fatalf("unexpected error: %v", payload["error"])
	}

	w, payload = doJSON(t, mux, http.MethodPost, "/predict/batch", `{"samples":42}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(payload["error"].(string), "must be a list") {
		t.Fatalf("unexpected error: %v", payload["error"])
	}

	w, payload = doJSON(t, mux, http.MethodPost, "/predict/batch", `{"samples":[1,2,3]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(payload["error"].(string), "each sample must be a list") {
		t.Fatalf("unexpected error: %v", payload["error"])
	}

	if model.predictCalls != 0 {
		t.Fatalf("classifier invoked %d times on invalid input", model.predictCalls)
	}
}

func TestHandlePredictBatchUnloaded(t *testing.T) {
	mux := newUnloadedMux(t)
	w, _ := doJSON(t, mux, http.MethodPost, "/predict/batch", `{"samples":[[1,2,3,4]]}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

// End-to-end with a real trained forest: repeated identical input must give
// identical output.
func TestPredictIdempotentWithRealModel(t *testing.T) {
	features := [][]float64{
		{1.0, 5.0, 1.0, 0.2}, {1.1, 4.8, 1.1, 0.3}, {0.9, 5.2, 0.9, 0.1}, {1.2, 5.1, 1.2, 0.2},
		{9.0, 1.0, 6.0, 2.0}, {9.1, 0.8, 6.1, 2.1}, {8.9, 1.2, 5.9, 1.9}, {9.2, 1.1, 6.2, 2.2},
	}
	labels := []int{0, 0, 0, 0, 1, 1, 1, 1}
	forest := ml.NewRandomForest(10, 4, 42)
	if err := forest.Fit(features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	artifact := &ml.Artifact{
		Model:     forest,
		Meta:      ml.Metadata{FeatureNames: []string{"a", "b", "c", "d"}, TargetNames: []string{"low", "high"}},
		ModelType: ml.ModelTypeRandomForest,
	}
	mux := http.NewServeMux()
	NewHandlers(artifact, zap.NewNop(), nil, nil).Register(mux)

	body := `{"features":[1.0,5.0,1.0,0.2]}`
	_, first := doJSON(t, mux, http.MethodPost, "/predict", body)
	_, second := doJSON(t, mux, http.MethodPost, "/predict", body)

	if first["prediction"].(float64) != second["prediction"].(float64) {
		t.Fatal("identical input produced different predictions")
	}
	if first["predicted_class"] != "low" {
		t.Fatalf("unexpected class: %v", first["predicted_class"])
	}
	if first["confidence"].(float64) != second["confidence"].(float64) {
		t.Fatal("identical input produced different confidence")
	}
}
