package ml

import (
	"encoding/json"
	"fmt"
	"os"
)

// Classifier is the capability the serving layer consumes: map a batch of
// feature vectors to class indices and to per-class probability rows. Row i
// of PredictProba corresponds to element i of Predict and to batch[i], and
// both share one class-index space.
type Classifier interface {
	Predict(batch [][]float64) ([]int, error)
	PredictProba(batch [][]float64) ([][]float64, error)
}

// Trainable is implemented by classifiers that can be fit in-process.
type Trainable interface {
	Classifier
	Fit(features [][]float64, labels []int, numClasses int) error
}

const (
	ModelTypeRandomForest = "random_forest"
	ModelTypeDecisionTree = "decision_tree"
)

// LoadModel loads a persisted classifier, dispatching on the model_type
// recorded in the file itself.
func LoadModel(path string) (Classifier, string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	var probe struct {
		ModelType string `json:"model_type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, "", fmt.Errorf("invalid model file: %w", err)
	}

	switch probe.ModelType {
	case ModelTypeRandomForest:
		model := &RandomForest{}
		if err := model.UnmarshalJSON(payload); err != nil {
			return nil, "", err
		}
		return model, probe.ModelType, nil
	case ModelTypeDecisionTree:
		model := &DecisionTree{}
		if err := model.UnmarshalJSON(payload); err != nil {
			return nil, "", err
		}
		return model, probe.ModelType, nil
	default:
		return nil, "", fmt.Errorf("unsupported model type %q", probe.ModelType)
	}
}
