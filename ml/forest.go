package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
)

// RandomForest bags bootstrap-trained decision trees. Each tree gets a seed
// derived from the forest seed and its own index, so repeated training runs
// over the same data produce the same forest.
type RandomForest struct {
	NumTrees    int
	MaxDepth    int
	MaxFeatures int
	Seed        int64

	trees        []*DecisionTree
	featureCount int
	classCount   int
}

type forestFile struct {
	ModelType    string            `json:"model_type"`
	FeatureCount int               `json:"feature_count"`
	ClassCount   int               `json:"class_count"`
	Trees        []json.RawMessage `json:"trees"`
}

func NewRandomForest(numTrees, maxDepth int, seed int64) *RandomForest {
	return &RandomForest{
		NumTrees: numTrees,
		MaxDepth: maxDepth,
		Seed:     seed,
	}
}

func (rf *RandomForest) NumFeatures() int { return rf.featureCount }
func (rf *RandomForest) NumClasses() int  { return rf.classCount }

func (rf *RandomForest) Fit(features [][]float64, labels []int, numClasses int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if numClasses <= 0 {
		return errors.New("numClasses must be positive")
	}
	numTrees := rf.NumTrees
	if numTrees <= 0 {
		numTrees = 100
	}
	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = defaultMaxFeatures(len(features[0]))
	}

	n := len(features)
	trees := make([]*DecisionTree, numTrees)
	errs := make([]error, numTrees)

	var wg sync.WaitGroup
	for i := 0; i < numTrees; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			treeRand := rand.New(rand.NewSource(rf.Seed + int64(idx)))

			sampleFeatures := make([][]float64, n)
			sampleLabels := make([]int, n)
			for j := 0; j < n; j++ {
				pick := treeRand.Intn(n)
				sampleFeatures[j] = features[pick]
				sampleLabels[j] = labels[pick]
			}

			tree := &DecisionTree{
				MaxDepth:    rf.MaxDepth,
				MaxFeatures: maxFeatures,
				Seed:        rf.Seed + int64(idx),
			}
			if err := tree.Fit(sampleFeatures, sampleLabels, numClasses); err != nil {
				errs[idx] = err
				return
			}
			trees[idx] = tree
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	rf.trees = trees
	rf.featureCount = len(features[0])
	rf.classCount = numClasses
	return nil
}

// Predict is the argmax of PredictProba, which keeps the index space of the
// two operations identical by construction.
func (rf *RandomForest) Predict(batch [][]float64) ([]int, error) {
	proba, err := rf.PredictProba(batch)
	if err != nil {
		return nil, err
	}
	preds := make([]int, len(proba))
	for i, row := range proba {
		preds[i] = argmax(row)
	}
	return preds, nil
}

// PredictProba averages the per-tree leaf distributions, row by row.
func (rf *RandomForest) PredictProba(batch [][]float64) ([][]float64, error) {
	if len(rf.trees) == 0 {
		return nil, errors.New("model not trained")
	}
	out := make([][]float64, len(batch))
	for i := range out {
		out[i] = make([]float64, rf.classCount)
	}
	for _, tree := range rf.trees {
		treeProba, err := tree.PredictProba(batch)
		if err != nil {
			return nil, err
		}
		for i, row := range treeProba {
			for class, p := range row {
				out[i][class] += p
			}
		}
	}
	scale := 1.0 / float64(len(rf.trees))
	for _, row := range out {
		for class := range row {
			row[class] *= scale
		}
	}
	return out, nil
}

// FeatureImportances averages the per-tree sample-weighted split tallies.
func (rf *RandomForest) FeatureImportances() []float64 {
	out := make([]float64, rf.featureCount)
	if len(rf.trees) == 0 {
		return out
	}
	for _, tree := range rf.trees {
		for i, v := range tree.FeatureImportances() {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(rf.trees))
	}
	return out
}

func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	if len(rf.trees) == 0 {
		return nil, errors.New("model not trained")
	}
	file := forestFile{
		ModelType:    ModelTypeRandomForest,
		FeatureCount: rf.featureCount,
		ClassCount:   rf.classCount,
		Trees:        make([]json.RawMessage, len(rf.trees)),
	}
	for i, tree := range rf.trees {
		payload, err := tree.MarshalJSON()
		if err != nil {
			return nil, err
		}
		file.Trees[i] = payload
	}
	return json.Marshal(file)
}

func (rf *RandomForest) UnmarshalJSON(payload []byte) error {
	var file forestFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return err
	}
	if file.ModelType != ModelTypeRandomForest {
		return fmt.Errorf("unexpected model type %q", file.ModelType)
	}
	if len(file.Trees) == 0 {
		return errors.New("model file has no trees")
	}
	trees := make([]*DecisionTree, len(file.Trees))
	for i, raw := range file.Trees {
		tree := &DecisionTree{}
		if err := tree.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		trees[i] = tree
	}
	rf.trees = trees
	rf.featureCount = file.FeatureCount
	rf.classCount = file.ClassCount
	rf.NumTrees = len(trees)
	return nil
}

func (rf *RandomForest) Save(path string) error {
	payload, err := rf.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (rf *RandomForest) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return rf.UnmarshalJSON(payload)
}

// defaultMaxFeatures is the usual sqrt heuristic for classification forests.
func defaultMaxFeatures(featureCount int) int {
	m := 1
	for (m+1)*(m+1) <= featureCount {
		m++
	}
	return m
}
