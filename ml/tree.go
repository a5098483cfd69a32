package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
)

// DecisionTree is a CART-style classifier stored as a flat node array so it
// serializes to JSON without pointer chasing.
type DecisionTree struct {
	nodes        []TreeNode
	featureCount int
	classCount   int

	// Training options. MaxFeatures <= 0 means consider every feature at
	// each split; a positive value samples that many candidate features,
	// which is what the forest uses to decorrelate its trees.
	MaxDepth    int
	MaxFeatures int
	Seed        int64
}

type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	ClassCounts []int   `json:"class_counts"`
	Samples     int     `json:"samples"`
	IsLeaf      bool    `json:"is_leaf"`
}

type treeFile struct {
	ModelType    string     `json:"model_type"`
	FeatureCount int        `json:"feature_count"`
	ClassCount   int        `json:"class_count"`
	Nodes        []TreeNode `json:"nodes"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth}
}

func (dt *DecisionTree) NumFeatures() int { return dt.featureCount }
func (dt *DecisionTree) NumClasses() int  { return dt.classCount }

// Fit grows the tree. numClasses fixes the class-index space so leaf count
// vectors always have one slot per class, present in the data or not.
func (dt *DecisionTree) Fit(features [][]float64, labels []int, numClasses int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if numClasses <= 0 {
		return errors.New("numClasses must be positive")
	}
	for _, label := range labels {
		if label < 0 || label >= numClasses {
			return fmt.Errorf("label %d out of range [0,%d)", label, numClasses)
		}
	}
	maxDepth := dt.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 10
	}

	dt.featureCount = len(features[0])
	dt.classCount = numClasses
	rng := rand.New(rand.NewSource(dt.Seed))
	dt.nodes = dt.buildNode(features, labels, 0, maxDepth, rng)
	return nil
}

// Predict returns the majority class of the leaf each row lands in.
func (dt *DecisionTree) Predict(batch [][]float64) ([]int, error) {
	proba, err := dt.PredictProba(batch)
	if err != nil {
		return nil, err
	}
	preds := make([]int, len(proba))
	for i, row := range proba {
		preds[i] = argmax(row)
	}
	return preds, nil
}

// PredictProba returns, per row, the leaf's class distribution.
func (dt *DecisionTree) PredictProba(batch [][]float64) ([][]float64, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	out := make([][]float64, len(batch))
	for i, features := range batch {
		leaf, err := dt.walk(features)
		if err != nil {
			return nil, err
		}
		row := make([]float64, dt.classCount)
		for class, count := range leaf.ClassCounts {
			row[class] = float64(count) / float64(leaf.Samples)
		}
		out[i] = row
	}
	return out, nil
}

func (dt *DecisionTree) walk(features []float64) (TreeNode, error) {
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return TreeNode{}, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return TreeNode{}, errors.New("invalid tree state")
		}
	}
}

// FeatureImportances tallies, per feature, the number of samples routed
// through splits on that feature, normalized to sum to 1.
func (dt *DecisionTree) FeatureImportances() []float64 {
	raw := make([]float64, dt.featureCount)
	total := 0.0
	for _, node := range dt.nodes {
		if node.IsLeaf {
			continue
		}
		raw[node.FeatureIdx] += float64(node.Samples)
		total += float64(node.Samples)
	}
	if total > 0 {
		for i := range raw {
			raw[i] /= total
		}
	}
	return raw
}

func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	return json.Marshal(treeFile{
		ModelType:    ModelTypeDecisionTree,
		FeatureCount: dt.featureCount,
		ClassCount:   dt.classCount,
		Nodes:        dt.nodes,
	})
}

func (dt *DecisionTree) UnmarshalJSON(payload []byte) error {
	var file treeFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return err
	}
	if file.ModelType != ModelTypeDecisionTree {
		return fmt.Errorf("unexpected model type %q", file.ModelType)
	}
	if len(file.Nodes) == 0 {
		return errors.New("model file has no nodes")
	}
	dt.nodes = file.Nodes
	dt.featureCount = file.FeatureCount
	dt.classCount = file.ClassCount
	return nil
}

func (dt *DecisionTree) Save(path string) error {
	payload, err := dt.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return dt.UnmarshalJSON(payload)
}

func (dt *DecisionTree) buildNode(features [][]float64, labels []int, depth, maxDepth int, rng *rand.Rand) []TreeNode {
	counts := countClasses(labels, dt.classCount)
	leaf := TreeNode{
		FeatureIdx:  -1,
		LeftChild:   -1,
		RightChild:  -1,
		ClassCounts: counts,
		Samples:     len(labels),
		IsLeaf:      true,
	}
	if depth >= maxDepth || isPure(labels) {
		return []TreeNode{leaf}
	}

	bestFeature, threshold, ok := dt.findBestSplit(features, labels, rng)
	if !ok {
		return []TreeNode{leaf}
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return []TreeNode{leaf}
	}

	leftNodes := dt.buildNode(leftFeatures, leftLabels, depth+1, maxDepth, rng)
	rightNodes := dt.buildNode(rightFeatures, rightLabels, depth+1, maxDepth, rng)

	root := TreeNode{
		FeatureIdx:  bestFeature,
		Threshold:   threshold,
		LeftChild:   1,
		RightChild:  1 + len(leftNodes),
		ClassCounts: counts,
		Samples:     len(labels),
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetChildren(leftNodes, 1)...)
	nodes = append(nodes, offsetChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// offsetChildren rebases child indices of a subtree that is appended at
// position base of the parent's node array.
func offsetChildren(nodes []TreeNode, base int) []TreeNode {
	for i := range nodes {
		if !nodes[i].IsLeaf {
			nodes[i].LeftChild += base
			nodes[i].RightChild += base
		}
	}
	return nodes
}

func (dt *DecisionTree) findBestSplit(features [][]float64, labels []int, rng *rand.Rand) (int, float64, bool) {
	featureCount := len(features[0])
	candidates := candidateFeatures(featureCount, dt.MaxFeatures, rng)

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for _, featureIdx := range candidates {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		threshold := median(values)
		leftLabels, rightLabels := splitLabels(features, labels, featureIdx, threshold)
		if len(leftLabels) == 0 || len(rightLabels) == 0 {
			continue
		}
		impurity := weightedGini(leftLabels, rightLabels)
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestFeature = featureIdx
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

// candidateFeatures returns all feature indices, or a random subset of size
// maxFeatures in ascending order so the split search stays deterministic for
// a given rng state.
func candidateFeatures(featureCount, maxFeatures int, rng *rand.Rand) []int {
	if maxFeatures <= 0 || maxFeatures >= featureCount {
		all := make([]int, featureCount)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := rng.Perm(featureCount)[:maxFeatures]
	sort.Ints(perm)
	return perm
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func splitLabels(features [][]float64, labels []int, featureIdx int, threshold float64) ([]int, []int) {
	leftLabels := make([]int, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftLabels, rightLabels
}

func weightedGini(leftLabels, rightLabels []int) float64 {
	leftWeight := float64(len(leftLabels))
	rightWeight := float64(len(rightLabels))
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(leftLabels) + (rightWeight/total)*gini(rightLabels)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(len(labels))
		impurity -= prob * prob
	}
	return impurity
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func countClasses(labels []int, numClasses int) []int {
	counts := make([]int, numClasses)
	for _, label := range labels {
		counts[label]++
	}
	return counts
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}

// argmax breaks ties toward the lower index so predictions are stable.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
