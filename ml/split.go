package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// StratifiedSplit partitions (features, labels) into train and test sets
// while preserving each class's relative frequency in both partitions. The
// split is seeded, so identical input and seed always produce identical
// partitions. Without stratification an imbalanced label set can leave the
// test partition with no minority-class samples at all.
func StratifiedSplit(features [][]float64, labels []int, testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int, err error) {
	if len(features) != len(labels) {
		return nil, nil, nil, nil, errors.New("features and labels size mismatch")
	}
	if len(features) == 0 {
		return nil, nil, nil, nil, errors.New("empty dataset")
	}
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}

	byClass := make(map[int][]int)
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}

	classes := make([]int, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	rnd := rand.New(rand.NewSource(seed))
	for _, class := range classes {
		indices := byClass[class]
		rnd.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		nTest := int(math.Round(float64(len(indices)) * testRatio))
		for i, idx := range indices {
			if i < nTest {
				testX = append(testX, features[idx])
				testY = append(testY, labels[idx])
			} else {
				trainX = append(trainX, features[idx])
				trainY = append(trainY, labels[idx])
			}
		}
	}

	if len(trainY) == 0 {
		return nil, nil, nil, nil, errors.New("split left no training samples")
	}
	return trainX, trainY, testX, testY, nil
}
