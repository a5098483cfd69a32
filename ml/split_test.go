package ml

import "testing"

func TestStratifiedSplitPreservesClassFrequencies(t *testing.T) {
	// 40 samples of class 0, 10 of class 1.
	var features [][]float64
	var labels []int
	for i := 0; i < 40; i++ {
		features = append(features, []float64{float64(i)})
		labels = append(labels, 0)
	}
	for i := 0; i < 10; i++ {
		features = append(features, []float64{float64(100 + i)})
		labels = append(labels, 1)
	}

	trainX, trainY, testX, testY, err := StratifiedSplit(features, labels, 0.2, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trainX) != len(trainY) || len(testX) != len(testY) {
		t.Fatal("feature/label sizes diverged")
	}
	if len(trainY)+len(testY) != 50 {
		t.Fatalf("samples lost: %d + %d", len(trainY), len(testY))
	}

	testCounts := ClassDistribution(testY, 2)
	if testCounts[0] != 8 {
		t.Fatalf("expected 8 class-0 test samples, got %d", testCounts[0])
	}
	if testCounts[1] != 2 {
		t.Fatalf("expected 2 class-1 test samples, got %d", testCounts[1])
	}
}

func TestStratifiedSplitDeterministic(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}, {9}, {10}}
	labels := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}

	_, firstTrain, _, firstTest, err := StratifiedSplit(features, labels, 0.3, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, secondTrain, _, secondTest, err := StratifiedSplit(features, labels, 0.3, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(firstTrain) != len(secondTrain) || len(firstTest) != len(secondTest) {
		t.Fatal("partition sizes differ across runs")
	}
	for i := range firstTrain {
		if firstTrain[i] != secondTrain[i] {
			t.Fatalf("train labels differ at %d", i)
		}
	}
	for i := range firstTest {
		if firstTest[i] != secondTest[i] {
			t.Fatalf("test labels differ at %d", i)
		}
	}
}

func TestStratifiedSplitRejectsEmptyInput(t *testing.T) {
	if _, _, _, _, err := StratifiedSplit(nil, nil, 0.2, 42); err == nil {
		t.Fatal("expected error for empty dataset")
	}
	if _, _, _, _, err := StratifiedSplit([][]float64{{1}}, []int{0, 1}, 0.2, 42); err == nil {
		t.Fatal("expected error for size mismatch")
	}
}
