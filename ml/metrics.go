package ml

import (
	"errors"
	"fmt"
	"strings"
)

// ClassReport is the per-class evaluation breakdown over a holdout split.
type ClassReport struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// ClassificationReport computes precision, recall and F1 for every class in
// [0, numClasses). Classes absent from both yTrue and yPred report zeros.
func ClassificationReport(yTrue, yPred []int, numClasses int) ([]ClassReport, error) {
	if len(yTrue) != len(yPred) {
		return nil, errors.New("yTrue and yPred size mismatch")
	}
	if numClasses <= 0 {
		return nil, errors.New("numClasses must be positive")
	}

	truePositive := make([]int, numClasses)
	predicted := make([]int, numClasses)
	actual := make([]int, numClasses)
	for i := range yTrue {
		if yTrue[i] < 0 || yTrue[i] >= numClasses || yPred[i] < 0 || yPred[i] >= numClasses {
			return nil, fmt.Errorf("label out of range at index %d", i)
		}
		actual[yTrue[i]]++
		predicted[yPred[i]]++
		if yTrue[i] == yPred[i] {
			truePositive[yTrue[i]]++
		}
	}

	report := make([]ClassReport, numClasses)
	for class := 0; class < numClasses; class++ {
		r := ClassReport{Support: actual[class]}
		if predicted[class] > 0 {
			r.Precision = float64(truePositive[class]) / float64(predicted[class])
		}
		if actual[class] > 0 {
			r.Recall = float64(truePositive[class]) / float64(actual[class])
		}
		if r.Precision+r.Recall > 0 {
			r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
		}
		report[class] = r
	}
	return report, nil
}

// FormatReport renders a classification report for terminal output, one row
// per target name.
func FormatReport(report []ClassReport, targetNames []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %9s %9s %9s %9s\n", "", "precision", "recall", "f1", "support")
	for class, r := range report {
		name := fmt.Sprintf("class %d", class)
		if class < len(targetNames) {
			name = targetNames[class]
		}
		fmt.Fprintf(&b, "%-16s %9.4f %9.4f %9.4f %9d\n", name, r.Precision, r.Recall, r.F1, r.Support)
	}
	return b.String()
}
