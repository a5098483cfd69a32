package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// Dataset is tabular training data: a header row plus string-valued records.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

func LoadCSV(path string) (Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return Dataset{}, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return Dataset{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 2 {
		return Dataset{}, errors.New("csv needs a header row and at least one data row")
	}
	return Dataset{Columns: records[0], Rows: records[1:]}, nil
}

// BuildMatrix turns a dataset into the numeric form training consumes:
// feature matrix, encoded target vector, and the two name lists the serving
// side depends on. If featureColumns is empty, every column except the target
// is used, in its original left-to-right order.
//
// Target labels are encoded to 0..K-1 in lexicographic order of the distinct
// raw values. The ordering is load-bearing: it is what keeps class index i
// mapped to the same label across retraining runs on the same label set,
// regardless of row order in the source file.
func BuildMatrix(ds Dataset, targetColumn string, featureColumns []string) (features [][]float64, labels []int, featureNames, targetNames []string, err error) {
	targetIdx := columnIndex(ds.Columns, targetColumn)
	if targetIdx < 0 {
		return nil, nil, nil, nil, fmt.Errorf("target column %q not found", targetColumn)
	}

	var featureIdx []int
	if len(featureColumns) == 0 {
		for i, name := range ds.Columns {
			if i == targetIdx {
				continue
			}
			featureIdx = append(featureIdx, i)
			featureNames = append(featureNames, name)
		}
	} else {
		for _, name := range featureColumns {
			idx := columnIndex(ds.Columns, name)
			if idx < 0 {
				return nil, nil, nil, nil, fmt.Errorf("feature column %q not found", name)
			}
			featureIdx = append(featureIdx, idx)
			featureNames = append(featureNames, name)
		}
	}
	if len(featureIdx) == 0 {
		return nil, nil, nil, nil, errors.New("no feature columns")
	}

	targetNames, encoding := encodeLabels(ds.Rows, targetIdx)

	features = make([][]float64, 0, len(ds.Rows))
	labels = make([]int, 0, len(ds.Rows))
	for rowNum, row := range ds.Rows {
		if targetIdx >= len(row) {
			return nil, nil, nil, nil, fmt.Errorf("row %d has %d fields, want %d", rowNum+1, len(row), len(ds.Columns))
		}
		vector := make([]float64, len(featureIdx))
		for i, col := range featureIdx {
			if col >= len(row) {
				return nil, nil, nil, nil, fmt.Errorf("row %d has %d fields, want %d", rowNum+1, len(row), len(ds.Columns))
			}
			value, err := strconv.ParseFloat(row[col], 64)
			if err != nil {
				return nil, nil, nil, nil, fmt.Errorf("row %d column %q: %w", rowNum+1, ds.Columns[col], err)
			}
			vector[i] = value
		}
		features = append(features, vector)
		labels = append(labels, encoding[row[targetIdx]])
	}
	return features, labels, featureNames, targetNames, nil
}

// encodeLabels assigns contiguous integers to the distinct raw labels in
// lexicographic order, so targetNames[i] is the label encoded as i.
func encodeLabels(rows [][]string, targetIdx int) (targetNames []string, encoding map[string]int) {
	seen := make(map[string]bool)
	for _, row := range rows {
		if targetIdx < len(row) {
			seen[row[targetIdx]] = true
		}
	}
	targetNames = make([]string, 0, len(seen))
	for label := range seen {
		targetNames = append(targetNames, label)
	}
	sort.Strings(targetNames)

	encoding = make(map[string]int, len(targetNames))
	for i, label := range targetNames {
		encoding[label] = i
	}
	return targetNames, encoding
}

// ClassDistribution counts samples per encoded class.
func ClassDistribution(labels []int, numClasses int) []int {
	return countClasses(labels, numClasses)
}

func columnIndex(columns []string, name string) int {
	for i, col := range columns {
		if col == name {
			return i
		}
	}
	return -1
}
