// Command train_model trains the bundled iris demo classifier and writes the
// serving artifact (model.json + metadata.json).
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"mlserve/db"
	"mlserve/ml"
)

func main() {
	dataPath := flag.String("data", "./data/iris.csv", "training data CSV")
	target := flag.String("target", "species", "target column name")
	outDir := flag.String("out", "./model", "artifact output directory")
	numTrees := flag.Int("trees", 100, "number of trees")
	maxDepth := flag.Int("max_depth", 5, "max tree depth")
	testRatio := flag.Float64("test_ratio", 0.2, "holdout ratio")
	seed := flag.Int64("seed", 42, "random seed")
	dbPath := flag.String("db", "", "optional sqlite path to log the run")
	flag.Parse()

	dataset, err := ml.LoadCSV(*dataPath)
	if err != nil {
		log.Fatalf("failed to load data: %v", err)
	}

	features, labels, featureNames, targetNames, err := ml.BuildMatrix(dataset, *target, nil)
	if err != nil {
		log.Fatalf("failed to build training matrix: %v", err)
	}

	fmt.Printf("Dataset: %d samples, %d features\n", len(features), len(featureNames))
	fmt.Println("Class distribution:")
	for i, count := range ml.ClassDistribution(labels, len(targetNames)) {
		fmt.Printf("  %s: %d\n", targetNames[i], count)
	}

	trainX, trainY, testX, testY, err := ml.StratifiedSplit(features, labels, *testRatio, *seed)
	if err != nil {
		log.Fatalf("failed to split data: %v", err)
	}

	model := ml.NewRandomForest(*numTrees, *maxDepth, *seed)
	if err := model.Fit(trainX, trainY, len(targetNames)); err != nil {
		log.Fatalf("failed to train model: %v", err)
	}

	preds, err := model.Predict(testX)
	if err != nil {
		log.Fatalf("failed to evaluate model: %v", err)
	}
	accuracy := ml.Accuracy(testY, preds)
	report, err := ml.ClassificationReport(testY, preds, len(targetNames))
	if err != nil {
		log.Fatalf("failed to build classification report: %v", err)
	}

	fmt.Printf("\nTraining samples: %d\nTest samples: %d\nAccuracy: %.4f\n\n", len(trainY), len(testY), accuracy)
	fmt.Println(ml.FormatReport(report, targetNames))

	meta := ml.Metadata{FeatureNames: featureNames, TargetNames: targetNames}
	if err := ml.SaveArtifact(*outDir, model, meta); err != nil {
		log.Fatalf("failed to save artifact: %v", err)
	}
	fmt.Printf("Artifact saved to %s\n", *outDir)

	if *dbPath != "" {
		if err := db.InitDB(*dbPath); err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		if err := db.SaveTrainingLog(db.TrainingLog{
			ModelType:   ml.ModelTypeRandomForest,
			Accuracy:    accuracy,
			DataPoints:  len(features),
			NumFeatures: len(featureNames),
			NumClasses:  len(targetNames),
			TrainedAt:   time.Now().UTC(),
		}); err != nil {
			log.Fatalf("failed to log training run: %v", err)
		}
	}
}
