package ml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	ModelFileName    = "model.json"
	MetadataFileName = "metadata.json"
)

// Artifact is the loaded (classifier, metadata) pair the server holds for its
// whole lifetime. It is built once by LoadArtifact before any request is
// accepted and is read-only afterwards, so handlers may share it freely.
type Artifact struct {
	Model     Classifier
	Meta      Metadata
	ModelType string
	LoadedAt  time.Time
}

type dimensioned interface {
	NumFeatures() int
	NumClasses() int
}

// LoadArtifact loads both halves of a persisted artifact directory and
// verifies they belong together. A directory with only one half present is
// invalid: serving must never start from it.
func LoadArtifact(dir string) (*Artifact, error) {
	modelPath := filepath.Join(dir, ModelFileName)
	metadataPath := filepath.Join(dir, MetadataFileName)

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found at %s: %w", modelPath, err)
	}
	if _, err := os.Stat(metadataPath); err != nil {
		return nil, fmt.Errorf("metadata file not found at %s: %w", metadataPath, err)
	}

	model, modelType, err := LoadModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	meta, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	if dims, ok := model.(dimensioned); ok {
		if dims.NumFeatures() != len(meta.FeatureNames) {
			return nil, fmt.Errorf("model expects %d features but metadata names %d",
				dims.NumFeatures(), len(meta.FeatureNames))
		}
		if dims.NumClasses() != len(meta.TargetNames) {
			return nil, fmt.Errorf("model has %d classes but metadata names %d",
				dims.NumClasses(), len(meta.TargetNames))
		}
	}

	return &Artifact{
		Model:     model,
		Meta:      meta,
		ModelType: modelType,
		LoadedAt:  time.Now().UTC(),
	}, nil
}

// SaveArtifact persists the model and its metadata into dir atomically with
// respect to each other: both files appear, or neither does. Each half is
// written to a temp name and the pair is renamed into place only after both
// writes succeeded.
func SaveArtifact(dir string, model interface {
	Save(path string) error
}, meta Metadata) error {
	if model == nil {
		return errors.New("model is nil")
	}
	if err := meta.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	modelTmp := filepath.Join(dir, ModelFileName+".tmp")
	metadataTmp := filepath.Join(dir, MetadataFileName+".tmp")

	if err := model.Save(modelTmp); err != nil {
		return err
	}
	if err := meta.Save(metadataTmp); err != nil {
		os.Remove(modelTmp)
		return err
	}

	if err := os.Rename(modelTmp, filepath.Join(dir, ModelFileName)); err != nil {
		os.Remove(modelTmp)
		os.Remove(metadataTmp)
		return err
	}
	if err := os.Rename(metadataTmp, filepath.Join(dir, MetadataFileName)); err != nil {
		os.Remove(metadataTmp)
		return err
	}
	return nil
}
