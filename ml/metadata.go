package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Metadata binds a trained classifier's numeric index spaces to names:
// FeatureNames[i] labels input column i, TargetNames[i] labels class index i.
// It is co-produced with the model by a training run and never edited after.
type Metadata struct {
	FeatureNames []string `json:"feature_names"`
	TargetNames  []string `json:"target_names"`
}

func (m Metadata) Validate() error {
	if len(m.FeatureNames) == 0 {
		return errors.New("metadata has no feature names")
	}
	if len(m.TargetNames) == 0 {
		return errors.New("metadata has no target names")
	}
	seen := make(map[string]bool, len(m.TargetNames))
	for _, name := range m.TargetNames {
		if seen[name] {
			return fmt.Errorf("duplicate target name %q", name)
		}
		seen[name] = true
	}
	return nil
}

func (m Metadata) Save(path string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func LoadMetadata(path string) (Metadata, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata file: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}
