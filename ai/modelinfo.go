package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/poiesic/answerbank/core"
)

// ModelInfoFile is the metadata file expected in a model artifact directory.
const ModelInfoFile = "model_info"

var requiredModelInfoKeys = []string{"model_name", "license", "hidden_size", "max_length", "output_name", "use_pooling"}

// ModelInfo describes a pre-trained embedding model artifact.
type ModelInfo struct {
	ModelName  string `json:"model_name"`
	License    string `json:"license"`
	HiddenSize int    `json:"hidden_size"`
	MaxLength  int    `json:"max_length"`
	OutputName string `json:"output_name"`
	UsePooling bool   `json:"use_pooling"`
}

// Signature returns the embedding signature of the model.
func (m *ModelInfo) Signature() core.Signature {
	return core.Signature{ModelID: m.ModelName, Dimension: m.HiddenSize}
}

// LoadModelInfo reads and validates dir/model_info. Every key is required.
// A missing or invalid artifact fails with core.ErrModelUnavailable as well
// as ErrInvalidModelInfo.
func LoadModelInfo(dir string) (*ModelInfo, error) {
	path := filepath.Join(dir, ModelInfoFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", core.ErrModelUnavailable, ErrInvalidModelInfo, err)
	}
	info, err := ParseModelInfo(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrModelUnavailable, err)
	}
	return info, nil
}

// ParseModelInfo decodes and validates model_info JSON.
func ParseModelInfo(data []byte) (*ModelInfo, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModelInfo, err)
	}

	var missing []string
	for _, key := range requiredModelInfoKeys {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("%w: missing keys %v", ErrInvalidModelInfo, missing)
	}

	var info ModelInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModelInfo, err)
	}
	if info.ModelName == "" {
		return nil, fmt.Errorf("%w: model_name is empty", ErrInvalidModelInfo)
	}
	if info.HiddenSize <= 0 {
		return nil, fmt.Errorf("%w: hidden_size must be positive, got %d", ErrInvalidModelInfo, info.HiddenSize)
	}
	return &info, nil
}
