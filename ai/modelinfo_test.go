package ai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/answerbank/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validModelInfo = `{
  "model_name": "ko-sroberta-multitask",
  "license": "Apache-2.0",
  "hidden_size": 768,
  "max_length": 128,
  "output_name": "last_hidden_state",
  "use_pooling": true
}`

func TestLoadModelInfo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ModelInfoFile), []byte(validModelInfo), 0644))

	info, err := LoadModelInfo(dir)
	require.NoError(t, err)
	assert.Equal(t, "ko-sroberta-multitask", info.ModelName)
	assert.Equal(t, 768, info.HiddenSize)
	assert.Equal(t, 128, info.MaxLength)
	assert.True(t, info.UsePooling)
	assert.Equal(t, core.Signature{ModelID: "ko-sroberta-multitask", Dimension: 768}, info.Signature())
}

func TestLoadModelInfo_Missing(t *testing.T) {
	_, err := LoadModelInfo(t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidModelInfo)
	assert.ErrorIs(t, err, core.ErrModelUnavailable)
	assert.ErrorIs(t, err, core.ErrEmbedding)
}

func TestParseModelInfo_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "not json", data: "model_name=x", want: "invalid model info"},
		{name: "missing keys", data: `{"model_name": "m", "hidden_size": 4}`, want: "[license max_length output_name use_pooling]"},
		{name: "empty name", data: `{"model_name": "", "license": "", "hidden_size": 4, "max_length": 1, "output_name": "", "use_pooling": false}`, want: "model_name is empty"},
		{name: "zero dimension", data: `{"model_name": "m", "license": "", "hidden_size": 0, "max_length": 1, "output_name": "", "use_pooling": false}`, want: "hidden_size must be positive"},
		{name: "wrong type", data: `{"model_name": "m", "license": "", "hidden_size": "768", "max_length": 1, "output_name": "", "use_pooling": false}`, want: "invalid model info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModelInfo([]byte(tt.data))
			require.ErrorIs(t, err, ErrInvalidModelInfo)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
