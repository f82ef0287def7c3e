package openai

import (
	"errors"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/answerbank/ai"
	"github.com/poiesic/answerbank/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModelInfo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	info := `{"model_name": "bge-m3", "license": "MIT", "hidden_size": 1024, "max_length": 512, "output_name": "dense", "use_pooling": false}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ai.ModelInfoFile), []byte(info), 0644))
	return dir
}

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider(ai.NewConfig(ai.WithModelDir(writeModelInfo(t))))
	require.NoError(t, err)
	defer provider.Close()

	assert.Equal(t, core.Signature{ModelID: "bge-m3", Dimension: 1024}, provider.Info().Signature())
	assert.NotNil(t, provider.Model())

	embedder, err := ai.NewEmbedderFromProvider(provider)
	require.NoError(t, err)
	assert.Equal(t, 1024, embedder.Signature().Dimension)
}

func TestNewProvider_MissingModelInfo(t *testing.T) {
	_, err := NewProvider(ai.NewConfig(ai.WithModelDir(t.TempDir())))
	assert.ErrorIs(t, err, ai.ErrInvalidModelInfo)
	assert.ErrorIs(t, err, core.ErrModelUnavailable)
	assert.ErrorIs(t, err, core.ErrEmbedding)
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(ai.NewConfig(ai.WithEmbeddingHost("")))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	refused := &url.Error{Op: "Post", URL: "http://localhost:1/v1/embeddings", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}
	assert.ErrorIs(t, classify(refused), core.ErrModelUnavailable)

	plain := errors.New("API returned unexpected status code: 400")
	assert.Equal(t, plain, classify(plain))
}
