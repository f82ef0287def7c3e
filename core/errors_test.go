package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelUnavailableIsEmbeddingError(t *testing.T) {
	assert.ErrorIs(t, ErrModelUnavailable, ErrEmbedding)

	err := fmt.Errorf("%w: connection refused", ErrModelUnavailable)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.NotErrorIs(t, fmt.Errorf("%w: bad vector", ErrEmbedding), ErrModelUnavailable)
}
