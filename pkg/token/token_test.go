package token

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]+$`)
	for _, n := range []int{8, 25} {
		got, err := Generate(n)
		require.NoError(t, err)
		assert.Len(t, got, n)
		assert.Regexp(t, pattern, got)
	}

	_, err := Generate(0)
	assert.Error(t, err)
}
