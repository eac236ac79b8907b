package ingest

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(nil, "tickvault.yaml", io.Discard)
	require.NoError(t, err)
	assert.Equal(t, Options{ConfigPath: "tickvault.yaml"}, opts)

	opts, err = ParseOptions([]string{"--retry-warnings", "--force", "-config", "x.yaml"}, "", io.Discard)
	require.NoError(t, err)
	assert.Equal(t, Options{ConfigPath: "x.yaml", RetryWarnings: true, Force: true}, opts)

	_, err = ParseOptions([]string{"--resume"}, "", io.Discard)
	assert.Error(t, err)

	_, err = ParseOptions([]string{"data/"}, "", io.Discard)
	assert.ErrorContains(t, err, "unexpected arguments")
}
