package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLabelsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muscle_labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"muscle_labels:\n  - L-SOLE\n  - R-SOLE\n"), 0o644))

	labels := LoadLabels(path, 4, nil)
	assert.Equal(t, []string{"L-SOLE", "R-SOLE", "Ch2", "Ch3"}, labels)
}

func TestLoadLabelsMissingFileFallsBack(t *testing.T) {
	labels := LoadLabels(filepath.Join(t.TempDir(), "nope.yaml"), 4, nil)
	assert.Equal(t, DefaultLabels, labels)
}

func TestLoadLabelsMalformedYAMLFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muscle_labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("muscle_labels: {broken"), 0o644))

	labels := LoadLabels(path, 4, nil)
	assert.Equal(t, DefaultLabels, labels)
}

func TestLoadLabelsPadsBeyondDefaults(t *testing.T) {
	labels := LoadLabels("", 6, nil)
	assert.Equal(t, []string{"L-TIBI", "L-GAST", "L-RECT", "R-TIBI", "Ch4", "Ch5"}, labels)
}

func TestLoadLabelsTruncates(t *testing.T) {
	labels := LoadLabels("", 2, nil)
	assert.Equal(t, []string{"L-TIBI", "L-GAST"}, labels)
}
