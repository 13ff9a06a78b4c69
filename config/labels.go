package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultLabels is the channel annotation used when no label file is
// available. It matches the standard four-electrode lower-limb montage.
var DefaultLabels = []string{"L-TIBI", "L-GAST", "L-RECT", "R-TIBI"}

type labelsFile struct {
	MuscleLabels []string `yaml:"muscle_labels"`
}

// LoadLabels reads the muscle-label YAML file and returns exactly count
// labels. A missing or unparseable file falls back to DefaultLabels, and
// any index past the available labels gets a Ch<i> placeholder. Label
// loading never fails the pipeline.
func LoadLabels(path string, count int, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}

	source := DefaultLabels

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Label file unavailable, using defaults",
				"path", path,
				"error", err)
		} else {
			var lf labelsFile
			if err := yaml.Unmarshal(data, &lf); err != nil {
				logger.Warn("Label file unparseable, using defaults",
					"path", path,
					"error", err)
			} else if len(lf.MuscleLabels) == 0 {
				logger.Warn("Label file has no muscle_labels entry, using defaults",
					"path", path)
			} else {
				source = lf.MuscleLabels
			}
		}
	}

	labels := make([]string, count)
	for i := 0; i < count; i++ {
		if i < len(source) && source[i] != "" {
			labels[i] = source[i]
		} else {
			labels[i] = fmt.Sprintf("Ch%d", i)
		}
	}
	return labels
}
