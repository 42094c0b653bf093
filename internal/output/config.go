package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/devsync/internal/config"
)

const configHeader = `# devsync project configuration.
# Flags and DEVSYNC_* environment variables override these values.
`

type configFile struct {
	LogLevel       string `yaml:"log-level"`
	config.Project `yaml:",inline"`
}

// RenderConfig serialises p as a .devsync.yaml document.
func RenderConfig(p config.Project, logLevel string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(configFile{LogLevel: logLevel, Project: p}); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	return buf.Bytes(), nil
}
