package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
)

var validate = validator.New()

// ParseConfig decodes and validates a YAML dataset configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.Configuration("INVALID_DATASET_YAML", "invalid dataset config").WithCause(err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, apperrors.Configuration("INVALID_DATASET_CONFIG", "%s", formatValidationError(err))
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFile reads one dataset configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigDir reads every *.yaml / *.yml file in dir. Files that fail to parse are
// reported in the returned error map and skipped.
func LoadConfigDir(dir string) ([]*Config, map[string]error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list dataset dir %s: %w", dir, err)
	}
	var cfgs []*Config
	failed := make(map[string]error)
	for _, e := range entries {
		if e.IsDir() || !IsConfigFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		cfg, err := LoadConfigFile(path)
		if err != nil {
			failed[path] = err
			continue
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, failed, nil
}

// IsConfigFile reports whether name looks like a dataset configuration file.
func IsConfigFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func formatValidationError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must have at least %s entries", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}
