package authclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfigFile reads a YAML configuration file on top of DefaultConfig.
// Keys absent from the file keep their defaults; unknown keys are an error.
// ${VAR} references in Session.FilePath are expanded from the environment.
func LoadConfigFile(path string) (Config, error) {
	return LoadConfigFileInto(defaultConfig(), path)
}

// LoadConfigFileInto is LoadConfigFile with base in place of DefaultConfig,
// for callers that carry their own defaults.
func LoadConfigFileInto(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg, err := ParseConfigInto(base, data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML configuration data on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	return ParseConfigInto(defaultConfig(), data)
}

// ParseConfigInto decodes YAML configuration data on top of base. base
// itself is not modified.
func ParseConfigInto(base Config, data []byte) (Config, error) {
	cfg := cloneConfig(base)

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}

	cfg.Session.FilePath = os.ExpandEnv(cfg.Session.FilePath)
	return cfg, nil
}
