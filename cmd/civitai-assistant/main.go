// Command civitai-assistant is a standalone harness for the assistant
// package. It loads a YAML configuration file mapping model types to
// directories and exposes the embeddable command tree directly.
//
// Configuration file (default: civitai-assistant.yaml):
//
//	base_url: https://civitai.com/api/v1
//	api_token: ""
//	model_dirs:
//	  checkpoint: /data/models/Stable-diffusion
//	  lora: /data/models/Lora
//	  embedding: /data/embeddings
//	extensions: [".safetensors"]
//	log:
//	  level: info
//	  path: ""
//
// The API token can also be supplied via the CIVITAI_API_TOKEN
// environment variable, which takes precedence over the file.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	assistant "github.com/MisterChief95/sd-forge-civitai-assistant"
)

// CLI exit codes for standardized error reporting.
const (
	// ExitSuccess indicates the operation completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitInvalidArgs indicates invalid command line arguments or configuration.
	ExitInvalidArgs = 2

	// ExitStorageError indicates a filesystem operation failed.
	ExitStorageError = 3
)

// fileConfig is the YAML configuration file schema.
type fileConfig struct {
	BaseURL    string            `yaml:"base_url"`
	APIToken   string            `yaml:"api_token"`
	ModelDirs  map[string]string `yaml:"model_dirs"`
	Extensions []string          `yaml:"extensions"`
	Log        logConfig         `yaml:"log"`
}

type logConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `yaml:"level"`

	// Path is an optional log file; stderr is used when empty.
	// File output is size-rotated.
	Path string `yaml:"path"`
}

func main() {
	configPath := "civitai-assistant.yaml"
	if env := os.Getenv("CIVITAI_ASSISTANT_CONFIG"); env != "" {
		configPath = env
	}

	fc, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitInvalidArgs)
	}

	cfg, err := buildConfig(fc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitInvalidArgs)
	}

	logger := buildLogger(fc.Log)

	cmd := assistant.NewCommand(cfg, assistant.WithLogger(logger))
	cmd.Use = "civitai-assistant"
	if err := cmd.Execute(); err != nil {
		os.Exit(exitCodeFromError(err))
	}
}

// loadConfig reads and parses the YAML configuration file.
func loadConfig(path string) (fileConfig, error) {
	var fc fileConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if env := os.Getenv("CIVITAI_API_TOKEN"); env != "" {
		fc.APIToken = env
	}

	return fc, nil
}

// buildConfig converts the file schema into the package configuration,
// resolving the short model type names.
func buildConfig(fc fileConfig) (assistant.Config, error) {
	dirs := make(map[assistant.ModelType]string, len(fc.ModelDirs))
	for name, dir := range fc.ModelDirs {
		t, err := assistant.ParseModelType(name)
		if err != nil {
			return assistant.Config{}, err
		}
		dirs[t] = dir
	}

	return assistant.Config{
		BaseURL:    fc.BaseURL,
		APIToken:   fc.APIToken,
		ModelDirs:  dirs,
		Extensions: fc.Extensions,
	}, nil
}

// buildLogger constructs the hclog logger, size-rotating file output
// when a log path is configured.
func buildLogger(lc logConfig) hclog.Logger {
	var out io.Writer = os.Stderr
	if lc.Path != "" {
		out = &lumberjack.Logger{
			Filename:   lc.Path,
			MaxSize:    20, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "civitai-assistant",
		Level:  hclog.LevelFromString(lc.Level),
		Output: out,
	})
}

// exitCodeFromError maps error types to exit codes.
func exitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, assistant.ErrInvalidType):
		return ExitInvalidArgs
	case errors.Is(err, assistant.ErrStorage):
		return ExitStorageError
	default:
		return ExitGeneralError
	}
}
