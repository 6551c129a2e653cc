// Package config resolves the immutable process configuration.
//
// All environment reads happen here, once, at process start. Components
// receive the resolved Config by value and never consult the environment
// themselves.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shellmon/shellmon/internal/domain"
)

// Environment keys. All optional; defaults below.
const (
	EnvRCFile      = "SHELLMON_RC_FILE"
	EnvPayload     = "SHELLMON_PAYLOAD"
	EnvInterpreter = "SHELLMON_INTERPRETER"
	EnvAutostart   = "SHELLMON_AUTOSTART"
	EnvSourceURL   = "SHELLMON_SOURCE_URL"
	EnvBlockTag    = "SHELLMON_BLOCK_TAG"
)

// DefaultBlockTag identifies the managed region in the rc file.
const DefaultBlockTag = "shellmon initialize"

// DefaultInterpreter is the worker's interpreter binary name.
const DefaultInterpreter = "python"

// Config is the immutable configuration for one invocation.
type Config struct {
	RCFile      string `validate:"required,abspath"`
	PayloadPath string `validate:"required,abspath"`
	Interpreter string `validate:"required"`
	Autostart   bool
	SourceURL   string `validate:"omitempty,url"`
	BlockTag    string `validate:"required"`
}

// Descriptor derives the worker descriptor for this configuration.
func (c Config) Descriptor() domain.WorkerDescriptor {
	return domain.WorkerDescriptor{
		PayloadPath: c.PayloadPath,
		Interpreter: c.Interpreter,
		Autostart:   c.Autostart,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// "abspath" rejects relative paths after ~ expansion.
	_ = v.RegisterValidation("abspath", func(fl validator.FieldLevel) bool {
		return filepath.IsAbs(fl.Field().String())
	})
	return v
}

// FromEnv builds the configuration from the environment, applying defaults
// for unset keys, then validates it.
func FromEnv() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("cannot resolve home directory: %w", err)
	}

	cfg := Config{
		RCFile:      expandHome(envOr(EnvRCFile, filepath.Join(home, ".bashrc")), home),
		PayloadPath: expandHome(envOr(EnvPayload, filepath.Join(home, ".shellmon", "worker.py")), home),
		Interpreter: envOr(EnvInterpreter, DefaultInterpreter),
		Autostart:   parseBool(envOr(EnvAutostart, "1")),
		SourceURL:   os.Getenv(EnvSourceURL),
		BlockTag:    envOr(EnvBlockTag, DefaultBlockTag),
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
