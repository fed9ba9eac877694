package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	. "github.com/pattyshack/stacktrace/common"
	"github.com/pattyshack/stacktrace/symbol"
)

const (
	DefaultMaxFrames = 32
	DefaultIndent    = "    "

	// Upper bound on a single capture.
	MaxFrames = 4096

	// Upper bound on frames_to_skip.  Skipping past the end of the stack
	// still panics at capture time.
	MaxFramesToSkip = 1024
)

// LogLevel is a slog level spelled as in slog's text output (debug, info,
// warn, error).
type LogLevel slog.Level

func (level LogLevel) Level() slog.Level {
	return slog.Level(level)
}

func (level LogLevel) String() string {
	return strings.ToLower(slog.Level(level).String())
}

func (level *LogLevel) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf(
			"%w: log level must be a scalar (line %d)",
			ErrInvalidArgument,
			node.Line)
	}

	var parsed slog.Level
	err := parsed.UnmarshalText([]byte(node.Value))
	if err != nil {
		return fmt.Errorf(
			"%w: invalid log level (%s) at line %d: %w",
			ErrInvalidArgument,
			node.Value,
			node.Line,
			err)
	}

	*level = LogLevel(parsed)
	return nil
}

func (level LogLevel) MarshalYAML() (any, error) {
	return level.String(), nil
}

type Config struct {
	MaxFrames    int    `yaml:"max_frames"`
	FramesToSkip int    `yaml:"frames_to_skip"`
	Prefix       string `yaml:"prefix"`
	Indent       string `yaml:"indent"`

	// Empty selects the platform default.
	Backend symbol.Kind `yaml:"backend"`

	CompanionOverridesRaw bool `yaml:"companion_overrides_raw"`

	LogLevel LogLevel `yaml:"log_level"`
}

func Default() Config {
	return Config{
		MaxFrames: DefaultMaxFrames,
		Indent:    DefaultIndent,
		LogLevel:  LogLevel(slog.LevelInfo),
	}
}

// Parse decodes a yaml document on top of the defaults.  Unknown fields are
// rejected.  An empty document yields the defaults.
func Parse(content []byte) (Config, error) {
	config := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)

	err := decoder.Decode(&config)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return Config{}, err
	}

	return config, nil
}

func Load(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	config, err := Parse(content)
	if err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

func (config Config) Validate() error {
	if config.MaxFrames < 1 || config.MaxFrames > MaxFrames {
		return fmt.Errorf(
			"%w: max_frames (%d) must be in [1, %d]",
			ErrInvalidArgument,
			config.MaxFrames,
			MaxFrames)
	}

	if config.FramesToSkip < 0 || config.FramesToSkip > MaxFramesToSkip {
		return fmt.Errorf(
			"%w: frames_to_skip (%d) must be in [0, %d]",
			ErrInvalidArgument,
			config.FramesToSkip,
			MaxFramesToSkip)
	}

	if config.Backend != "" {
		_, err := symbol.ByKind(config.Backend)
		if err != nil {
			return err
		}
	}

	return nil
}

func (config Config) Marshal() ([]byte, error) {
	content, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return content, nil
}
