package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	. "github.com/pattyshack/stacktrace/common"
	"github.com/pattyshack/stacktrace/symbol"
)

type ConfigSuite struct{}

func TestConfig(t *testing.T) {
	suite.RunTests(t, &ConfigSuite{})
}

func (ConfigSuite) TestDefaults(t *testing.T) {
	config, err := Parse(nil)
	expect.Nil(t, err)
	expect.Equal(t, Default(), config)

	expect.Equal(t, 32, config.MaxFrames)
	expect.Equal(t, 0, config.FramesToSkip)
	expect.Equal(t, "", config.Prefix)
	expect.Equal(t, "    ", config.Indent)
	expect.Equal(t, symbol.Kind(""), config.Backend)
	expect.False(t, config.CompanionOverridesRaw)
	expect.Equal(t, slog.LevelInfo, config.LogLevel.Level())
}

func (ConfigSuite) TestParse(t *testing.T) {
	config, err := Parse([]byte(`
max_frames: 8
frames_to_skip: 2
prefix: "[render] "
indent: "\t"
backend: batch
companion_overrides_raw: true
log_level: debug
`))
	expect.Nil(t, err)

	expect.Equal(t, 8, config.MaxFrames)
	expect.Equal(t, 2, config.FramesToSkip)
	expect.Equal(t, "[render] ", config.Prefix)
	expect.Equal(t, "\t", config.Indent)
	expect.Equal(t, symbol.KindBatch, config.Backend)
	expect.True(t, config.CompanionOverridesRaw)
	expect.Equal(t, slog.LevelDebug, config.LogLevel.Level())
}

func (ConfigSuite) TestPartialDocumentKeepsDefaults(t *testing.T) {
	config, err := Parse([]byte("prefix: \"> \"\n"))
	expect.Nil(t, err)
	expect.Equal(t, "> ", config.Prefix)
	expect.Equal(t, DefaultMaxFrames, config.MaxFrames)
	expect.Equal(t, DefaultIndent, config.Indent)
}

func (ConfigSuite) TestUnknownField(t *testing.T) {
	_, err := Parse([]byte("max_frame: 8\n"))
	expect.Error(t, err, "max_frame")
}

func (ConfigSuite) TestInvalidValues(t *testing.T) {
	_, err := Parse([]byte("max_frames: 0\n"))
	expect.True(t, errors.Is(err, ErrInvalidArgument))
	expect.Error(t, err, "max_frames")

	_, err = Parse([]byte("max_frames: 100000\n"))
	expect.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = Parse([]byte("frames_to_skip: -1\n"))
	expect.True(t, errors.Is(err, ErrInvalidArgument))
	expect.Error(t, err, "frames_to_skip")

	_, err = Parse([]byte("frames_to_skip: 5000\n"))
	expect.True(t, errors.Is(err, ErrInvalidArgument))
	expect.Error(t, err, "frames_to_skip (5000) must be in [0, 1024]")

	_, err = Parse([]byte("backend: libunwind\n"))
	expect.True(t, errors.Is(err, ErrInvalidArgument))
	expect.Error(t, err, "libunwind")

	_, err = Parse([]byte("log_level: chatty\n"))
	expect.Error(t, err, "invalid log level")

	_, err = Parse([]byte("log_level: [debug]\n"))
	expect.Error(t, err, "must be a scalar")
}

func (ConfigSuite) TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracedump.yaml")
	err := os.WriteFile(path, []byte("max_frames: 4\nlog_level: warn\n"), 0o644)
	expect.Nil(t, err)

	config, err := Load(path)
	expect.Nil(t, err)
	expect.Equal(t, 4, config.MaxFrames)
	expect.Equal(t, slog.LevelWarn, config.LogLevel.Level())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	expect.Error(t, err, "failed to read config")
}

func (ConfigSuite) TestMarshal(t *testing.T) {
	config := Default()
	config.Backend = symbol.KindQuery
	config.LogLevel = LogLevel(slog.LevelError)

	content, err := config.Marshal()
	expect.Nil(t, err)

	parsed, err := Parse(content)
	expect.Nil(t, err)
	expect.Equal(t, config, parsed)
}
