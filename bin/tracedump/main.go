package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/chzyer/readline"

	"github.com/pattyshack/stacktrace"
	"github.com/pattyshack/stacktrace/config"
	"github.com/pattyshack/stacktrace/symbol"
)

func main() {
	configPath := ""
	flag.StringVar(&configPath, "config", "", "yaml config file")

	labelThread := false
	flag.BoolVar(
		&labelThread,
		"tid",
		false,
		"prefix trace lines with the os thread id")

	flag.Parse()
	if len(flag.Args()) != 0 {
		panic("unexpected arguments")
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			panic(err)
		}
	}

	logger := slog.New(
		slog.NewTextHandler(
			os.Stderr,
			&slog.HandlerOptions{Level: cfg.LogLevel.Level()}))
	slog.SetDefault(logger)

	backend, err := symbol.ByKind(cfg.Backend)
	if err != nil {
		panic(err)
	}

	if labelThread {
		// keep the label accurate for every capture
		runtime.LockOSThread()
		cfg.Prefix = fmt.Sprintf("[tid %d] %s", threadID(), cfg.Prefix)
	}

	sess := &session{
		config: cfg,
		out:    os.Stdout,
		renderer: &stacktrace.Renderer{
			Backend:               backend,
			Companion:             symbol.NewLoaderCompanion(),
			CompanionOverridesRaw: cfg.CompanionOverridesRaw,
			Logger:                logger,
		},
	}

	logger.Debug(
		"starting tracedump",
		"backend", backend.Kind(),
		"max_frames", cfg.MaxFrames,
		"frames_to_skip", cfg.FramesToSkip)

	rl, err := readline.New("tracedump > ")
	if err != nil {
		panic(err)
	}
	defer rl.Close()

	lastLine := ""
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				break
			}
			panic(err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = lastLine
		}
		lastLine = line

		if line == "" {
			continue
		}

		args := strings.Fields(line)
		if isQuit(args[0]) {
			break
		}

		cmd, err := lookupCommand(args[0])
		if err != nil {
			fmt.Fprintln(sess.out, err)
			continue
		}

		err = runCommand(sess, cmd, args[1:])
		if err != nil {
			fmt.Fprintln(sess.out, "error:", err)
		}
	}
}
