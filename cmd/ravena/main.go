package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const version = "0.3.0"

func main() {
	// Load .env file; plain environment variables work too
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "ravena",
		Usage:   "Multi-session group bot for Lark/Feishu",
		Version: version,
		Commands: []*cli.Command{
			runCommand(),
			mcpCommand(),
			sendCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// newLogger builds the root logger: console output in debug mode, JSON otherwise
func newLogger(debug bool, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
