package commands

import (
	"log/slog"
	"os"

	"github.com/simlink-go/simlink/pkg/config"
	"github.com/simlink-go/simlink/pkg/simlink"
)

// GetConfig loads the file named by SIMLINK_CONFIG, or the defaults
// when the variable is unset.
func GetConfig() (*config.Config, error) {
	path := os.Getenv("SIMLINK_CONFIG")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newEngine(verbose bool) (*simlink.Engine, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return simlink.New(cfg, simlink.Options{Logger: newLogger(verbose)}), nil
}
