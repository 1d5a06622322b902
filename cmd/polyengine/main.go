package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/zeusync/polyengine/internal/config"
	"github.com/zeusync/polyengine/internal/core/engine"
	"github.com/zeusync/polyengine/internal/core/observability/log"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("polyengine", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", config.DefaultPath, "configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := start(ctx, *path, stderr); err != nil {
		fmt.Fprintln(stderr, "polyengine:", err)
		return 1
	}
	return 0
}

// start loads the launcher definition into a fresh world, activates it and
// runs the engine until it halts.
func start(ctx context.Context, path string, stderr io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.Get(config.KeyLogLevel, ""))
	if err != nil {
		return err
	}
	logger := log.NewWriter(level, stderr)
	defer func() { _ = logger.Sync() }()

	tick, err := cfg.Duration(config.KeyTick, 0)
	if err != nil {
		return err
	}
	launcher, err := cfg.Require(config.KeyLauncher)
	if err != nil {
		return err
	}
	// Relative launcher paths are resolved against the config file.
	if !filepath.IsAbs(launcher) {
		launcher = filepath.Join(filepath.Dir(cfg.Path()), launcher)
	}

	reg := engine.NewRegistry()
	if err := engine.RegisterBuiltins(reg); err != nil {
		return err
	}
	eng := engine.New(reg, cfg, engine.WithLogger(logger), engine.WithTickRate(tick))

	w, err := eng.AddWorld()
	if err != nil {
		return err
	}
	loader, err := w.LoadEntitiesFile(launcher)
	if err != nil {
		return err
	}
	res, err := loader.LoadAll()
	if err != nil {
		return err
	}
	if err := w.Activate(); err != nil {
		return err
	}

	logger.Info("engine starting",
		log.String("config", path),
		log.String("launcher", launcher),
		log.Int("entities", len(res.Entities())),
		log.Duration("tick", tick),
	)
	return eng.Run(ctx)
}
