// Command polydef compiles YAML entity definitions into the binary stream
// read by the engine's loader.
//
//	polydef -out build/ launcher.yaml enemies.yaml
//
// Each input x.yaml is written to DIR/x.bin.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/polyengine/internal/core/definition"
	"github.com/zeusync/polyengine/internal/core/observability/log"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("polydef", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", ".", "output directory")
	verbose := fs.Bool("v", false, "log every compiled file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: polydef [-out DIR] [-v] file.yaml...")
		return 2
	}

	level := log.LevelWarn
	if *verbose {
		level = log.LevelInfo
	}
	logger := log.NewWriter(level, stderr)
	defer func() { _ = logger.Sync() }()

	if err := compileAll(*out, fs.Args(), logger); err != nil {
		fmt.Fprintln(stderr, "polydef:", err)
		return 1
	}
	return 0
}

func compileAll(dir string, sources []string, logger log.Log) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, src := range sources {
		g.Go(func() error {
			dst := filepath.Join(dir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))+".bin")
			n, err := compile(src, dst)
			if err != nil {
				return err
			}
			logger.Info("compiled", log.String("source", src), log.String("output", dst), log.Int("bytes", n))
			return nil
		})
	}
	return g.Wait()
}

func compile(src, dst string) (int, error) {
	doc, err := definition.LoadYAMLFile(src)
	if err != nil {
		return 0, err
	}
	raw, err := doc.Bytes()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", src, err)
	}
	if err := os.WriteFile(dst, raw, 0o644); err != nil {
		return 0, err
	}
	return len(raw), nil
}
