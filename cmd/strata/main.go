// Command strata resolves YAML schema documents and generates typed
// record accessors.
//
// Usage:
//
//	strata validate -schema schema.yaml
//	strata gen -schema schema.yaml -target ./internal/entities -pkg entities
//	strata watch -schema schema.yaml -target ./internal/entities -pkg entities
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/compiler/gen"
	"github.com/strataorm/strata/compiler/load"
	"github.com/strataorm/strata/model"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "validate":
		err = runValidate(log, args)
	case "gen":
		err = runGen(log, args)
	case "watch":
		err = runWatch(log, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("strata failed", "cmd", cmd, "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: strata <validate|gen|watch> [flags]")
}

// resolve loads and resolves a schema document, reporting every build
// error rather than the first.
func resolve(path string) (*model.Model, error) {
	defs, err := load.File(path)
	if err != nil {
		return nil, err
	}
	return model.Build(defs...)
}

func runValidate(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	schema := fs.String("schema", "schema.yaml", "schema document")
	if err := fs.Parse(args); err != nil {
		return err
	}
	m, err := resolve(*schema)
	if err != nil {
		var se *strata.SchemaError
		if errors.As(err, &se) {
			for _, e := range se.Unwrap() {
				log.Error("schema error", "err", e)
			}
		}
		return err
	}
	for _, e := range m.Entities() {
		log.Info("resolved", "entity", e.Name(), "table", e.Table(), "columns", len(e.Columns()), "keys", len(e.Keys()))
	}
	return nil
}

func runGen(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	schema := fs.String("schema", "schema.yaml", "schema document")
	target := fs.String("target", "./entities", "output directory")
	pkg := fs.String("pkg", "", "generated package name (default: target base name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return generate(log, *schema, *target, *pkg)
}

func generate(log *slog.Logger, schema, target, pkg string) error {
	m, err := resolve(schema)
	if err != nil {
		return err
	}
	cfg := gen.Config{Package: pkg, Dir: target}
	if err := gen.Generate(m, cfg); err != nil {
		return err
	}
	log.Info("generated", "entities", len(m.Entities()), "dir", target)
	return nil
}

// runWatch regenerates on every change of the schema document. Editors
// replace files rather than writing in place, so the watch covers the
// directory and filters by name.
func runWatch(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	schema := fs.String("schema", "schema.yaml", "schema document")
	target := fs.String("target", "./entities", "output directory")
	pkg := fs.String("pkg", "", "generated package name (default: target base name)")
	debounce := fs.Duration("debounce", 250*time.Millisecond, "regeneration delay after a change")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := generate(log, *schema, *target, *pkg); err != nil {
		log.Error("initial generation failed", "err", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	dir := filepath.Dir(*schema)
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Info("watching", "schema", *schema)
	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(*schema) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(*debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			if err := generate(log, *schema, *target, *pkg); err != nil {
				log.Error("generation failed", "err", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "err", err)
		}
	}
}
