// Command vocabstore manages a vocabulary store from the shell.
//
//	vocabstore [-config file] [-db path] [-v] <command> [flags]
//
// Commands:
//
//	init     create the schema
//	import   add a JSON array of items to a list
//	stats    print aggregate statistics for an owner
//	search   fuzzy search items
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-vocabulary-store/authz"
	"github.com/goliatone/go-vocabulary-store/pkg/di"
	"github.com/goliatone/go-vocabulary-store/vocab"
)

var errUsage = errors.New("usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "vocabstore: %v\n", err)
		}
		os.Exit(1)
	}
}

type globals struct {
	config  string
	db      string
	verbose bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var g globals
	fs := flag.NewFlagSet("vocabstore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.config, "config", "", "YAML configuration file")
	fs.StringVar(&g.db, "db", "vocabstore.db", "SQLite database path, ignored with -config")
	fs.BoolVar(&g.verbose, "v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: vocabstore [-config file] [-db path] [-v] init|import|stats|search [flags]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "init":
		return withContainer(ctx, g, stderr, func(c *di.Container) error {
			fmt.Fprintf(stdout, "schema ready (%s)\n", c.Config().Database.Driver)
			return nil
		})
	case "import":
		return runImport(ctx, g, rest, stdout, stderr)
	case "stats":
		return runStats(ctx, g, rest, stdout, stderr)
	case "search":
		return runSearch(ctx, g, rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return errUsage
	}
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}

func loadConfig(g globals) (di.Config, error) {
	if g.config != "" {
		return di.LoadConfig(g.config)
	}
	cfg := di.DefaultConfig()
	cfg.Database = di.DatabaseConfig{
		Driver:       di.DriverSQLite,
		DSN:          g.db + "?_busy_timeout=5000",
		MaxOpenConns: 1,
		AutoMigrate:  true,
	}
	return cfg, cfg.Validate()
}

// withContainer builds a container, hands it to fn and closes it, draining
// queued events and cache writes.
func withContainer(ctx context.Context, g globals, stderr io.Writer, fn func(*di.Container) error) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	logger := newLogger(stderr, g.verbose)
	container, err := di.NewContainer(ctx, cfg, di.WithLogger(logger))
	if err != nil {
		return err
	}

	runErr := fn(container)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := container.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("close failed")
	}
	return runErr
}

type importSummary struct {
	ListID  uuid.UUID       `json:"list_id"`
	Added   int             `json:"added"`
	Failed  []importFailure `json:"failed,omitempty"`
	Retries int             `json:"retries"`
	Elapsed string          `json:"elapsed"`
}

type importFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

func runImport(ctx context.Context, g globals, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	owner := fs.String("owner", "", "owner id (required)")
	listID := fs.String("list", "", "existing list id")
	name := fs.String("name", "", "create a new list with this name")
	public := fs.Bool("public", false, "make the new list public")
	sourceLang := fs.String("source-lang", "es", "source language of a new list")
	targetLang := fs.String("target-lang", "en", "target language of a new list")
	file := fs.String("file", "", "JSON array of items, - for stdin (required)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *owner == "" || *file == "" || (*listID == "") == (*name == "") {
		fmt.Fprintln(stderr, "import needs -owner, -file and exactly one of -list or -name")
		fs.PrintDefaults()
		return errUsage
	}

	items, err := readItems(*file)
	if err != nil {
		return err
	}

	return withContainer(ctx, g, stderr, func(c *di.Container) error {
		svc := c.Service()

		var target uuid.UUID
		if *listID != "" {
			var err error
			if target, err = uuid.Parse(*listID); err != nil {
				return fmt.Errorf("invalid -list: %w", err)
			}
		} else {
			visibility := authz.Private
			if *public {
				visibility = authz.Public
			}
			list, err := svc.CreateList(ctx, *owner, vocab.NewList{
				Name:       *name,
				Visibility: visibility,
				Kind:       vocab.KindCustom,
				SourceLang: *sourceLang,
				TargetLang: *targetLang,
			})
			if err != nil {
				return err
			}
			target = list.ID
		}

		for i := range items {
			items[i].ListID = target
		}
		res := svc.AddBatch(ctx, *owner, items)

		summary := importSummary{
			ListID:  target,
			Added:   len(res.Succeeded),
			Retries: res.Retries,
			Elapsed: res.Elapsed.Round(time.Millisecond).String(),
		}
		for _, f := range res.Failed {
			summary.Failed = append(summary.Failed, importFailure{Index: f.Index, Error: f.Err.Error()})
		}
		return writeJSON(stdout, summary)
	})
}

func readItems(path string) ([]vocab.NewItem, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}

	var items []vocab.NewItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse items %s: %w", path, err)
	}
	return items, nil
}

func runStats(ctx context.Context, g globals, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	owner := fs.String("owner", "", "owner id (required)")
	category := fs.String("category", "", "only items in this category")
	public := fs.Bool("public", false, "include public lists of other owners")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *owner == "" {
		fmt.Fprintln(stderr, "stats needs -owner")
		return errUsage
	}

	return withContainer(ctx, g, stderr, func(c *di.Container) error {
		stats, err := c.Service().Stats(ctx, *owner, vocab.ItemQuery{
			Filter:        vocab.ItemFilter{Category: *category},
			IncludePublic: *public,
		})
		if err != nil {
			return err
		}
		return writeJSON(stdout, stats)
	})
}

func runSearch(ctx context.Context, g globals, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(stderr)
	owner := fs.String("owner", "", "owner id (required)")
	query := fs.String("q", "", "search text (required)")
	public := fs.Bool("public", true, "include public lists of other owners")
	limit := fs.Int("limit", 10, "maximum number of hits")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *owner == "" || *query == "" {
		fmt.Fprintln(stderr, "search needs -owner and -q")
		return errUsage
	}

	return withContainer(ctx, g, stderr, func(c *di.Container) error {
		hits, err := c.Service().Search(ctx, *owner, vocab.SearchQuery{
			Text:          *query,
			IncludePublic: *public,
			Limit:         *limit,
		})
		if err != nil {
			return err
		}
		for _, h := range hits {
			fmt.Fprintf(stdout, "%.3f\t%s\t%s\t%s\n", h.Score, h.Item.SourceText, h.Item.TargetText, h.Item.ID)
		}
		return nil
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
