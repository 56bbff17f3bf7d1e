package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	"github.com/hejijunhao/tablelog/internal/config"
	"github.com/hejijunhao/tablelog/internal/logging"
	"github.com/hejijunhao/tablelog/pkg/tablelog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin); err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "tablelog: %v\n", err)
		os.Exit(1)
	}
}

// run ships every line read from stdin (or --input) as one log row and
// closes the handler once input ends or ctx is cancelled.
func run(ctx context.Context, args []string, stdin io.Reader) error {
	cfg, input, err := parseArgs(args)
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Println("tablelog " + config.Version)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	// Row data goes to stdout in dry runs, so keep diagnostics as JSON.
	diag := logging.Init(slices.Contains(cfg.SinkNames(), "stdout"), logging.ParseLevel(cfg.LogLevel))

	var failed int
	opts := []tablelog.Option{
		tablelog.WithCapacity(cfg.Handler.Capacity),
		tablelog.WithLevel(logging.ParseLevel(cfg.Handler.Level)),
		tablelog.WithName(cfg.Handler.LoggerName),
		tablelog.WithSinkConfig(tablelog.SinkConfig{
			Endpoint:        cfg.Sink.Endpoint,
			Token:           cfg.Sink.Token,
			CredentialsFile: cfg.Sink.CredentialsFile,
			Gzip:            cfg.Sink.Gzip,
			Format:          cfg.Sink.Format,
			Path:            cfg.Sink.Path,
			MaxSize:         cfg.Sink.MaxSize,
			Timeout:         cfg.Sink.Timeout,
			Pretty:          cfg.Sink.Pretty,
			Extra:           cfg.Sink.Headers,
		}),
		tablelog.WithOnError(func(err error) {
			failed++
			diag.Warn("insert failed", "error", err)
		}),
	}
	if cfg.Handler.InsertIDs {
		opts = append(opts, tablelog.WithInsertIDs())
	}

	h, err := tablelog.Open(ctx, cfg.Sink.Name, cfg.Table.Project, cfg.Table.Dataset, cfg.Table.Table, opts...)
	if err != nil {
		return err
	}
	diag.Info("tablelog: starting",
		"sink", cfg.Sink.Name,
		"table", cfg.Table.Project+"."+cfg.Table.Dataset+"."+cfg.Table.Table,
		"capacity", cfg.Handler.Capacity)

	r := stdin
	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			h.Close()
			return errors.Wrap(err, "open input")
		}
		defer f.Close()
		r = f
	}

	readErr := ship(ctx, h.Logger(), r)
	closeErr := h.Close()

	st := h.Stats()
	diag.Info("tablelog: done", "rows", st.Rows, "flushes", st.Flushes, "lost", st.Lost, "failed_calls", failed)
	if readErr != nil && !errors.Is(readErr, context.Canceled) {
		return errors.CombineErrors(errors.Wrap(readErr, "read input"), closeErr)
	}
	return closeErr
}

// parseArgs loads the config (file, then env) and applies flags on top.
func parseArgs(args []string) (config.Config, string, error) {
	fs := pflag.NewFlagSet("tablelog", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "YAML config file")
	sinkName := fs.StringP("sink", "s", "", "sink name(s), comma-separated: bigquery, webhook, stdout, file")
	capacity := fs.IntP("capacity", "n", 0, "records buffered per insert call")
	level := fs.StringP("level", "l", "", "minimum level shipped: debug, info, warn, error")
	input := fs.StringP("input", "i", "", "read lines from this file instead of stdin")
	dryRun := fs.Bool("dry-run", false, "print insert requests to stdout instead of sending them")
	version := fs.BoolP("version", "v", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, "", err
	}

	cfg := config.Load()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return config.Config{}, "", err
		}
	}
	if fs.Changed("sink") {
		cfg.Sink.Name = *sinkName
	}
	if fs.Changed("capacity") {
		cfg.Handler.Capacity = *capacity
	}
	if fs.Changed("level") {
		cfg.Handler.Level = *level
	}
	if *dryRun {
		cfg.DryRun = true
		cfg.Sink.Name = "stdout"
	}
	cfg.ShowVersion = *version
	return cfg, *input, nil
}

// ship logs each non-blank line at the level named by its first word,
// defaulting to info.
func ship(ctx context.Context, logger *slog.Logger, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		logger.Log(ctx, lineLevel(line), line)
	}
	return sc.Err()
}

// lineLevel guesses a level from a leading "ERROR", "[warn]", "DEBUG:" token.
func lineLevel(line string) slog.Level {
	word, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	word = strings.Trim(word, "[]:")
	switch strings.ToUpper(word) {
	case "DEBUG", "TRACE":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "ERR", "FATAL", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
