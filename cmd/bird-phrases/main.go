package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loqalabs/fortune-bird/internal/config"
	"github.com/loqalabs/fortune-bird/internal/phrases"
	"github.com/loqalabs/fortune-bird/internal/tts"
)

var version = "0.1.0-dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	overwrite := flag.Bool("overwrite", false, "Re-synthesize phrases that already exist")
	only := flag.String("only", "", "Generate a single set: prerecorded, before or after")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sets, err := selectSets(phrases.Sets(cfg), *only)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	synth, err := tts.New(cfg.TTS)
	if err != nil {
		logger.Error("failed to create synthesizer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := phrases.NewGenerator(synth, cfg.TTS, *overwrite, logger).Generate(ctx, sets)
	logger.Info("phrase generation finished",
		slog.Int("written", res.Written),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed))
	if err != nil {
		logger.Error("phrase generation incomplete", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func selectSets(all []phrases.Set, name string) ([]phrases.Set, error) {
	if name == "" {
		return all, nil
	}
	for _, s := range all {
		if s.Name == name {
			return []phrases.Set{s}, nil
		}
	}
	return nil, fmt.Errorf("unknown phrase set %q", name)
}
