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
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"shotlate/internal/batch"
	"shotlate/internal/domain"
	"shotlate/internal/export"
	"shotlate/internal/imagecodec"
	"shotlate/internal/infra"
	"shotlate/internal/providers/factory"
	"shotlate/internal/storage"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitAborted = 2
)

type options struct {
	provider   string
	model      string
	apiKey     string
	source     string
	context    string
	preset     string
	moderation string
	policy     string
	workers    int
	outDir     string
	zipPath    string
	asJSON     bool
	verbose    bool
	images     []string
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitFailure
	}

	level := zerolog.WarnLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: true}).Level(level).With().Timestamp().Logger()

	job, policy, workers, err := buildJob(opts, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	registry := factory.NewRegistry(cfg, &logger)
	if adapter, err := registry.Lookup(job.Provider.Provider); err == nil && opts.moderation == "" && job.Provider.ModerationOverride {
		job.Provider.ModerationOverride = adapter.SupportsModerationOverride()
	}

	runner := batch.New(batch.Options{
		Registry:          registry,
		Encoder:           imagecodec.New(imagecodec.Options{MaxDimension: cfg.ImageMaxDimension, Logger: &logger}),
		Logger:            &logger,
		TruncationPolicy:  policy,
		Concurrency:       workers,
		ItemTimeout:       cfg.ItemTimeout,
		RequestsPerSecond: cfg.ProviderRPS,
	})

	report, err := runner.Run(ctx, job, func(p domain.Progress) {
		fmt.Fprintf(stderr, "[%d/%d] %3.0f%%\n", p.Completed, p.Total, p.Fraction()*100)
	})
	if err != nil {
		fmt.Fprintf(stderr, "aborted: %s\n", batch.AbortMessage(err))
		return exitAborted
	}

	for _, w := range report.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}
	if err := saveOutputs(ctx, opts, report.Record(job)); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(stderr, "encode report: %v\n", err)
			return exitFailure
		}
		return exitOK
	}
	printReport(stdout, report)
	return exitOK
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("shotlate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.provider, "provider", "", "model provider: gemini, openai, anthropic or xai (default gemini)")
	fs.StringVar(&opts.model, "model", "", "model id (defaults to the provider's default)")
	fs.StringVar(&opts.apiKey, "api-key", "", "API key (falls back to <PROVIDER>_API_KEY)")
	fs.StringVar(&opts.source, "source", "", "source language: auto, ko, ja, en, zh-Hans")
	fs.StringVar(&opts.context, "context", "", "context style: general, fiction, game, technical")
	fs.StringVar(&opts.preset, "config", "", "YAML job preset")
	fs.StringVar(&opts.moderation, "moderation-override", "", "true/false; defaults to the provider capability")
	fs.StringVar(&opts.policy, "truncation", "", "policy above 10 images: silent or warn")
	fs.IntVar(&opts.workers, "concurrency", 0, "images in flight at once")
	fs.StringVar(&opts.outDir, "out", "", "write one NNN_<name>.txt per image plus manifest.json into this directory")
	fs.StringVar(&opts.zipPath, "zip", "", "write the same files as a zip archive")
	fs.BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: shotlate [flags] image [image ...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.images = fs.Args()
	return opts, nil
}

// buildJob merges flags over the preset over the environment.
func buildJob(opts options, cfg *infra.Config) (domain.TranslationJob, string, int, error) {
	preset := &infra.JobPreset{}
	if opts.preset != "" {
		p, err := infra.LoadPreset(opts.preset)
		if err != nil {
			return domain.TranslationJob{}, "", 0, err
		}
		preset = p
	}

	provider := strings.ToLower(firstNonEmpty(opts.provider, preset.Provider, "gemini"))
	model := firstNonEmpty(opts.model, preset.Model)

	keyEnv := firstNonEmpty(preset.APIKeyEnv, infra.APIKeyEnvFor(provider))
	apiKey := firstNonEmpty(opts.apiKey, os.Getenv(keyEnv))
	if apiKey == "" {
		if settings, ok := cfg.Provider(provider); ok {
			apiKey = settings.APIKey
		}
	}

	override := true
	if preset.ModerationOverride != nil {
		override = *preset.ModerationOverride
	}
	if opts.moderation != "" {
		v, err := strconv.ParseBool(opts.moderation)
		if err != nil {
			return domain.TranslationJob{}, "", 0, fmt.Errorf("-moderation-override must be true or false")
		}
		override = v
	}

	policy := firstNonEmpty(opts.policy, preset.TruncationPolicy, cfg.TruncationPolicy)
	workers := cfg.BatchConcurrency
	if preset.Concurrency > 0 {
		workers = preset.Concurrency
	}
	if opts.workers > 0 {
		workers = opts.workers
	}

	items := make([]domain.ImageItem, 0, len(opts.images))
	for _, path := range opts.images {
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.TranslationJob{}, "", 0, fmt.Errorf("read %s: %w", path, err)
		}
		items = append(items, domain.ImageItem{Name: filepath.Base(path), Data: data})
	}

	return domain.TranslationJob{
		Items: items,
		Provider: domain.ProviderConfig{
			Provider:           provider,
			Model:              model,
			Credential:         apiKey,
			ModerationOverride: override,
		},
		SourceLanguage: domain.ParseSourceLanguage(firstNonEmpty(opts.source, preset.SourceLanguage)),
		Context:        domain.ParseContextStyle(firstNonEmpty(opts.context, preset.Context)),
	}, policy, workers, nil
}

func saveOutputs(ctx context.Context, opts options, rec domain.JobRecord) error {
	if opts.outDir != "" {
		dir, err := storage.OpenDir(opts.outDir)
		if err != nil {
			return err
		}
		manifest, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		if _, err := dir.Write(ctx, export.ManifestName, manifest); err != nil {
			return err
		}
		for _, res := range rec.Results {
			if _, err := dir.Write(ctx, export.FileName(res), export.Body(res)); err != nil {
				return err
			}
		}
	}
	if opts.zipPath != "" {
		data, err := export.Archive(rec)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.zipPath, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", opts.zipPath, err)
		}
	}
	return nil
}

func printReport(w io.Writer, report *batch.Report) {
	for _, res := range report.Results {
		fmt.Fprintf(w, "#%d %s [%s]\n", res.Index+1, res.Name, res.Status)
		if res.Text != "" {
			fmt.Fprintln(w, res.Text)
		}
		if res.Detail != "" {
			fmt.Fprintf(w, "  %s\n", res.Detail)
		}
		fmt.Fprintln(w)
	}
	succeeded, blocked, failed := report.Counts()
	fmt.Fprintf(w, "done: %d translated, %d blocked, %d failed (%s/%s)\n", succeeded, blocked, failed, report.Provider, report.Model)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
