package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"aisum/internal/config"
	"aisum/internal/errors"
	"aisum/internal/genai"
	"aisum/internal/issues"
	"aisum/internal/jira"
	"aisum/internal/slogutil"
	"aisum/internal/storage"
	"aisum/internal/summarizer"
	"aisum/internal/throttle"
)

// app is everything a command needs, built once from the config.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	jira      *jira.Client
	cache     *issues.Cache
	genClient *genai.Client
	sum       *summarizer.Summarizer
	db        *storage.DB
}

// mustGetApp loads the config and wires the tracker client, cache and
// summarizer. The generation client is only required when needGen is set, so
// read-only commands work without generation credentials.
func mustGetApp(needGen bool) *app {
	cfg, err := loadConfig()
	if err != nil {
		fatal("%v", err)
	}
	logger, closer, err := slogutil.Setup(cfg.Logging, os.Stderr, levelOverride())
	if err != nil {
		fatal("setting up logging: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("%v", err)
	}
	a := &app{cfg: cfg, logger: logger, logCloser: closer}

	limiter := throttle.New(time.Duration(cfg.Jira.MinCallDelayMs)*time.Millisecond, throttle.SystemClock{})
	a.jira, err = jira.New(jira.Options{
		BaseURL: cfg.Jira.URL,
		Token:   cfg.Jira.Token,
		Fields: jira.FieldIDs{
			EpicLink:      cfg.Jira.Fields.EpicLink,
			FeatureLink:   cfg.Jira.Fields.FeatureLink,
			ParentLink:    cfg.Jira.Fields.ParentLink,
			StatusSummary: cfg.Jira.Fields.StatusSummary,
			Blocked:       cfg.Jira.Fields.Blocked,
			BlockedReason: cfg.Jira.Fields.BlockedReason,
		},
		Timeout:    time.Duration(cfg.Jira.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.Jira.MaxRetries,
		Limiter:    limiter,
		Logger:     logger.With("component", "jira"),
	})
	if err != nil {
		fatal("%v", err)
	}
	a.cache = issues.NewCache(a.jira, cfg.Cache.Capacity, logger.With("component", "cache"))

	var gen genai.Generator = unavailableGenerator{}
	if needGen {
		if err := cfg.ValidateGenAI(); err != nil {
			fatal("%v", err)
		}
		a.genClient, err = genai.NewClient(genai.Options{
			BaseURL: cfg.GenAI.URL,
			Key:     cfg.GenAI.Key,
			Model:   cfg.GenAI.Model,
			Params: genai.Params{
				DecodingMethod: cfg.GenAI.DecodingMethod,
				MaxNewTokens:   cfg.GenAI.MaxNewTokens,
				MinNewTokens:   cfg.GenAI.MinNewTokens,
				Temperature:    cfg.GenAI.Temperature,
				TopK:           cfg.GenAI.TopK,
				TopP:           cfg.GenAI.TopP,
			},
			Timeout: time.Duration(cfg.GenAI.TimeoutSeconds) * time.Second,
			Logger:  logger.With("component", "genai"),
		})
		if err != nil {
			fatal("%v", err)
		}
		gen = genai.NewRetrying(a.genClient, genai.RetryPolicy{
			MaxAttempts:    cfg.GenAI.MaxAttempts,
			InitialBackoff: time.Duration(cfg.GenAI.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.GenAI.MaxBackoffMs) * time.Millisecond,
		}, logger.With("component", "retry"))
	}

	templates := summarizer.DefaultTemplates()
	if cfg.Summarizer.TemplatesFile != "" {
		if templates, err = summarizer.LoadTemplates(cfg.Summarizer.TemplatesFile); err != nil {
			fatal("%v", err)
		}
	}
	a.sum, err = summarizer.New(a.cache, gen, summarizer.Config{
		Label:            cfg.Summarizer.Label,
		ActiveLabel:      cfg.Summarizer.ActiveLabel,
		AllowedProjects:  cfg.Summarizer.AllowedProjects,
		LegacyIdentities: cfg.Summarizer.LegacyIdentities,
		WrapColumn:       cfg.Summarizer.WrapColumn,
		Templates:        templates,
	}, logger.With("component", "summarizer"))
	if err != nil {
		fatal("%v", err)
	}
	return a
}

// store opens the state database on first use.
func (a *app) store() *storage.DB {
	if a.db != nil {
		return a.db
	}
	db, err := storage.Open(a.cfg.Storage.Path, a.logger.With("component", "storage"))
	if err != nil {
		fatal("opening state database: %v", err)
	}
	a.db = db
	return db
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logCloser.Close()
}

// unavailableGenerator stands in when generation was not configured.
type unavailableGenerator struct{}

func (unavailableGenerator) Generate(ctx context.Context, prompt string, stop []string) (string, error) {
	return "", errors.Newf(errors.InvalidInput, "text generation is not configured for this command")
}
