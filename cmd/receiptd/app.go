package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/creastat/receipts/capi"
	"github.com/creastat/receipts/config"
	"github.com/creastat/receipts/document"
	"github.com/creastat/receipts/notify"
	"github.com/creastat/receipts/purchase"
	"github.com/creastat/receipts/session"
	"github.com/creastat/receipts/session/drivers"
	"github.com/creastat/receipts/supabase"
)

// app is the wired service.
type app struct {
	ledger  *session.Ledger
	orch    *purchase.Orchestrator
	archive *supabase.Client
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	store, err := openStore(ctx, cfg.Ledger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	a.ledger = session.NewLedger(store,
		session.WithLogger(logger),
		session.WithConflictRetries(cfg.Ledger.ConflictRetries),
	)

	reporter, err := newReporter(cfg, logger)
	if err != nil {
		return nil, err
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.URL != "" {
		notifier, err = notify.NewWebhook(notify.WebhookConfig{
			URL:     cfg.Notify.URL,
			Token:   cfg.Notify.Token,
			Timeout: cfg.Notify.Timeout,
		})
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("notify.url not set, replies are not delivered")
	}

	cfgOrch := purchase.Config{
		Ledger: a.ledger,
		Fetcher: document.NewHTTPFetcher(document.FetcherConfig{
			Timeout:      cfg.Fetch.Timeout,
			MaxBytes:     cfg.Fetch.MaxBytes,
			BlockPrivate: cfg.Fetch.BlockPrivate,
		}),
		Text:     newTextSources(cfg, logger),
		Reporter: reporter,
		Notifier: notifier,
		Logger:   logger,
	}

	if cfg.Archive.Supabase.URL != "" {
		archive, err := supabase.New(supabase.Config{
			URL:    cfg.Archive.Supabase.URL,
			APIKey: cfg.Archive.Supabase.APIKey,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, archive.Close)
		a.archive = archive
		cfgOrch.Archive = archive
	}

	a.orch, err = purchase.New(cfgOrch)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.LedgerConfig) (session.Store, error) {
	switch drivers.StoreType(cfg.Driver) {
	case drivers.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		// The store owns the client and closes it.
		store, err := drivers.NewStore(drivers.StoreTypeRedis,
			drivers.WithRedisClient(client),
			drivers.WithRedisTTL(cfg.Redis.TTL))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return store, nil

	default:
		return drivers.NewStore(drivers.StoreType(cfg.Driver),
			drivers.WithSQLitePath(cfg.SQLite.Path))
	}
}

func newReporter(cfg *config.Config, logger *log.Logger) (purchase.Reporter, error) {
	if !cfg.ReportingEnabled() {
		logger.Warn("capi.pixel_id or capi.access_token not set, purchases are not reported")
		return capi.Disabled{}, nil
	}
	client, err := capi.New(capi.Config{
		PixelID:       cfg.CAPI.PixelID,
		AccessToken:   cfg.CAPI.AccessToken,
		BaseURL:       cfg.CAPI.BaseURL,
		APIVersion:    cfg.CAPI.APIVersion,
		TestEventCode: cfg.CAPI.TestEventCode,
		EventPrefix:   cfg.CAPI.EventPrefix,
		ActionSource:  cfg.CAPI.ActionSource,
		Timeout:       cfg.CAPI.Timeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newTextSources(cfg *config.Config, logger *log.Logger) document.Sources {
	var sources document.Sources
	pdfOpts := []document.PDFOption{document.WithMaxPages(cfg.PDF.MaxPages)}

	if cfg.OCR.APIKey != "" {
		ocr, err := document.NewImageSource(document.ImageConfig{
			APIKey:  cfg.OCR.APIKey,
			BaseURL: cfg.OCR.BaseURL,
			Model:   cfg.OCR.Model,
			Prompt:  cfg.OCR.Prompt,
			Timeout: cfg.OCR.Timeout,
		})
		if err != nil {
			logger.Warn("OCR disabled", "err", err)
		} else {
			sources.Image = ocr
			pdfOpts = append(pdfOpts, document.WithOCRFallback(ocr))
		}
	} else {
		logger.Warn("ocr.api_key not set, image receipts cannot be read")
	}

	sources.PDF = document.NewPDFSource(pdfOpts...)
	return sources
}
