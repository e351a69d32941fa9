package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"resourcekit/internal/api"
	"resourcekit/internal/config"
	"resourcekit/internal/logging"
	"resourcekit/internal/pg"
	"resourcekit/internal/reference"
	"resourcekit/internal/resource"
	"resourcekit/internal/service"
	"resourcekit/internal/store"
)

func main() {
	cfg, err := config.Load("config.json", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logging.Must(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. resources and enum catalogs
	load := func() (*resource.Registry, error) {
		catalog, err := reference.LoadEnumCatalog(cfg.EnumsDir)
		if err != nil {
			return nil, fmt.Errorf("enums: %w", err)
		}
		reg := resource.NewRegistry()
		if _, err := resource.LoadDir(reg, cfg.ResourcesDir, catalog); err != nil {
			return nil, fmt.Errorf("resources: %w", err)
		}
		return reg, nil
	}
	reg := resource.NewRegistry()
	reg.SetDefaultPerPage(cfg.PerPage)
	loaded, err := load()
	if err != nil {
		return err
	}
	reg.Replace(loaded)
	for _, is := range reg.Lint() {
		log.Warn("resource lint", zap.String("resource", is.Resource), zap.String("field", is.Field),
			zap.String("code", is.Code), zap.String("message", is.Message))
	}
	log.Info("resources loaded", zap.Strings("keys", reg.Keys()))

	// 2. store: postgres when configured, memory otherwise
	var st store.Store
	if cfg.DBURL != "" {
		db, err := pg.Open(ctx, cfg.DBURL, log, cfg.SlowQuery, pg.DefaultPool)
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close(db) }()

		if cfg.AutoMigrate {
			defs := make([]*resource.Definition, 0, len(reg.Keys()))
			for _, k := range reg.Keys() {
				d, err := reg.Resolve(k)
				if err != nil {
					return err
				}
				defs = append(defs, d)
			}
			ddl, err := pg.GenerateDDL(defs)
			if err != nil {
				return err
			}
			if err := pg.ApplyDDL(ctx, db, ddl, log); err != nil {
				return err
			}
			log.Info("schema migrated", zap.Int("resources", len(defs)))
		}
		st = pg.NewStore(db)
	} else {
		log.Warn("no dbUrl configured, using the in-memory store")
		st = store.NewMemory()
	}

	// 3. HTTP
	svc := service.New(reg, st, log, service.Options{MaxPerPage: cfg.MaxPerPage, BcryptCost: cfg.BcryptCost})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(reg, svc, load, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
