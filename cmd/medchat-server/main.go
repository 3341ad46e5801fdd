package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"medchat-backend/internal/config"
	"medchat-backend/internal/db"
	"medchat-backend/internal/dialogue"
	"medchat-backend/internal/generator"
	"medchat-backend/internal/logger"
	"medchat-backend/internal/nlu"
	"medchat-backend/internal/server"
	"medchat-backend/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithField("error", err.Error()).Error("server stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	lex, err := loadLexicon(cfg.LexiconFile)
	if err != nil {
		return err
	}

	prompts, err := generator.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return err
	}
	gen, err := generator.New(ctx, cfg, prompts)
	if err != nil {
		return err
	}
	defer gen.Close()

	opts := []dialogue.Option{
		dialogue.WithLogger(log),
		dialogue.WithGenerateTimeout(cfg.LLMTimeout),
	}
	var serverOpts []server.ServerOption
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
			return err
		}
		log.Info("turn archive enabled")
		opts = append(opts, dialogue.WithArchiver(store.NewDatabaseArchive(database.DB)))
		serverOpts = append(serverOpts, server.WithArchiveHealth(database))
	} else {
		log.Warn("DB_URL not provided, turn archive disabled")
	}

	engine, err := dialogue.NewEngine(lex, gen, opts...)
	if err != nil {
		return err
	}
	registry := store.NewRegistry(engine, cfg.SessionIdleTTL, store.WithLogger(log))
	go registry.Run(ctx, time.Minute)

	s := server.NewServer(cfg, registry, nlu.NewPipeline(lex), log, serverOpts...)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     httpServer.Addr,
			"provider": cfg.LLMProvider,
		}).Info("MedChat server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func loadLexicon(path string) (*nlu.Lexicon, error) {
	if path == "" {
		return nlu.DefaultLexicon()
	}
	return nlu.LoadLexicon(path)
}
