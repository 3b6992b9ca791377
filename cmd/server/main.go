package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/virtadmin/convomem/internal/api"
	"github.com/virtadmin/convomem/internal/bridge"
	"github.com/virtadmin/convomem/internal/config"
	"github.com/virtadmin/convomem/internal/conversation"
	"github.com/virtadmin/convomem/internal/memory"
	"github.com/virtadmin/convomem/internal/phrase"
	"github.com/virtadmin/convomem/internal/store"
)

func main() {
	// Logger
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// SQLite
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Stores
	convStore := store.NewConversationStore(db)
	memStore := store.NewMemoryStore(db, cfg.MemoryCapPerTopic)
	assocStore := store.NewAssociationStore(db, cfg.AssociationCap)
	transStore := store.NewTransitionStore(db)

	// Phrase selection
	seed := cfg.PhraseSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	picker := phrase.NewRandPicker(seed)

	// Engine
	convs := conversation.NewStore(convStore, picker, logger)
	mem := memory.NewEngine(memStore, assocStore, transStore, convs, picker, logger)
	b := bridge.New(convs, mem, logger)

	// Router
	router := api.NewRouter(db, b, convs, cfg.APIKey, logger)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("convomem server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
