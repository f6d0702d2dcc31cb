// Package app wires the components in dependency order and owns the
// process lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"classboard/internal/api"
	"classboard/internal/archive"
	"classboard/internal/classroom"
	"classboard/internal/config"
	"classboard/internal/feed"
	"classboard/internal/gateway"
	"classboard/internal/store"
)

// Application coordinates all system components.
type Application struct {
	config     *config.Config
	store      *store.Store
	changeFeed *feed.Feed
	archiver   *archive.Archiver // nil when archiving is not configured
	httpServer *http.Server
}

// NewApplication builds the component graph:
// store → gateway → service → feed → archive → API → HTTP.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st := store.New()

	gen := gateway.NewClient(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.RequestTimeout)
	if cfg.AI.APIKey == "" {
		log.Printf("GEMINI_API_KEY not set; AI features will fail until configured")
	}

	svc := classroom.NewService(st, gen, classroom.Config{
		NotesTimeout:    cfg.AI.NotesTimeout,
		AIFallbackDelay: cfg.Sync.AIFallbackDelay,
	})

	changeFeed := feed.New(func(classID string) bool {
		_, err := st.GetClass(classID)
		return err == nil
	}, cfg.Sync.FeedBufferSize)
	st.OnChange(changeFeed.Publish)

	var archiver *archive.Archiver
	if cfg.Archive.Path != "" {
		var err error
		archiver, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		log.Printf("archiving transcripts to %s", cfg.Archive.Path)
	}

	var apiArchiver api.Archiver
	if archiver != nil {
		apiArchiver = archiver
	}
	apiServer := api.NewServer(st, svc, changeFeed, apiArchiver, cfg.Sync.PollInterval)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", changeFeed.HandleFeed)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      st,
		changeFeed: changeFeed,
		archiver:   archiver,
		httpServer: httpServer,
	}, nil
}

// Start begins serving and returns once the listener is up.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("starting classboard on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("classboard started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down in reverse order: HTTP first so no new mutations
// arrive, then the feed, then a final transcript archive of every live
// class before the archive closes.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("shutting down classboard")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.changeFeed.Close()

	if app.archiver != nil {
		for _, c := range app.store.ListClasses() {
			transcript, err := app.store.Snapshot(c.ID)
			if err != nil {
				continue
			}
			if err := app.archiver.ArchiveClass(ctx, transcript); err != nil {
				log.Printf("final archive failed class=%s err=%v", c.ID, err)
			}
		}
		if err := app.archiver.Close(); err != nil {
			log.Printf("archive shutdown error: %v", err)
		}
	}

	log.Printf("classboard shutdown complete")
	return nil
}

// Addr returns the server address for external connections.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
