package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jaminalder/oxono/internal/app"
	"github.com/jaminalder/oxono/internal/config"
	"github.com/jaminalder/oxono/internal/store"
	"github.com/jaminalder/oxono/internal/web"
)

var (
	configPath = flag.String("config", os.Getenv("OXONO_CONFIG"), "Path to the YAML config file")
	addr       = flag.String("addr", "", "Listen address, overrides the config")
)

// checkOrigin accepts websocket upgrades whose origin mentions host.
func checkOrigin(host string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		return strings.Contains(r.Header.Get("Origin"), host)
	}
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		// no logger yet
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	log, err := newLogger(cfg.Log.Development)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	opts := app.Options{
		Width:  cfg.Board.Width,
		Height: cfg.Board.Height,
		Stock:  cfg.Stock,
		Bot:    cfg.Bot.Enabled,
		Seed:   cfg.Bot.Seed,
		Logger: log,
	}
	var webOpts []web.Option
	webOpts = append(webOpts, web.WithLogger(log))
	if cfg.FrontendHost != "" {
		webOpts = append(webOpts, web.WithOriginCheck(checkOrigin(cfg.FrontendHost)))
	}
	if cfg.Archive.Path != "" {
		archive, err := store.Open(cfg.Archive.Path)
		if err != nil {
			return err
		}
		defer archive.Close()
		opts.Archive = archive
		webOpts = append(webOpts, web.WithMatches(archive))
		log.Info("archiving matches", zap.String("path", cfg.Archive.Path))
	}

	svc := app.New(opts)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.NewServer(svc, webOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server",
			zap.String("addr", cfg.Addr),
			zap.Int("width", cfg.Board.Width),
			zap.Int("height", cfg.Board.Height),
			zap.Bool("bot", cfg.Bot.Enabled))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
