package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/geochat/internal/logger"
	"github.com/Tyrowin/geochat/internal/server"
	"github.com/Tyrowin/geochat/internal/session"
	"github.com/Tyrowin/geochat/internal/venue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("geochat", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flagSet.StringVar(&cfg.VenuesFile, "venues", cfg.VenuesFile, "venue file (.json or .yaml)")
	flagSet.StringVar(&cfg.VenuesSQLite, "venues-sqlite", cfg.VenuesSQLite, "SQLite venue database; seeded from --venues when set")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flagSet.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	log := logger.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openVenues(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("closing venue store", logger.Error(err))
		}
	}()

	registry := session.NewRegistry(store, session.Options{
		Logger:      log,
		GracePeriod: cfg.OutsideGrace,
	})
	defer registry.Close()

	srv := server.New(cfg, registry, store, log)
	httpServer := server.CreateServer(cfg.Addr, srv.Routes())

	log.Info("starting GeoChat server",
		slog.String("addr", cfg.Addr),
		slog.Duration("outside_grace", cfg.OutsideGrace),
		slog.Bool("admin_enabled", cfg.AdminKey != ""))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.StartServer(httpServer)
	})
	g.Go(func() error {
		registry.RunJanitor(gctx, janitorInterval(cfg.UnboundSessionTTL), cfg.UnboundSessionTTL)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		err := srv.ShutdownServer(httpServer, cfg.ShutdownTimeout)
		if hubErr := srv.Shutdown(cfg.ShutdownTimeout); hubErr != nil {
			err = errors.Join(err, fmt.Errorf("hub shutdown: %w", hubErr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// openVenues opens the SQLite store when configured, seeding it from the
// venue file, and the venue file itself otherwise.
func openVenues(ctx context.Context, cfg *server.Config, log *slog.Logger) (venue.Store, error) {
	if cfg.VenuesSQLite == "" {
		store, err := venue.OpenFile(cfg.VenuesFile, cfg.DefaultRadius)
		if err != nil {
			return nil, err
		}
		log.Info("venues loaded from file", slog.String("path", cfg.VenuesFile))
		return store, nil
	}

	store, err := venue.OpenSQLite(cfg.VenuesSQLite, cfg.DefaultRadius)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(cfg.VenuesFile); errors.Is(statErr, fs.ErrNotExist) {
		return store, nil
	}

	seed, err := venue.OpenFile(cfg.VenuesFile, cfg.DefaultRadius)
	if err == nil {
		var venues []venue.Venue
		venues, err = seed.List(ctx)
		if err == nil {
			var n int
			n, err = store.Import(ctx, venues)
			log.Info("venue database seeded", slog.String("from", cfg.VenuesFile), slog.Int("imported", n))
		}
	}
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed venue database: %w", err)
	}
	return store, nil
}

func janitorInterval(ttl time.Duration) time.Duration {
	return max(ttl/4, time.Second)
}
