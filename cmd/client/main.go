package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/greenplanet/storefront/authapi"
	"github.com/greenplanet/storefront/cart"
	"github.com/greenplanet/storefront/catalog"
	"github.com/greenplanet/storefront/credentials/filestore"
	"github.com/greenplanet/storefront/internal/config"
	"github.com/greenplanet/storefront/internal/utils"
	"github.com/greenplanet/storefront/session"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("client exited with error")
	}
	log.Info().Msg("client stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	displayAppname(cfg.GetAppName())

	store, err := filestore.New(cfg.GetDataFolder())
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	// Exactly one session manager and one cart store per process; every
	// consumer receives these references explicitly.
	authClient := authapi.New(cfg)
	sessions, err := session.NewManager(store, authClient,
		session.WithRefreshInterval(cfg.GetRefreshInterval()),
		session.WithVerifyTimeout(cfg.GetVerifyTimeout()),
	)
	if err != nil {
		return fmt.Errorf("build session manager: %w", err)
	}
	defer sessions.Close()

	basket, err := cart.NewStore(store)
	if err != nil {
		return fmt.Errorf("build cart store: %w", err)
	}

	shop, err := catalog.New(cfg, store, sessions)
	if err != nil {
		return fmt.Errorf("build catalog client: %w", err)
	}

	sessions.OnChange(func(s session.Snapshot) {
		log.Info().
			Stringer("status", s.Status).
			Bool("authenticated", s.IsAuthenticated).
			Str("user", utils.Value(s.User).Name).
			Msg("session state changed")
	})

	if err := sessions.Restore(context.Background()); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	sessions.StartAutoRefresh()

	if shop.Health(context.Background()) {
		log.Info().Str("baseURL", cfg.GetBaseURL()).Msg("backend reachable")
	} else {
		log.Warn().Str("baseURL", cfg.GetBaseURL()).Msg("backend unreachable, cart remains local-only")
	}
	log.Info().
		Int("cartItems", basket.ItemCount()).
		Str("cartTotal", fmt.Sprintf("%.2f", basket.Total())).
		Msg("cart restored")

	waitForStopSignal()
	return nil
}

func loadConfig() (config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		cfg, err := config.NewFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		return cfg, nil
	}
	return config.New(), nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
