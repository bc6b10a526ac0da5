package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/araddon/dateparse"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/terrawatch/landsat-tracker/common"
	"github.com/terrawatch/landsat-tracker/interface/provider"
	"github.com/terrawatch/landsat-tracker/service/log"
	"github.com/terrawatch/landsat-tracker/tracker"
)

type config struct {
	AppPort         string
	ProviderURL     string
	Process         string
	Satellite       string
	Email           string
	Latitude        float64
	Longitude       float64
	DateFrom        time.Time
	DateTo          time.Time
	SearchInterval  time.Duration
	RecheckInterval time.Duration
}

// fileConfig mirrors the optional TOML config file. Intervals are duration
// strings ("10m"), dates anything dateparse accepts.
type fileConfig struct {
	Port            string   `toml:"port"`
	ProviderURL     string   `toml:"provider_url"`
	Process         string   `toml:"process"`
	Satellite       string   `toml:"satellite"`
	Email           string   `toml:"email"`
	Latitude        *float64 `toml:"latitude"`
	Longitude       *float64 `toml:"longitude"`
	DateFrom        string   `toml:"date_from"`
	DateTo          string   `toml:"date_to"`
	SearchInterval  string   `toml:"search_interval"`
	RecheckInterval string   `toml:"recheck_interval"`
}

func newAppConfig() (*config, error) {
	configFile := flag.String("config", "", "TOML config file (flags take precedence)")
	appPort := flag.String("port", "8080", "tracker port to use")
	providerURL := flag.String("provider-url", "", "base URL of the imagery provider API")
	process := flag.String("process", "", "process method code (e.g. truecolor)")
	satellite := flag.String("satellite", "landsat-8", "satellite code for publish requests")
	email := flag.String("email", "", "notification address for publish requests")
	latitude := flag.Float64("lat", math.NaN(), "image center latitude")
	longitude := flag.Float64("lon", math.NaN(), "image center longitude")
	dateFrom := flag.String("date-from", "2015-01-01", "acquisition window start")
	dateTo := flag.String("date-to", "2015-12-31", "acquisition window end")
	searchInterval := flag.Duration("search-interval", 0, "interval between search cycles")
	recheckInterval := flag.Duration("recheck-interval", 0, "interval between status re-checks")
	flag.Parse()

	// file values fill flags that were left at their default
	if *configFile != "" {
		set := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

		fc := fileConfig{}
		if _, err := toml.DecodeFile(*configFile, &fc); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		applyString := func(name string, dst *string, v string) {
			if !set[name] && v != "" {
				*dst = v
			}
		}
		applyString("port", appPort, fc.Port)
		applyString("provider-url", providerURL, fc.ProviderURL)
		applyString("process", process, fc.Process)
		applyString("satellite", satellite, fc.Satellite)
		applyString("email", email, fc.Email)
		applyString("date-from", dateFrom, fc.DateFrom)
		applyString("date-to", dateTo, fc.DateTo)
		if !set["lat"] && fc.Latitude != nil {
			*latitude = *fc.Latitude
		}
		if !set["lon"] && fc.Longitude != nil {
			*longitude = *fc.Longitude
		}
		if !set["search-interval"] && fc.SearchInterval != "" {
			d, err := time.ParseDuration(fc.SearchInterval)
			if err != nil {
				return nil, fmt.Errorf("config file: search_interval: %w", err)
			}
			*searchInterval = d
		}
		if !set["recheck-interval"] && fc.RecheckInterval != "" {
			d, err := time.ParseDuration(fc.RecheckInterval)
			if err != nil {
				return nil, fmt.Errorf("config file: recheck_interval: %w", err)
			}
			*recheckInterval = d
		}
	}

	if *providerURL == "" {
		return nil, fmt.Errorf("missing provider-url config flag")
	}
	if *process == "" {
		return nil, fmt.Errorf("missing process config flag")
	}
	if *email == "" {
		return nil, fmt.Errorf("missing email config flag")
	}
	if math.IsNaN(*latitude) || math.IsNaN(*longitude) {
		return nil, fmt.Errorf("missing lat/lon config flags")
	}
	if *searchInterval <= 0 {
		return nil, fmt.Errorf("missing search-interval config flag")
	}
	if *recheckInterval <= 0 {
		return nil, fmt.Errorf("missing recheck-interval config flag")
	}

	from, err := dateparse.ParseAny(*dateFrom)
	if err != nil {
		return nil, fmt.Errorf("date-from: %w", err)
	}
	to, err := dateparse.ParseAny(*dateTo)
	if err != nil {
		return nil, fmt.Errorf("date-to: %w", err)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("date-to %s is before date-from %s", to, from)
	}

	return &config{
		AppPort:         *appPort,
		ProviderURL:     *providerURL,
		Process:         *process,
		Satellite:       *satellite,
		Email:           *email,
		Latitude:        *latitude,
		Longitude:       *longitude,
		DateFrom:        from,
		DateTo:          to,
		SearchInterval:  *searchInterval,
		RecheckInterval: *recheckInterval,
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	client := provider.NewClient(config.ProviderURL, config.Satellite)
	store := &tracker.LatestStore{}

	g, ctx := errgroup.WithContext(ctx)
	trk := tracker.New(ctx, client, store, tracker.Config{
		Criteria: common.SearchCriteria{
			Latitude:  config.Latitude,
			Longitude: config.Longitude,
			DateFrom:  config.DateFrom,
			DateTo:    config.DateTo,
			Process:   config.Process,
		},
		Email:           config.Email,
		SearchInterval:  config.SearchInterval,
		RecheckInterval: config.RecheckInterval,
	})

	headersOk := handlers.AllowedHeaders([]string{"*"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})
	s := http.Server{
		Addr:    ":" + config.AppPort,
		Handler: handlers.CORS(originsOk, headersOk, methodsOk)(trk.NewHandler()),
	}

	g.Go(func() error {
		if err := s.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return trk.RunSearchLoop(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(sctx)
	})

	log.Logger(ctx).Info("tracker starts",
		zap.String("port", config.AppPort),
		zap.String("provider", config.ProviderURL),
		zap.String("process", config.Process),
		zap.Duration("searchInterval", config.SearchInterval),
		zap.Duration("recheckInterval", config.RecheckInterval))
	return g.Wait()
}
