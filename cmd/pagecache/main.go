package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/always-cache/pagecache"
	"github.com/always-cache/pagecache/internal/site"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	dbFilenameFlag     string
	ttlFlag            time.Duration
	staleFlag          time.Duration
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&dbFilenameFlag, "db", "site.db", "Content DB file name (use 'memory' for in-memory db)")
	flag.DurationVar(&ttlFlag, "ttl", 0, "Freshness window (overrides config)")
	flag.DurationVar(&staleFlag, "stale", 0, "Stale window after the freshness window (overrides config)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	// file first, then environment, then flags
	settings, err := pagecache.LoadSettings(configFilenameFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config")
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cacheConfig := pagecache.Config{
		Logger:     &log.Logger,
		Registerer: registry,
	}
	settings.Apply(&cacheConfig)
	if ttlFlag > 0 {
		cacheConfig.TTL = ttlFlag
	}
	if staleFlag > 0 {
		cacheConfig.Stale = staleFlag
	}

	// set up sqlite memory db
	dbFilename := dbFilenameFlag
	if dbFilename == "memory" {
		dbFilename = ":memory:"
	}
	store, err := site.Open(dbFilename)
	if err != nil {
		log.Fatal().Err(err).Str("db", dbFilename).Msg("Could not open content db")
	}
	defer store.Close()
	if err := store.Seed(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Could not seed content db")
	}
	renderer, err := site.NewRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not set up renderer")
	}

	pc := pagecache.New(cacheConfig)
	pages := pc.Middleware(site.Routes(store, renderer, pc.AdminHandler()))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", pages)

	handler := hlog.NewHandler(log.Logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Debug().
				Str("method", r.Method).
				Stringer("url", r.URL).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("Request")
		})(
			hlog.RequestIDHandler("req_id", "X-Request-Id")(mux)))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", portFlag),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Could not shut down cleanly")
		}
	}()

	log.Info().Msgf("Serving pages on port %v", portFlag)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	// let background refreshes finish before the db closes
	pc.Wait()
	log.Info().Msg("Stopped")
}
