// Quantbot - Quantized-Action Signal Trading Bot
//
// Transforms OHLCV bars into discrete trading decisions via the quantum
// action engine, aggregates them across timeframes, and manages open
// positions with adaptive trailing stops.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/quantbot/internal/broker"
	"github.com/web3guy0/quantbot/internal/config"
	"github.com/web3guy0/quantbot/internal/database"
	"github.com/web3guy0/quantbot/internal/engine"
	"github.com/web3guy0/quantbot/internal/feed"
	"github.com/web3guy0/quantbot/internal/notify"
	"github.com/web3guy0/quantbot/internal/validator"
)

const version = "1.2.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Bool("dry_run", cfg.DryRun).Msg("🚀 Quantbot starting")

	if !cfg.DryRun {
		log.Fatal().Msg("No live venue is wired in this build; run with DRY_RUN=true")
	}

	// Market data
	binanceFeed := feed.NewBinanceFeed()
	binanceFeed.StartStream(cfg.Symbols)
	defer binanceFeed.Stop()

	// Paper venue, marked from the live stream
	venue := broker.NewPaperVenue(decimal.NewFromInt(10000))
	go markLoop(binanceFeed, venue, cfg.Symbols)

	// Optional collaborators
	opts := []engine.Option{}

	if cfg.ValidatorURL != "" {
		opts = append(opts, engine.WithValidator(
			validator.NewLLMValidator(cfg.ValidatorURL, cfg.ValidatorAPIKey, cfg.ValidatorModel)))
		log.Info().Str("model", cfg.ValidatorModel).Msg("🤖 AI validator enabled")
	}

	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram disabled")
		} else {
			opts = append(opts, engine.WithNotifier(tg))
		}
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Warn().Err(err).Msg("Running without persistence")
	} else {
		opts = append(opts, engine.WithDatabase(db))
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Warn().Err(err).Msg("Metrics server stopped")
		}
	}()

	eng, err := engine.New(cfg, binanceFeed, venue, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build engine")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng.Run(ctx)
}

// markLoop feeds streamed prices into the paper venue so stops and targets
// trigger between evaluation cycles.
func markLoop(f *feed.BinanceFeed, venue *broker.PaperVenue, symbols []string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		for _, symbol := range symbols {
			if price, ok := f.LastPrice(symbol); ok {
				venue.MarkPrice(symbol, price)
			}
		}
	}
}
