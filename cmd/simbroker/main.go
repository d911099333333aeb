package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ndrandal/simbroker/internal/api"
	"github.com/ndrandal/simbroker/internal/config"
	"github.com/ndrandal/simbroker/internal/ledger"
	"github.com/ndrandal/simbroker/internal/persist"
	"github.com/ndrandal/simbroker/internal/simbroker"
	"github.com/ndrandal/simbroker/internal/symbol"
	"github.com/ndrandal/simbroker/internal/tickgen"
	"github.com/ndrandal/simbroker/internal/transport"
)

// demoTickstreams is the fixed symbol set the demo binary runs with. A
// real embedder of internal/simbroker would populate settings.Tickstreams
// from its own config instead.
func demoTickstreams() []simbroker.TickstreamSpec {
	return []simbroker.TickstreamSpec{
		{Name: "AAPL", Generator: "gbm", IsFX: false, Decimals: 2},
		{Name: "TSLA", Generator: "gbm", IsFX: false, Decimals: 2},
		{Name: "SPY", Generator: "gbm", IsFX: false, Decimals: 2},
		{Name: "EURUSD", Generator: "gbm", IsFX: true, Decimals: 4},
		{Name: "GBPUSD", Generator: "gbm", IsFX: true, Decimals: 4},
		{Name: "BLITZ", Generator: "stress", IsFX: false, Decimals: 2},
	}
}

// basePriceFor returns a plausible starting price per demo symbol, since
// GBMConfig needs one to seed its random walk.
func basePriceFor(name string) float64 {
	switch name {
	case "AAPL":
		return 195.50
	case "TSLA":
		return 245.00
	case "SPY":
		return 520.00
	case "EURUSD":
		return 1.08500
	case "GBPUSD":
		return 1.26500
	case "BLITZ":
		return 50.00
	default:
		return 100.00
	}
}

// resolveTickstream builds the symbol.Source for one TickstreamSpec,
// keyed off its Generator field. This is the boundary the core's registry
// never crosses: simbroker knows only that it gets a symbol.Source, not
// how one is produced.
func resolveTickstream(cfg *config.Config) func(spec simbroker.TickstreamSpec) (symbol.Source, error) {
	return func(spec simbroker.TickstreamSpec) (symbol.Source, error) {
		gbmCfg := tickgen.GBMConfig{
			BasePrice:            basePriceFor(spec.Name),
			VolatilityMultiplier: 1.0,
			SpreadPips:           2,
			DecimalPrecision:     spec.Decimals,
			StepNs:               cfg.TickStepNs,
		}
		if spec.IsFX {
			gbmCfg.TickSize = 0.00001
		} else {
			gbmCfg.TickSize = 0.01
		}

		switch spec.Generator {
		case "gbm":
			return tickgen.NewGBMSource(cfg.Seed, gbmCfg), nil
		case "stress":
			gbmCfg.VolatilityMultiplier = 4.0
			return tickgen.NewStressSource(cfg.Seed, gbmCfg, tickgen.DefaultStressConfig()), nil
		default:
			return nil, fmt.Errorf("unknown tickstream generator %q", spec.Generator)
		}
	}
}

func newLogger(format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// demoAccountID is fixed rather than random: repeated runs against the
// same Mongo instance should restore the same account instead of piling
// up fresh ones, and the core forbids system-level UUID generation for
// anything that feeds into deterministic replay (§9) — this id never
// does, since it is a lookup key, not a position/order identifier.
var demoAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func main() {
	cfg := config.Load()
	log := newLogger(cfg.LogFormat)
	log.Info().Msg("simbroker starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	settings := simbroker.DefaultSettings()
	settings.FX = true
	settings.Tickstreams = demoTickstreams()

	client := simbroker.NewClient()
	if err := client.Init(settings, cfg.Seed, log, resolveTickstream(cfg)); err != nil {
		log.Fatal().Err(err).Msg("simbroker init failed")
	}
	log.Info().Int64("seed", cfg.Seed).Int("symbols", len(settings.Tickstreams)).Msg("simbroker initialized")

	store, err := persist.NewStore(ctx, cfg.MongoURI, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer store.Close(context.Background())

	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("index migration failed")
	}

	snapshotter := persist.NewSnapshotter(store, client)
	restored, err := snapshotter.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load persisted state, starting fresh")
	}
	if !restored {
		if _, brokerErr := client.CreateAccount(ledger.AcctID(demoAccountID)); brokerErr != nil {
			log.Warn().Str("err", brokerErr.Error()).Msg("failed to seed demo account")
		}
	}

	auditLog := persist.NewAuditLog(store)
	auditReader := persist.NewMongoAuditReader(store.DB())

	// Arm the loop: after this, client rejects ListAccounts/GetLedger/
	// CreateAccount/RegisterTickstream; Execute/SubTicks/GetStream and the
	// symbol/snapshot accessors stay usable. Must happen after Load,
	// before anything reads the push/tick streams.
	if err := client.InitSimLoop(); err != nil {
		log.Fatal().Str("err", err.Error()).Msg("failed to arm simulation loop")
	}
	log.Info().Msg("simulation loop armed and running")

	go snapshotter.Run(ctx, cfg.SnapshotInterval)
	go persist.RunRetention(ctx, store, cfg.AuditRetentionDays)

	gateway := transport.NewServer(client, cfg.SendBufferSize, log)
	gateway.SetAuditLog(auditLog)
	go gateway.RunPushFanout()

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", transport.Handler(gateway, client, client.SymbolIndex, log))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","clients":%d,"symbols":%d}`, gateway.ClientCount(), len(client.SymbolPrices()))
	})
	mux.Handle("/metrics", promhttp.Handler())

	apiServer := api.NewServer(client, auditReader)
	apiServer.Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.WSPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("listening for ws and http")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}

	log.Info().Msg("simbroker stopped")
}
