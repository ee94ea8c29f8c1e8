// cmd/monitor — вход процесса Arbitrage Monitor: отдельный Feeder на
// каждую настроенную пару/площадку, Price Matrix, агрегирующий их в
// снимки, один Engine, ведущий paper-trading цикл по всем парам, и
// Batched Logger, пишущий события в Postgres. HTTP-сервер предоставляет
// только read-only наблюдаемость (см. internal/api).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"arbmon/internal/api"
	"arbmon/internal/config"
	"arbmon/internal/engine"
	"arbmon/internal/feed"
	"arbmon/internal/matrix"
	"arbmon/internal/models"
	"arbmon/internal/persist"
	"arbmon/internal/websocket"
	"arbmon/pkg/utils"
)

// pairs перечисляет каждую отслеживаемую пару; венью-символы и темы
// подписки для каждой пары заданы в картах ниже. Площадки и пары —
// фиксированные на этапе компиляции данные: конфигурация через
// окружение ограничена координатами базы данных и сервера.
var pairs = []models.Pair{"ADA/USDC", "SOL/USDC"}

// venueConfig описывает одну площадку: точку подключения и то, как она
// публикует цены (единая тикерная тема на пару, один мультиплексированный
// поток на несколько пар, либо книга ордеров без отдельного тикера — три
// формы Feeder, см. internal/feed).
type venueConfig struct {
	name  string
	wsURL string
}

var tickerVenues = []venueConfig{
	{name: "bybit", wsURL: "wss://stream.bybit.com/v5/public/spot"},
	{name: "okx", wsURL: "wss://ws.okx.com:8443/ws/v5/public"},
}

var multiplexVenues = []venueConfig{
	{name: "binance", wsURL: "wss://stream.binance.com:9443/ws"},
}

// orderBookVenues are DEX-style venues that publish only best-bid/best-ask
// book updates, no last-trade ticker — OrderBookFeeder derives price as
// their mid.
var orderBookVenues = []venueConfig{
	{name: "hyperliquid", wsURL: "wss://api.hyperliquid.xyz/ws"},
}

// venueTopics связывает каждую пару с её тикерной темой подписки на
// одновенью-площадках.
var venueTopics = map[models.Pair]string{
	"ADA/USDC": "tickers.ADAUSDC",
	"SOL/USDC": "tickers.SOLUSDC",
}

// orderBookTopics связывает каждую пару с темой подписки на книгу ордеров
// DEX-площадок.
var orderBookTopics = map[models.Pair]string{
	"ADA/USDC": "book.ADAUSDC",
	"SOL/USDC": "book.SOLUSDC",
}

// venueSymbols связывает венью-символ (как он приходит в сообщениях
// мультиплекс-потока) с парой, которую он представляет.
var venueSymbols = map[string]models.Pair{
	"ADAUSDC": "ADA/USDC",
	"SOLUSDC": "SOL/USDC",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).Logger
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := persist.EnsureDatabase(ctx, cfg.Database, log); err != nil {
		log.Fatal("failed to ensure database exists", zap.Error(err))
	}

	db, err := persist.Open(cfg.Database)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := persist.EnsureTables(db); err != nil {
		log.Fatal("failed to ensure tables", zap.Error(err))
	}

	mm := matrix.New(log)
	for _, v := range tickerVenues {
		for _, pair := range pairs {
			topic, ok := venueTopics[pair]
			if !ok {
				continue
			}
			f := feed.NewTickerFeeder(v.name, v.wsURL, pair, topic, log.With(zap.String("venue", v.name)))
			connectFeeder(f, v.name, log)
			mm.Add(pair, f)
		}
	}
	for _, v := range multiplexVenues {
		mf := feed.NewMultiplexFeeder(v.name, v.wsURL, venueSymbols, log.With(zap.String("venue", v.name)))
		connectFeeder(mf, v.name, log)
		for _, pair := range pairs {
			mm.Add(pair, mf)
		}
	}
	for _, v := range orderBookVenues {
		for _, pair := range pairs {
			topic, ok := orderBookTopics[pair]
			if !ok {
				continue
			}
			f := feed.NewOrderBookFeeder(v.name, v.wsURL, pair, topic, log.With(zap.String("venue", v.name)))
			connectFeeder(f, v.name, log)
			mm.Add(pair, f)
		}
	}

	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	persistLogger := persist.NewLogger(db, log)
	sink := &broadcastingSink{logger: persistLogger, hub: hub}
	persistDone := make(chan struct{})
	go func() {
		persistLogger.Run(ctx)
		close(persistDone)
	}()

	eng := engine.New(mm, sink, pairs, log)
	go eng.Run(ctx)
	go broadcastPairStates(ctx, eng, hub, pairs)

	router := api.SetupRoutes(&api.Dependencies{Engine: eng, Pairs: pairs, Hub: hub, Log: log})
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("addr", server.Addr))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	mm.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	select {
	case <-persistDone:
	case <-time.After(5 * time.Second):
		log.Warn("batched logger did not flush within shutdown grace period")
	}

	log.Info("monitor exited")
}

// pairStateBroadcastInterval is slower than the engine's tick cadence on
// purpose: connected UIs need the current IDLE/OPEN state for a status
// display, not a copy of every tick.
const pairStateBroadcastInterval = time.Second

// broadcastPairStates periodically pushes each pair's current state to
// every connected WebSocket client, independent of the engine's own
// entry/exit event emission (spec.md leaves this read-only observability
// surface to implementers' choice).
func broadcastPairStates(ctx context.Context, eng *engine.Engine, hub *websocket.Hub, pairs []models.Pair) {
	ticker := time.NewTicker(pairStateBroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pair := range pairs {
				state, pos, hasPosition := eng.State(pair)
				hub.BroadcastPairState(pair, state, pos, hasPosition)
			}
		}
	}
}

// connectFeeder dials a feeder once at startup. A failure here is not
// fatal: the feeder's own reconnect loop (internal/feed) keeps retrying
// on ReconnectBackoff, so the process still starts and serves the other
// venues.
func connectFeeder(f feed.Feeder, venue string, log *zap.Logger) {
	if err := f.Connect(); err != nil {
		log.Warn("initial feeder connect failed, reconnect loop will retry",
			zap.String("venue", venue), zap.Error(err))
	}
}

// broadcastingSink fans every engine event out to both the persistence
// layer and the WebSocket hub, satisfying engine.EventSink.
type broadcastingSink struct {
	logger *persist.Logger
	hub    *websocket.Hub
}

func (s *broadcastingSink) LogOpportunity(o models.OpportunityRecord) {
	s.logger.LogOpportunity(o)
	s.hub.BroadcastOpportunity(o)
}

func (s *broadcastingSink) LogPrices(pair models.Pair, snap models.Snapshot) {
	s.logger.LogPrices(pair, snap)
}

func (s *broadcastingSink) LogTrade(t models.TradeRecord) {
	s.logger.LogTrade(t)
	s.hub.BroadcastTrade(t)
}
