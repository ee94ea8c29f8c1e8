package api

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"runtime"

	"arbmon/internal/api/middleware"
	"arbmon/internal/engine"
	"arbmon/internal/models"
	"arbmon/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies содержит все зависимости для API handlers. Поверхность
// целиком read-only: ни один маршрут не может изменить состояние движка,
// только наблюдать за ним (spec.md явно выносит конфигурацию и UI за
// пределы ядра).
type Dependencies struct {
	Engine *engine.Engine
	Pairs  []models.Pair
	Hub    *websocket.Hub
	Log    *zap.Logger
}

// pairStateView - JSON-представление текущего состояния одной пары.
type pairStateView struct {
	Pair           string  `json:"pair"`
	State          string  `json:"state"`
	BuyVenue       string  `json:"buy_venue,omitempty"`
	SellVenue      string  `json:"sell_venue,omitempty"`
	EntrySpreadPct float64 `json:"entry_spread_pct,omitempty"`
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Назначение:
// Центральное место для определения всех HTTP endpoints. Торговое ядро
// (Feeder/Matrix/Engine/Logger) не имеет собственного HTTP-интерфейса;
// эта поверхность — единственный способ наблюдать за его состоянием
// снаружи процесса.
//
// Маршруты:
//
//	GET  /healthz       - liveness probe
//	GET  /api/pairs     - текущее состояние каждой настроенной пары
//	GET  /ws/stream     - WebSocket поток pairState/opportunity/trade
//	GET  /metrics       - экспорт метрик Prometheus
//	GET  /debug/pprof/* - профилирование
//	GET  /debug/runtime - runtime.MemStats в JSON
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	log := zap.NewNop()
	if deps != nil && deps.Log != nil {
		log = deps.Log
	}

	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	if deps != nil && deps.Engine != nil {
		router.HandleFunc("/api/pairs", func(w http.ResponseWriter, r *http.Request) {
			views := make([]pairStateView, 0, len(deps.Pairs))
			for _, pair := range deps.Pairs {
				state, pos, hasPosition := deps.Engine.State(pair)
				view := pairStateView{Pair: string(pair), State: string(state)}
				if hasPosition {
					view.BuyVenue = pos.BuyVenue
					view.SellVenue = pos.SellVenue
					view.EntrySpreadPct, _ = pos.EntrySpreadPct.Float64()
				}
				views = append(views, view)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(views)
		}).Methods("GET")
	}

	if deps != nil && deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		}).Methods("GET")
	}

	// ============================================================
	// Prometheus metrics endpoint
	// ============================================================
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// ============================================================
	// pprof endpoints для профилирования
	// ============================================================
	debug := router.PathPrefix("/debug/pprof").Subrouter()

	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)

	debug.HandleFunc("/heap", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("heap").ServeHTTP(w, r)
	})
	debug.HandleFunc("/goroutine", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("goroutine").ServeHTTP(w, r)
	})
	debug.HandleFunc("/block", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("block").ServeHTTP(w, r)
	})
	debug.HandleFunc("/threadcreate", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("threadcreate").ServeHTTP(w, r)
	})
	debug.HandleFunc("/mutex", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("mutex").ServeHTTP(w, r)
	})
	debug.HandleFunc("/allocs", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("allocs").ServeHTTP(w, r)
	})

	router.HandleFunc("/debug/runtime", func(w http.ResponseWriter, r *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"goroutines":        runtime.NumGoroutine(),
			"heap_alloc_mb":     float64(m.HeapAlloc) / 1024 / 1024,
			"heap_sys_mb":       float64(m.HeapSys) / 1024 / 1024,
			"num_gc":            m.NumGC,
			"gc_pause_total_ms": float64(m.PauseTotalNs) / 1e6,
		})
	}).Methods("GET")

	return router
}
