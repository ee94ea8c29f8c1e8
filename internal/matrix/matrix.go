// Package matrix implements the Price Matrix: a registry of venue
// feeders keyed by pair that, on demand, produces a per-pair snapshot
// of every currently known venue price. Append-only during startup;
// not mutated once the engine begins ticking. It performs no
// filtering, thresholding, or sorting — a pure aggregator.
package matrix

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"arbmon/internal/feed"
	"arbmon/internal/models"
)

// shardCount sets how many shard locks the matrix uses: each pair's
// feeder list sits behind its shard's lock instead of one lock for the
// whole matrix, so a
// Snapshot call for one pair never blocks Add/Snapshot calls for
// another.
const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	feeders map[models.Pair][]feed.Feeder
}

// MarketMatrix is the pair -> []Feeder registry described in spec §4.B.
type MarketMatrix struct {
	shards [shardCount]*shard
	log    *zap.Logger
}

func New(log *zap.Logger) *MarketMatrix {
	m := &MarketMatrix{log: log}
	for i := range m.shards {
		m.shards[i] = &shard{feeders: make(map[models.Pair][]feed.Feeder)}
	}
	return m
}

func (m *MarketMatrix) shardFor(pair models.Pair) *shard {
	return m.shards[fnv1a(string(pair))%shardCount]
}

// fnv1a is an allocation-free string hash, used only to pick a shard —
// it is not a security primitive.
func fnv1a(s string) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

// Add registers a feeder for a pair. Startup only — never called once
// the engine's tick loop has begun.
func (m *MarketMatrix) Add(pair models.Pair, f feed.Feeder) {
	sh := m.shardFor(pair)
	sh.mu.Lock()
	sh.feeders[pair] = append(sh.feeders[pair], f)
	sh.mu.Unlock()
}

// Snapshot polls every feeder registered for pair once and collects
// the quotes that came back. Quotes with a non-positive or otherwise
// invalid price are dropped; order is unspecified.
func (m *MarketMatrix) Snapshot(pair models.Pair) models.Snapshot {
	sh := m.shardFor(pair)
	sh.mu.RLock()
	feeders := sh.feeders[pair]
	sh.mu.RUnlock()

	if len(feeders) == 0 {
		return nil
	}

	snap := make(models.Snapshot, 0, len(feeders))
	for _, f := range feeders {
		q, ok := f.Latest(pair)
		if !ok || !q.Valid() {
			continue
		}
		snap = append(snap, q)
	}
	return snap
}

// Pairs returns every pair currently registered, in no defined order.
// The engine does not call it: it receives its pair list in engine.New.
func (m *MarketMatrix) Pairs() []models.Pair {
	var out []models.Pair
	for _, sh := range m.shards {
		sh.mu.RLock()
		for pair := range sh.feeders {
			out = append(out, pair)
		}
		sh.mu.RUnlock()
	}
	return out
}

// ShutdownGrace bounds how long Shutdown waits for every feeder's
// Close to return before giving up on the stragglers.
const ShutdownGrace = 5 * time.Second

// Shutdown asks every registered feeder to stop its ingest task and
// release its connection, fanning the Close calls out concurrently
// with a bounded grace period — mirroring the fan-out-with-WaitGroup
// idiom used for balance refresh in the teacher's engine.
func (m *MarketMatrix) Shutdown() {
	var all []feed.Feeder
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, fs := range sh.feeders {
			all = append(all, fs...)
		}
		sh.mu.RUnlock()
	}
	if len(all) == 0 {
		return
	}

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		wg.Add(len(all))
		for _, f := range all {
			go func(f feed.Feeder) {
				defer wg.Done()
				if err := f.Close(); err != nil {
					m.log.Warn("feeder close failed", zap.Error(err))
				}
			}(f)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ShutdownGrace):
		m.log.Warn("matrix shutdown grace period elapsed, some feeders may not have closed cleanly")
	}
}
