package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"arbmon/pkg/ratelimit"
)

// ReconnectBackoff is the fixed reconnect delay mandated for v1: a constant
// sleep, not exponential. See spec §4.A.
const ReconnectBackoff = 5 * time.Second

const (
	connectTimeout = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongTimeout    = 10 * time.Second
)

// reconnectManager owns one WebSocket connection for a venue and keeps it
// alive: dial, read, ping, and on any fault reconnect after a constant
// delay. Resubscribes every tracked subscription after each reconnect.
type reconnectManager struct {
	venue string
	wsURL string
	log   *zap.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	state int32 // atomic ConnectionState

	closeChan chan struct{}
	closeOnce sync.Once

	onMessage func([]byte)

	subscriptions   []interface{}
	subscriptionsMu sync.RWMutex

	dialLimiter *ratelimit.RateLimiter
}

func newReconnectManager(venue, wsURL string, log *zap.Logger) *reconnectManager {
	return &reconnectManager{
		venue:       venue,
		wsURL:       wsURL,
		log:         log,
		closeChan:   make(chan struct{}),
		dialLimiter: ratelimit.NewRateLimiter(1, 2),
	}
}

func (m *reconnectManager) SetOnMessage(handler func([]byte)) {
	m.onMessage = handler
}

func (m *reconnectManager) AddSubscription(sub interface{}) {
	m.subscriptionsMu.Lock()
	m.subscriptions = append(m.subscriptions, sub)
	m.subscriptionsMu.Unlock()
}

func (m *reconnectManager) State() ConnectionState {
	return ConnectionState(atomic.LoadInt32(&m.state))
}

// Connect performs the initial dial and starts the read/ping goroutines.
// If the initial dial fails, the error is returned and the reconnect loop
// keeps retrying in the background on ReconnectBackoff.
func (m *reconnectManager) Connect() error {
	atomic.StoreInt32(&m.state, int32(StateConnecting))

	if err := m.dial(); err != nil {
		atomic.StoreInt32(&m.state, int32(StateReconnecting))
		go m.reconnectLoop()
		return err
	}

	atomic.StoreInt32(&m.state, int32(StateConnected))
	go m.readPump()
	go m.pingPump()

	m.log.Info("feed connected", zap.String("venue", m.venue))
	return nil
}

func (m *reconnectManager) dial() error {
	if err := m.dialLimiter.Wait(context.Background()); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}
	conn, _, err := dialer.DialContext(ctx, m.wsURL, nil)
	if err != nil {
		return err
	}

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	if err := m.resubscribe(); err != nil {
		m.log.Warn("resubscribe failed", zap.String("venue", m.venue), zap.Error(err))
	}

	return nil
}

func (m *reconnectManager) resubscribe() error {
	m.subscriptionsMu.RLock()
	subs := make([]interface{}, len(m.subscriptions))
	copy(subs, m.subscriptions)
	m.subscriptionsMu.RUnlock()

	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()

	if conn == nil {
		return nil
	}
	for _, sub := range subs {
		if err := conn.WriteJSON(sub); err != nil {
			return err
		}
	}
	return nil
}

func (m *reconnectManager) readPump() {
	defer m.handleDisconnect(nil)

	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		m.connMu.RLock()
		conn := m.conn
		m.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(err)
			return
		}

		if m.onMessage != nil {
			m.onMessage(message)
		}
	}
}

func (m *reconnectManager) pingPump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.closeChan:
			return
		case <-ticker.C:
			m.connMu.RLock()
			conn := m.conn
			m.connMu.RUnlock()
			if conn == nil || m.State() != StateConnected {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(pongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.handleDisconnect(err)
				return
			}
		}
	}
}

func (m *reconnectManager) handleDisconnect(err error) {
	select {
	case <-m.closeChan:
		return
	default:
	}

	state := m.State()
	if state == StateReconnecting || state == StateClosed {
		return
	}
	atomic.StoreInt32(&m.state, int32(StateReconnecting))

	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connMu.Unlock()

	if err != nil {
		m.log.Warn("feed disconnected", zap.String("venue", m.venue), zap.Error(err))
	}

	go m.reconnectLoop()
}

// reconnectLoop retries the connection on a fixed ReconnectBackoff delay
// until shutdown. Parsing failures for individual messages never reach
// here — only transport faults trigger a reconnect.
func (m *reconnectManager) reconnectLoop() {
	for {
		select {
		case <-m.closeChan:
			return
		case <-time.After(ReconnectBackoff):
		}

		if err := m.dial(); err != nil {
			m.log.Warn("reconnect failed", zap.String("venue", m.venue), zap.Error(err))
			continue
		}

		atomic.StoreInt32(&m.state, int32(StateConnected))
		go m.readPump()
		go m.pingPump()
		m.log.Info("feed reconnected", zap.String("venue", m.venue))
		return
	}
}

func (m *reconnectManager) Send(msg interface{}) error {
	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	return conn.WriteJSON(msg)
}

func (m *reconnectManager) Close() error {
	m.closeOnce.Do(func() { close(m.closeChan) })
	atomic.StoreInt32(&m.state, int32(StateClosed))

	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}
