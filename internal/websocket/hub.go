package websocket

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"

	"arbmon/internal/models"
)

// ============ ОПТИМИЗАЦИЯ: sync.Pool для JSON буферов ============
// Убирает аллокации при каждом Broadcast (было ~1000+/сек)

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512)) // начальный размер 512 байт
	},
}

// byteSlicePool - промежуточный буфер для копирования сериализованных
// сообщений перед постановкой в канал broadcast.
var byteSlicePool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 512)
		return &b
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Центральный менеджер для broadcast сообщений всем подключенным клиентам.
// Обеспечивает real-time обновления данных на frontend без необходимости polling.
//
// Функции:
// - Регистрация новых WebSocket клиентов
// - Отмена регистрации отключенных клиентов
// - Broadcast сообщений всем активным клиентам
// - Потокобезопасная работа с клиентами (sync.RWMutex)
//
// Типы сообщений (см. messages.go):
// - pairState: состояние пары (IDLE/OPEN, ноги открытой позиции)
// - opportunity: обнаруженная возможность входа
// - trade: закрытая (симулированная) сделка
//
// Использование:
// 1. Создать hub: hub := NewHub()
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.Broadcast(message)
// 4. Завершить: hub.Stop()
type Hub struct {
	clients map[*Client]bool

	// broadcast - канал сообщений для рассылки всем клиентам. Постановка
	// в канал никогда не блокирует отправителя: при заполненном буфере
	// сообщение отбрасывается и учитывается в dropped.
	broadcast chan []byte

	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	stopOnce   sync.Once

	dropped int64

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
}

// Run запускает главный цикл Hub. Должен запускаться в отдельной горутине:
// go hub.Run(). Возвращается после Stop().
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// клиент не успевает обрабатывать сообщения
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
				log.Printf("removed %d slow websocket clients", len(toRemove))
			}
		}
	}
}

// Stop завершает Run(). Безопасен для многократного вызова.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// BroadcastRaw ставит уже сериализованное сообщение в очередь рассылки.
// Не блокирует: если канал полон, сообщение отбрасывается.
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		atomic.AddInt64(&h.dropped, 1)
	}
}

// Broadcast сериализует message в JSON и ставит его в очередь рассылки.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		log.Printf("error marshaling broadcast message: %v", err)
		jsonBufferPool.Put(buf)
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	staging := byteSlicePool.Get().(*[]byte)
	*staging = append((*staging)[:0], data...)
	msgCopy := make([]byte, len(*staging))
	copy(msgCopy, *staging)
	byteSlicePool.Put(staging)
	jsonBufferPool.Put(buf)

	h.BroadcastRaw(msgCopy)
}

// BroadcastPairState отправляет текущее состояние пары.
func (h *Hub) BroadcastPairState(pair models.Pair, state models.State, pos models.OpenPosition, hasPosition bool) {
	h.Broadcast(NewPairStateMessage(pair, state, pos, hasPosition))
}

// BroadcastOpportunity отправляет обнаруженную возможность входа.
func (h *Hub) BroadcastOpportunity(o models.OpportunityRecord) {
	h.Broadcast(NewOpportunityMessage(o))
}

// BroadcastTrade отправляет закрытую (симулированную) сделку.
func (h *Hub) BroadcastTrade(t models.TradeRecord) {
	h.Broadcast(NewTradeMessage(t))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает количество сообщений, отброшенных из-за
// переполнения очереди broadcast.
func (h *Hub) DroppedMessages() int64 {
	return atomic.LoadInt64(&h.dropped)
}
