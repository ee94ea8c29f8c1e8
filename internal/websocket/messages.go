package websocket

import (
	"time"

	"arbmon/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

const (
	// MessageTypePairState - обновление состояния пары (IDLE/OPEN, площадки
	// и спред входа открытой позиции). cmd/monitor отправляет его раз в
	// секунду для каждой настроенной пары.
	MessageTypePairState MessageType = "pairState"

	// MessageTypeOpportunity - обнаружена новая возможность входа
	MessageTypeOpportunity MessageType = "opportunity"

	// MessageTypeTrade - симулированная сделка закрыта (EXIT)
	MessageTypeTrade MessageType = "trade"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// PairStateMessage - сообщение о текущем состоянии пары
type PairStateMessage struct {
	BaseMessage
	Pair string         `json:"pair"`
	Data *PairStateData `json:"data"`
}

// PairStateData - данные состояния пары
type PairStateData struct {
	// IDLE или OPEN
	State string `json:"state"`

	// Заполнено только когда State == OPEN
	BuyVenue       string  `json:"buy_venue,omitempty"`
	SellVenue      string  `json:"sell_venue,omitempty"`
	EntrySpreadPct float64 `json:"entry_spread_pct,omitempty"`
}

// NewPairStateMessage создает сообщение о состоянии пары
func NewPairStateMessage(pair models.Pair, state models.State, pos models.OpenPosition, hasPosition bool) *PairStateMessage {
	data := &PairStateData{State: string(state)}
	if hasPosition {
		data.BuyVenue = pos.BuyVenue
		data.SellVenue = pos.SellVenue
		data.EntrySpreadPct, _ = pos.EntrySpreadPct.Float64()
	}
	return &PairStateMessage{
		BaseMessage: BaseMessage{Type: MessageTypePairState, Timestamp: time.Now().UTC()},
		Pair:        string(pair),
		Data:        data,
	}
}

// OpportunityMessage - сообщение об обнаруженной возможности входа
type OpportunityMessage struct {
	BaseMessage
	Data *OpportunityData `json:"data"`
}

// OpportunityData - данные возможности входа
type OpportunityData struct {
	Pair         string  `json:"pair"`
	BuyExchange  string  `json:"buy_exchange"`
	BuyPrice     float64 `json:"buy_price"`
	SellExchange string  `json:"sell_exchange"`
	SellPrice    float64 `json:"sell_price"`
	Spread       float64 `json:"spread"`
	SpreadPct    float64 `json:"spread_pct"`
}

// NewOpportunityMessage создает сообщение о возможности входа
func NewOpportunityMessage(o models.OpportunityRecord) *OpportunityMessage {
	buyPrice, _ := o.BuyPrice.Float64()
	sellPrice, _ := o.SellPrice.Float64()
	spread, _ := o.Spread.Float64()
	spreadPct, _ := o.SpreadPct.Float64()
	return &OpportunityMessage{
		BaseMessage: BaseMessage{Type: MessageTypeOpportunity, Timestamp: o.Timestamp},
		Data: &OpportunityData{
			Pair:         string(o.Pair),
			BuyExchange:  o.BuyExchange,
			BuyPrice:     buyPrice,
			SellExchange: o.SellExchange,
			SellPrice:    sellPrice,
			Spread:       spread,
			SpreadPct:    spreadPct,
		},
	}
}

// TradeMessage - сообщение о закрытой (симулированной) сделке
type TradeMessage struct {
	BaseMessage
	Data *TradeData `json:"data"`
}

// TradeData - данные закрытой сделки
type TradeData struct {
	Pair            string  `json:"pair"`
	BuyExchange     string  `json:"buy_exchange"`
	SellExchange    string  `json:"sell_exchange"`
	NetProfit       float64 `json:"net_profit"`
	GrossProfit     float64 `json:"gross_profit"`
	DurationSeconds int64   `json:"duration_seconds"`
	DecisionReason  string  `json:"decision_reason"`
}

// NewTradeMessage создает сообщение о закрытой сделке
func NewTradeMessage(t models.TradeRecord) *TradeMessage {
	net, _ := t.NetProfit.Float64()
	gross, _ := t.GrossProfit.Float64()
	var duration int64
	if t.DurationSeconds != nil {
		duration = *t.DurationSeconds
	}
	return &TradeMessage{
		BaseMessage: BaseMessage{Type: MessageTypeTrade, Timestamp: t.Timestamp},
		Data: &TradeData{
			Pair:            string(t.Pair),
			BuyExchange:     t.BuyExchange,
			SellExchange:    t.SellExchange,
			NetProfit:       net,
			GrossProfit:     gross,
			DurationSeconds: duration,
			DecisionReason:  t.DecisionReason,
		},
	}
}
