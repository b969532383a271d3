package server

import (
	"encoding/json"
	"time"
)

// Message is the envelope for every frame in both directions. TableID is
// set on table-scoped server frames so a client can watch several tables
// on one connection.
type Message struct {
	Type      MessageType     `json:"type"`
	TableID   string          `json:"tableId,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage wraps a payload in an envelope stamped with the current time.
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// NewTableMessage is NewMessage with the table scope set.
func NewTableMessage(messageType MessageType, tableID string, data any) (*Message, error) {
	msg, err := NewMessage(messageType, data)
	if err != nil {
		return nil, err
	}
	msg.TableID = tableID
	return msg, nil
}

// Client → server payloads.

// HelloData identifies the connection. It stands in for an external auth
// system: the server trusts the claimed user ID.
type HelloData struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type SeatTakeData struct {
	TableID string `json:"tableId"`
	SeatNo  int    `json:"seatNo"`
}

type BuyInData struct {
	TableID string `json:"tableId"`
	Amount  int    `json:"amount"`
}

type PlayerActionData struct {
	TableID string `json:"tableId"`
	Action  string `json:"action"`
	Amount  int    `json:"amount,omitempty"`
}

type CashOutData struct {
	TableID string `json:"tableId"`
}

type StartGameData struct {
	TableID string `json:"tableId"`
}

// Server → client payloads. Game events marshal directly from the
// internal/game union; these are the transport-only payloads.

type HelloOKData struct {
	UserID  string `json:"userId"`
	Balance int    `json:"balance"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CashOutPendingData struct {
	TableID string `json:"tableId"`
}

type BuyInPendingData struct {
	TableID string `json:"tableId"`
	Amount  int    `json:"amount"`
}
