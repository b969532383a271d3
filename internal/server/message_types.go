package server

// MessageType names a wire frame. Game events map one-to-one onto server
// message types in messageFromEvent.
type MessageType string

const (
	// Client to server.
	MessageTypeHello        MessageType = "HELLO"
	MessageTypeListTables   MessageType = "LIST_TABLES"
	MessageTypeSeatTake     MessageType = "SEAT_TAKE"
	MessageTypeBuyIn        MessageType = "BUY_IN"
	MessageTypePlayerAction MessageType = "PLAYER_ACTION"
	MessageTypeCashOut      MessageType = "CASH_OUT"
	MessageTypeStartGame    MessageType = "START_GAME"

	// Server to client.
	MessageTypeHelloOK        MessageType = "HELLO_OK"
	MessageTypeTableList      MessageType = "TABLE_LIST"
	MessageTypeTableSnapshot  MessageType = "TABLE_SNAPSHOT"
	MessageTypePlayerSeated   MessageType = "PLAYER_SEATED"
	MessageTypeBuyInApplied   MessageType = "BUY_IN_APPLIED"
	MessageTypeBuyInPending   MessageType = "BUY_IN_PENDING"
	MessageTypePlayerLeft     MessageType = "PLAYER_LEFT"
	MessageTypeHandStarted    MessageType = "HAND_STARTED"
	MessageTypeHoleCards      MessageType = "HOLE_CARDS"
	MessageTypeDealFlop       MessageType = "DEAL_FLOP"
	MessageTypeDealTurn       MessageType = "DEAL_TURN"
	MessageTypeDealRiver      MessageType = "DEAL_RIVER"
	MessageTypeActionRequired MessageType = "ACTION_REQUIRED"
	MessageTypeActionApplied  MessageType = "PLAYER_ACTION_APPLIED"
	MessageTypeShowdown       MessageType = "SHOWDOWN"
	MessageTypePotAwarded     MessageType = "POT_AWARDED"
	MessageTypeHandEnded      MessageType = "HAND_ENDED"
	MessageTypeHandVoided     MessageType = "HAND_VOIDED"
	MessageTypeCashOutOK      MessageType = "CASH_OUT_OK"
	MessageTypeCashOutPending MessageType = "CASH_OUT_PENDING"
	MessageTypeError          MessageType = "ERROR"
)

func (mt MessageType) String() string {
	return string(mt)
}
