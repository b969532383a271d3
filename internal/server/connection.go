package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/tableserver/internal/game"
	"github.com/lox/tableserver/internal/table"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Deadline for a client request to be applied by a table actor.
	requestTimeout = 10 * time.Second
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection wraps one WebSocket client: a read pump dispatching requests
// and a write pump draining the send buffer.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once

	userID  string
	name    string
	tableID string
}

func newConnection(conn *websocket.Conn, server *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		server: server,
		logger: logger.WithPrefix("conn").With("remote", conn.RemoteAddr().String()),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Connection) start() {
	go c.writePump()
	go c.readPump()
}

func (c *Connection) close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// sendMessage queues a frame for the write pump. A full buffer means the
// client stopped reading; the connection is cut rather than blocking a
// table actor.
func (c *Connection) sendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("send buffer full, closing connection", "user", c.user())
		_ = c.close()
		return ErrConnectionClosed
	}
}

func (c *Connection) setUser(userID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.name = name
}

func (c *Connection) user() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) userName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *Connection) setTable(tableID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableID = tableID
}

func (c *Connection) table() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tableID
}

func (c *Connection) readPump() {
	defer func() { _ = c.close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("websocket write", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("received message", "type", msg.Type, "user", c.user())

	switch msg.Type {
	case MessageTypeHello:
		var data HelloData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse hello data")
			return
		}
		c.handleHello(data)

	case MessageTypeListTables:
		c.handleListTables()

	case MessageTypeSeatTake:
		var data SeatTakeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse seat take data")
			return
		}
		c.handleSeatTake(data)

	case MessageTypeBuyIn:
		var data BuyInData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse buy in data")
			return
		}
		c.handleBuyIn(data)

	case MessageTypePlayerAction:
		var data PlayerActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse player action data")
			return
		}
		c.handlePlayerAction(data)

	case MessageTypeCashOut:
		var data CashOutData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse cash out data")
			return
		}
		c.handleCashOut(data)

	case MessageTypeStartGame:
		var data StartGameData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse start game data")
			return
		}
		c.handleStartGame(data)

	default:
		c.sendError("unknown_message_type", "unknown message type: "+string(msg.Type))
	}
}

// sendError reports a failed request to this client only.
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
	if err != nil {
		c.logger.Error("building error message", "error", err)
		return
	}
	_ = c.sendMessage(errorMsg)
}

func (c *Connection) replyError(err error) {
	c.sendError(errorCode(err), err.Error())
}

// requireUser gates table-scoped requests behind the HELLO handshake.
func (c *Connection) requireUser() (string, bool) {
	userID := c.user()
	if userID == "" {
		c.sendError("not_authenticated", "send HELLO first")
		return "", false
	}
	return userID, true
}

func (c *Connection) requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.ctx, requestTimeout)
}

func (c *Connection) handleHello(data HelloData) {
	if data.UserID == "" {
		c.sendError("invalid_hello", "userId required")
		return
	}
	c.setUser(data.UserID, data.Name)
	c.logger.Info("hello", "user", data.UserID, "name", data.Name)

	balance, err := c.server.wallet.Balance(data.UserID)
	if err != nil {
		c.logger.Error("reading wallet balance", "user", data.UserID, "error", err)
	}
	response, _ := NewMessage(MessageTypeHelloOK, HelloOKData{UserID: data.UserID, Balance: balance})
	_ = c.sendMessage(response)

	// A user with a live seat is reconnecting: reattach them to their
	// table, which replays state via a snapshot.
	ctx, cancel := c.requestCtx()
	defer cancel()
	if session, ok := c.server.registry.FindUser(ctx, data.UserID); ok {
		c.setTable(session.ID())
		if err := session.SetConnected(ctx, data.UserID, true); err != nil {
			c.logger.Error("reattaching user to table", "user", data.UserID, "table", session.ID(), "error", err)
		}
	}
}

func (c *Connection) handleListTables() {
	ctx, cancel := c.requestCtx()
	defer cancel()

	summaries, err := c.server.registry.List(ctx)
	if err != nil {
		c.replyError(err)
		return
	}
	response, _ := NewMessage(MessageTypeTableList, summaries)
	_ = c.sendMessage(response)
}

// handleSeatTake claims a seat. A claim with no table id creates a fresh
// on-demand table; the snapshot sent on seating carries its id.
func (c *Connection) handleSeatTake(data SeatTakeData) {
	userID, ok := c.requireUser()
	if !ok {
		return
	}
	var session *table.Session
	if data.TableID == "" {
		session = c.server.registry.CreateOnDemand()
	} else {
		session, ok = c.server.registry.Get(data.TableID)
		if !ok {
			c.sendError("table_not_found", "no such table: "+data.TableID)
			return
		}
	}

	ctx, cancel := c.requestCtx()
	defer cancel()
	if err := session.TakeSeat(ctx, userID, c.userName(), data.SeatNo); err != nil {
		c.replyError(err)
		return
	}
	c.setTable(session.ID())
}

func (c *Connection) handleBuyIn(data BuyInData) {
	userID, ok := c.requireUser()
	if !ok {
		return
	}
	session, ok := c.server.registry.Get(data.TableID)
	if !ok {
		c.sendError("table_not_found", "no such table: "+data.TableID)
		return
	}

	ctx, cancel := c.requestCtx()
	defer cancel()
	deferred, err := session.BuyIn(ctx, userID, data.Amount)
	if err != nil {
		c.replyError(err)
		return
	}
	if deferred {
		// BUY_IN_APPLIED follows at hand end.
		response, _ := NewTableMessage(MessageTypeBuyInPending, data.TableID, BuyInPendingData{TableID: data.TableID, Amount: data.Amount})
		_ = c.sendMessage(response)
	}
}

func (c *Connection) handlePlayerAction(data PlayerActionData) {
	userID, ok := c.requireUser()
	if !ok {
		return
	}
	session, ok := c.server.registry.Get(data.TableID)
	if !ok {
		c.sendError("table_not_found", "no such table: "+data.TableID)
		return
	}
	action, err := game.ParseAction(data.Action)
	if err != nil {
		c.replyError(err)
		return
	}

	ctx, cancel := c.requestCtx()
	defer cancel()
	if err := session.Act(ctx, userID, action, data.Amount); err != nil {
		c.replyError(err)
	}
}

func (c *Connection) handleCashOut(data CashOutData) {
	userID, ok := c.requireUser()
	if !ok {
		return
	}
	session, ok := c.server.registry.Get(data.TableID)
	if !ok {
		c.sendError("table_not_found", "no such table: "+data.TableID)
		return
	}

	ctx, cancel := c.requestCtx()
	defer cancel()
	_, deferred, err := session.CashOut(ctx, userID)
	if err != nil {
		c.replyError(err)
		return
	}
	if deferred {
		// CASH_OUT_OK follows at hand end.
		response, _ := NewTableMessage(MessageTypeCashOutPending, data.TableID, CashOutPendingData{TableID: data.TableID})
		_ = c.sendMessage(response)
		return
	}
	c.setTable("")
}

func (c *Connection) handleStartGame(data StartGameData) {
	userID, ok := c.requireUser()
	if !ok {
		return
	}
	session, ok := c.server.registry.Get(data.TableID)
	if !ok {
		c.sendError("table_not_found", "no such table: "+data.TableID)
		return
	}

	ctx, cancel := c.requestCtx()
	defer cancel()
	if err := session.StartGame(ctx, userID); err != nil {
		c.replyError(err)
	}
}
