package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fairplay/roundhouse/internal/models"
	"github.com/fairplay/roundhouse/internal/services"
)

const (
	writeWait      = 10 * time.Second
	clientSendSize = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketHandler struct {
	ledger *services.LedgerService
	hub    *WebSocketHub
	log    *zap.Logger
}

// WebSocketHub fans committed round and balance events out to connected
// clients. It satisfies services.Broadcaster.
type WebSocketHub struct {
	clients    map[int64]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	log        *zap.Logger
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	send   chan *Message
}

type Message struct {
	Type    string      `json:"type"`
	UserID  int64       `json:"user_id,omitempty"`
	RoundID string      `json:"round_id,omitempty"`
	Data    interface{} `json:"data"`
}

func NewWebSocketHub(log *zap.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 100),
		done:       make(chan struct{}),
		log:        log,
	}
}

func NewWebSocketHandler(hub *WebSocketHub, ledger *services.LedgerService, log *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		ledger: ledger,
		hub:    hub,
		log:    log,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetInt64("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}

	client := &Client{
		UserID: userID,
		Conn:   conn,
		send:   make(chan *Message, clientSendSize),
	}

	if balance, err := h.ledger.Balance(c.Request.Context(), userID); err == nil {
		client.send <- balanceMessage(userID, balance)
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}
	go client.writePump()

	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
			close(client.send)
		}
	}()

	for {
		var msg Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket error", zap.Int64("user_id", userID), zap.Error(err))
			}
			break
		}

		if msg.Type == "PING" {
			select {
			case client.send <- &Message{Type: "PONG", Data: gin.H{"timestamp": time.Now().Unix()}}:
			default:
			}
		}
	}
}

// writePump is the only writer of the connection.
func (c *Client) writePump() {
	defer c.Conn.Close()
	for msg := range c.send {
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteJSON(msg); err != nil {
			return
		}
	}
	c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (hub *WebSocketHub) Name() string {
	return "websocket-hub"
}

// Start runs the hub until ctx ends, then disconnects every client.
func (hub *WebSocketHub) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(hub.done)
			for _, conns := range hub.clients {
				for client := range conns {
					client.Conn.Close()
				}
			}
			return nil

		case client := <-hub.register:
			if hub.clients[client.UserID] == nil {
				hub.clients[client.UserID] = make(map[*Client]bool)
			}
			hub.clients[client.UserID][client] = true
			hub.log.Debug("client registered", zap.Int64("user_id", client.UserID))

		case client := <-hub.unregister:
			if conns, ok := hub.clients[client.UserID]; ok && conns[client] {
				delete(conns, client)
				close(client.send)
				if len(conns) == 0 {
					delete(hub.clients, client.UserID)
				}
				hub.log.Debug("client unregistered", zap.Int64("user_id", client.UserID))
			}

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)
		}
	}
}

func (hub *WebSocketHub) broadcastMessage(message *Message) {
	deliver := func(client *Client) {
		select {
		case client.send <- message:
		default:
			hub.log.Warn("dropping message for slow client", zap.Int64("user_id", client.UserID), zap.String("type", message.Type))
		}
	}

	if message.UserID != 0 {
		for client := range hub.clients[message.UserID] {
			deliver(client)
		}
		return
	}
	for _, conns := range hub.clients {
		for client := range conns {
			deliver(client)
		}
	}
}

func (hub *WebSocketHub) publish(msg *Message) {
	select {
	case hub.broadcast <- msg:
	default:
		hub.log.Warn("broadcast queue full", zap.String("type", msg.Type))
	}
}

func (hub *WebSocketHub) BroadcastRoundFinalized(round *models.Round) {
	hub.publish(&Message{
		Type:    "ROUND_FINALIZED",
		RoundID: round.ID,
		Data: gin.H{
			"round_id":  round.ID,
			"game_type": round.GameType,
			"outcome":   round.Outcome,
			"timestamp": time.Now().Unix(),
		},
	})
}

func (hub *WebSocketHub) BroadcastBalance(userID int64, balance decimal.Decimal) {
	hub.publish(balanceMessage(userID, balance))
}

func balanceMessage(userID int64, balance decimal.Decimal) *Message {
	return &Message{
		Type:   "BALANCE_UPDATE",
		UserID: userID,
		Data: gin.H{
			"balance":   balance,
			"timestamp": time.Now().Unix(),
		},
	}
}
