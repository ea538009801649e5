// Package ws bridges bus traffic to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/breaker"
	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

// Addresses carried in Envelope.Address.
const (
	AddressMarket    = "market"
	AddressPortfolio = "portfolio"
	AddressBreaker   = "circuit-breaker"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxReadBytes = 512
	sendBuffer   = 256
)

// Envelope is one message pushed to clients.
type Envelope struct {
	Address string          `json:"address"`
	Body    json.RawMessage `json:"body"`
}

// BreakerEvent is the body of circuit-breaker envelopes.
type BreakerEvent struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once

	mu     sync.RWMutex
	filter map[string]bool // nil: every address
}

func (c *client) wants(address string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter == nil || c.filter[address]
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Bridge fans out outbound bus messages to every connected client.
// Clients may send {"subscribe":["market"]} to narrow what they receive.
type Bridge struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	log *zap.Logger
}

// NewBridge creates a new Bridge.
func NewBridge(log *zap.Logger) *Bridge {
	return &Bridge{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		log:     logger.OrNop(log).With(zap.String("component", "ws")),
	}
}

// Clients returns the number of connected clients.
func (b *Bridge) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends body under address. Clients whose queue is full are dropped.
func (b *Bridge) Broadcast(address string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Envelope{Address: address, Body: raw})
	if err != nil {
		return err
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		if !c.wants(address) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.log.Warn("Dropping slow websocket client")
		b.unregister(c)
	}
	return nil
}

// Start forwards quotes matching pattern and every trade event until ctx is done.
func (b *Bridge) Start(ctx context.Context, quotes domain.QuoteSubscriber, pattern string, trades domain.TradeSubscriber) error {
	if err := quotes.SubscribeQuotes(ctx, pattern, func(q domain.Quote) error {
		return b.Broadcast(AddressMarket, q)
	}); err != nil {
		return err
	}
	return trades.SubscribeTrades(ctx, func(e domain.TradeEvent) error {
		return b.Broadcast(AddressPortfolio, e)
	})
}

// BreakerListener returns a hook that pushes breaker transitions to clients.
func (b *Bridge) BreakerListener() breaker.StateChangeFunc {
	return func(name string, _, to breaker.State) {
		if err := b.Broadcast(AddressBreaker, BreakerEvent{Name: name, State: to.String()}); err != nil {
			b.log.Warn("Failed to broadcast breaker state", zap.Error(err))
		}
	}
}

// ServeWS upgrades the request and streams envelopes until the client goes away.
func (b *Bridge) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	go b.writePump(c)
	go b.readPump(c)
}

// Close disconnects every client.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		c.close()
		delete(b.clients, c)
	}
}

func (b *Bridge) unregister(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
}

func (b *Bridge) readPump(c *client) {
	defer func() {
		b.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Subscribe []string `json:"subscribe"`
		}
		if err := json.Unmarshal(msg, &req); err != nil || req.Subscribe == nil {
			continue
		}
		filter := make(map[string]bool, len(req.Subscribe))
		for _, address := range req.Subscribe {
			filter[address] = true
		}
		c.mu.Lock()
		c.filter = filter
		c.mu.Unlock()
	}
}

func (b *Bridge) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
