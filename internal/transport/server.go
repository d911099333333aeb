package transport

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ndrandal/simbroker/internal/ledger"
	"github.com/ndrandal/simbroker/internal/persist"
	"github.com/ndrandal/simbroker/internal/simbroker"
)

// Server fans simbroker push-stream messages out to every connected
// client and routes each client's trading actions back into the broker.
type Server struct {
	mu         sync.RWMutex
	clients    map[uint64]*Client
	broker     *simbroker.Client
	bufferSize int
	log        zerolog.Logger

	// audit is optional: nil disables per-action audit logging (tests,
	// or a deployment with no Mongo configured).
	audit *persist.AuditLog
}

// NewServer creates a gateway in front of broker.
func NewServer(broker *simbroker.Client, bufferSize int, log zerolog.Logger) *Server {
	return &Server{
		clients:    make(map[uint64]*Client),
		broker:     broker,
		bufferSize: bufferSize,
		log:        log.With().Str("component", "transport").Logger(),
	}
}

// SetAuditLog attaches the audit log every executed trading action is
// recorded to. Called once during startup wiring, before any client
// connects.
func (s *Server) SetAuditLog(audit *persist.AuditLog) {
	s.audit = audit
}

// Register adds a new client.
func (s *Server) Register(conn *websocket.Conn) *Client {
	c := NewClient(conn, s.bufferSize)
	s.mu.Lock()
	s.clients[c.ID] = c
	s.mu.Unlock()
	s.log.Info().Uint64("client", c.ID).Str("remote", conn.RemoteAddr().String()).Msg("client connected")
	return c
}

// Unregister removes and closes a client.
func (s *Server) Unregister(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.ID)
	s.mu.Unlock()
	c.Close()
	s.log.Info().Uint64("client", c.ID).Msg("client disconnected")
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// wireMessage is the envelope every push broadcast is encoded as.
type wireMessage struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// RunPushFanout drains the broker's push stream and broadcasts every
// message to every connected client. The broker never closes its push
// stream, so this does not return; run it in its own goroutine for the
// lifetime of the server.
func (s *Server) RunPushFanout() {
	for msg := range s.broker.GetStream() {
		data, err := encodeMessage(msg)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to encode push message")
			continue
		}
		s.broadcast(data)
	}
}

func (s *Server) broadcast(data []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.Send(data)
	}
}

// RunTickFanout subscribes to symbol's tick channel and forwards every
// tick to subscribed clients. It returns early only if subscribing
// fails; the registry never closes a symbol's tick channel, not even
// when its source is exhausted, so otherwise it keeps waiting for ticks.
func (s *Server) RunTickFanout(symbolName string) {
	ticks, err := s.broker.SubTicks(symbolName)
	if err != nil {
		s.log.Error().Str("symbol", symbolName).Err(err).Msg("failed to subscribe to ticks")
		return
	}
	for tick := range ticks {
		body, err := json.Marshal(tick)
		if err != nil {
			continue
		}
		data, err := json.Marshal(wireMessage{Kind: "Tick:" + symbolName, Body: body})
		if err != nil {
			continue
		}
		s.mu.RLock()
		for _, c := range s.clients {
			if c.IsSubscribed(symbolName) {
				c.Send(data)
			}
		}
		s.mu.RUnlock()
	}
}

func encodeMessage(msg ledger.BrokerMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Kind: messageKind(msg), Body: body})
}

func messageKind(msg ledger.BrokerMessage) string {
	switch msg.(type) {
	case ledger.Success:
		return "Success"
	case ledger.Notice:
		return "Notice"
	case ledger.Failure:
		return "Failure"
	case ledger.Pong:
		return "Pong"
	case ledger.AccountListing:
		return "AccountListing"
	case ledger.LedgerSnapshot:
		return "Ledger"
	case ledger.LedgerBalanceChange:
		return "LedgerBalanceChange"
	case ledger.OrderPlaced:
		return "OrderPlaced"
	case ledger.OrderModified:
		return "OrderModified"
	case ledger.OrderCancelled:
		return "OrderCancelled"
	case ledger.PositionOpened:
		return "PositionOpened"
	case ledger.PositionClosed:
		return "PositionClosed"
	case ledger.PositionModified:
		return "PositionModified"
	default:
		return "Unknown"
	}
}
