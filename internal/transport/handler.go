package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ndrandal/simbroker/internal/ledger"
	"github.com/ndrandal/simbroker/internal/simbroker"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientRequest is the client → gateway control/action envelope.
type clientRequest struct {
	Type    string          `json:"type"`
	Symbols []string        `json:"symbols,omitempty"`
	Action  json.RawMessage `json:"action,omitempty"`
}

// wireAction mirrors simbroker.Action as JSON; fields irrelevant to Kind
// are simply omitted by the sender.
type wireAction struct {
	Kind       string  `json:"kind"`
	AcctID     string  `json:"acct_id,omitempty"`
	PosID      string  `json:"pos_id,omitempty"`
	SymbolName string  `json:"symbol,omitempty"`
	Size       uint64  `json:"size,omitempty"`
	Long       bool    `json:"long,omitempty"`
	EntryPrice *int64  `json:"entry_price,omitempty"`
	Stop       *int64  `json:"stop,omitempty"`
	TakeProfit *int64  `json:"take_profit,omitempty"`
}

// Handler creates the HTTP handler that upgrades to WebSocket and wires
// the connection to srv/broker.
func Handler(srv *Server, broker *simbroker.Client, resolveSymbol func(name string) (int, bool), log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		client := srv.Register(conn)
		go writePump(client)
		go readPump(client, srv, broker, resolveSymbol, log)
	}
}

func readPump(c *Client, srv *Server, broker *simbroker.Client, resolveSymbol func(name string) (int, bool), log zerolog.Logger) {
	defer srv.Unregister(c)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Uint64("client", c.ID).Err(err).Msg("read error")
			}
			return
		}

		var req clientRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			log.Warn().Uint64("client", c.ID).Err(err).Msg("invalid client message")
			continue
		}
		handleRequest(c, srv, broker, resolveSymbol, &req, log)
	}
}

func handleRequest(c *Client, srv *Server, broker *simbroker.Client, resolveSymbol func(name string) (int, bool), req *clientRequest, log zerolog.Logger) {
	switch req.Type {
	case "subscribe":
		c.Subscribe(req.Symbols)
		for _, name := range req.Symbols {
			go srv.RunTickFanout(name)
		}

	case "execute":
		var wa wireAction
		if err := json.Unmarshal(req.Action, &wa); err != nil {
			log.Warn().Uint64("client", c.ID).Err(err).Msg("invalid action payload")
			return
		}
		action, err := decodeAction(wa, resolveSymbol)
		if err != nil {
			log.Warn().Uint64("client", c.ID).Err(err).Msg("unrecognized action")
			return
		}
		go func() {
			res := <-broker.Execute(action)
			msg := res.Message
			if res.Err != nil {
				msg = ledger.Failure{Err: res.Err}
			}
			if srv.audit != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := srv.audit.Append(ctx, action.AcctID, msg); err != nil {
					log.Warn().Uint64("client", c.ID).Err(err).Msg("audit log append failed")
				}
				cancel()
			}
			data, err := encodeMessage(msg)
			if err != nil {
				return
			}
			c.Send(data)
		}()

	default:
		log.Warn().Uint64("client", c.ID).Str("type", req.Type).Msg("unknown request type")
	}
}

func writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.SendCh():
			if !ok {
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.Done():
			return
		}
	}
}

func decodeAction(wa wireAction, resolveSymbol func(name string) (int, bool)) (simbroker.Action, error) {
	a := simbroker.Action{
		Size: wa.Size, Long: wa.Long,
		EntryPrice: wa.EntryPrice, Stop: wa.Stop, TakeProfit: wa.TakeProfit,
	}

	if wa.AcctID != "" {
		id, err := uuid.Parse(wa.AcctID)
		if err != nil {
			return simbroker.Action{}, err
		}
		a.AcctID = id
	}
	if wa.PosID != "" {
		id, err := uuid.Parse(wa.PosID)
		if err != nil {
			return simbroker.Action{}, err
		}
		a.PosID = id
	}
	if wa.SymbolName != "" {
		if ix, ok := resolveSymbol(wa.SymbolName); ok {
			a.SymbolIx = ix
		}
	}

	switch wa.Kind {
	case "ping":
		a.Kind = simbroker.ActionPing
	case "list_accounts":
		a.Kind = simbroker.ActionListAccounts
	case "get_ledger":
		a.Kind = simbroker.ActionGetLedger
	case "disconnect":
		a.Kind = simbroker.ActionDisconnect
	case "market_order":
		a.Kind = simbroker.ActionMarketOrder
	case "market_close":
		a.Kind = simbroker.ActionMarketClose
	case "limit_order":
		a.Kind = simbroker.ActionLimitOrder
	case "limit_close":
		a.Kind = simbroker.ActionLimitClose
	case "modify_order":
		a.Kind = simbroker.ActionModifyOrder
	case "modify_position":
		a.Kind = simbroker.ActionModifyPosition
	case "cancel_order":
		a.Kind = simbroker.ActionCancelOrder
	default:
		return simbroker.Action{}, errUnknownActionKind(wa.Kind)
	}

	return a, nil
}

type errUnknownActionKind string

func (e errUnknownActionKind) Error() string { return "transport: unknown action kind " + string(e) }
