// Package binaryws is a WebSocket client for Deriv-style binary-option
// broker APIs. It speaks the JSON request/response protocol over a single
// gorilla/websocket connection: requests carry a req_id echoed by the
// server, streams (ticks, open-contract updates) arrive interleaved with
// responses and are dispatched by msg_type.
//
// The client is single-connection by design. When the socket breaks, every
// in-flight call fails and the owner is expected to rebuild the client and
// re-warm indicator state before resubscribing.
package binaryws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"contractbot/internal/model"
)

const (
	defaultPingInterval = 30 * time.Second
	callTimeout         = 10 * time.Second
	writeTimeout        = 10 * time.Second
)

// ErrClosed is returned for operations on a client whose connection is gone.
var ErrClosed = errors.New("binaryws: connection closed")

// Config holds connection and authentication parameters.
type Config struct {
	URL          string // e.g. "wss://ws.derivws.com/websockets/v3"
	AppID        string
	APIToken     string
	TOTPSecret   string // optional second factor for the authorize call
	PingInterval time.Duration
}

// Client is a connected broker session.
type Client struct {
	cfg  Config
	conn *websocket.Conn

	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu      sync.Mutex
	nextReq int
	pending map[int]chan json.RawMessage
	tickCh  chan<- model.PricePoint
	closed  bool

	events chan model.ExecutionEvent
	done   chan struct{}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rawMsg struct {
	MsgType     string          `json:"msg_type"`
	ReqID       int             `json:"req_id"`
	Error       *apiError       `json:"error"`
	Tick        *tickMsg        `json:"tick"`
	Contract    *contractMsg    `json:"proposal_open_contract"`
	Passthrough json.RawMessage `json:"passthrough"`
}

type tickMsg struct {
	Symbol string  `json:"symbol"`
	Quote  float64 `json:"quote"`
	Epoch  int64   `json:"epoch"`
}

type contractMsg struct {
	ContractID int64   `json:"contract_id"`
	IsSold     int     `json:"is_sold"`
	Profit     float64 `json:"profit"`
	SellTime   int64   `json:"sell_time"`
}

type passthrough struct {
	TradeID string `json:"trade_id"`
}

// Dial connects, starts the read loop and authorizes the session.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}

	url := cfg.URL
	if cfg.AppID != "" {
		url = fmt.Sprintf("%s?app_id=%s", cfg.URL, cfg.AppID)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("binaryws: dial %s: %w", cfg.URL, err)
	}

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		pending: make(map[int]chan json.RawMessage),
		events:  make(chan model.ExecutionEvent, 128),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()

	if err := c.authorize(ctx); err != nil {
		c.Close()
		return nil, err
	}
	log.Printf("[binaryws] connected to %s", cfg.URL)
	return c, nil
}

// authorize sends the API token, with a fresh TOTP code when a shared secret
// is configured.
func (c *Client) authorize(ctx context.Context) error {
	req := map[string]interface{}{"authorize": c.cfg.APIToken}
	if c.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
		if err != nil {
			return fmt.Errorf("binaryws: totp: %w", err)
		}
		req["totp_code"] = code
	}

	if _, err := c.call(ctx, req); err != nil {
		return fmt.Errorf("binaryws: authorize: %w", err)
	}
	return nil
}

// Events is the stream of acks, rejects and settlements.
func (c *Client) Events() <-chan model.ExecutionEvent {
	return c.events
}

// Done is closed when the connection is lost.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.conn.Close()
}

// FetchHistory returns the latest count ticks in ascending order.
func (c *Client) FetchHistory(ctx context.Context, symbol string, count int) ([]model.PricePoint, error) {
	raw, err := c.call(ctx, map[string]interface{}{
		"ticks_history": symbol,
		"count":         count,
		"end":           "latest",
		"style":         "ticks",
	})
	if err != nil {
		return nil, fmt.Errorf("binaryws: history: %w", err)
	}

	var resp struct {
		History struct {
			Prices []float64 `json:"prices"`
			Times  []int64   `json:"times"`
		} `json:"history"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("binaryws: history decode: %w", err)
	}
	if len(resp.History.Prices) != len(resp.History.Times) {
		return nil, fmt.Errorf("binaryws: history length mismatch")
	}

	out := make([]model.PricePoint, len(resp.History.Prices))
	for i := range out {
		out[i] = model.PricePoint{
			Symbol: symbol,
			TS:     time.Unix(resp.History.Times[i], 0).UTC(),
			Price:  resp.History.Prices[i],
		}
	}
	return out, nil
}

// Subscribe streams live ticks for symbol into out. Blocks until ctx is
// cancelled or the connection breaks.
func (c *Client) Subscribe(ctx context.Context, symbol string, out chan<- model.PricePoint) error {
	c.mu.Lock()
	c.tickCh = out
	c.mu.Unlock()

	if _, err := c.call(ctx, map[string]interface{}{
		"ticks":     symbol,
		"subscribe": 1,
	}); err != nil {
		return fmt.Errorf("binaryws: subscribe %s: %w", symbol, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// SubmitOrder buys a contract. The broker response is translated into an
// ACK or REJECT execution event; settlement follows on the open-contract
// subscription. A returned error means the order never reached the broker.
func (c *Client) SubmitOrder(ctx context.Context, req model.OrderRequest) error {
	contractType := "CALL"
	if req.Direction == model.DirectionSell {
		contractType = "PUT"
	}

	raw, err := c.call(ctx, map[string]interface{}{
		"buy":   1,
		"price": req.Stake,
		"parameters": map[string]interface{}{
			"contract_type": contractType,
			"symbol":        req.Symbol,
			"amount":        req.Stake,
			"basis":         "stake",
			"duration":      int(req.Duration.Seconds()),
			"duration_unit": "s",
			"currency":      "USD",
		},
		"passthrough": passthrough{TradeID: req.TradeID},
	})
	if err != nil {
		var aerr *apiError
		if errors.As(err, &aerr) {
			c.events <- model.ExecutionEvent{
				Type:    model.ExecReject,
				TradeID: req.TradeID,
				Reason:  aerr.Message,
				At:      time.Now().UTC(),
			}
			return nil
		}
		return fmt.Errorf("binaryws: buy: %w", err)
	}

	var resp struct {
		Buy struct {
			ContractID int64 `json:"contract_id"`
		} `json:"buy"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("binaryws: buy decode: %w", err)
	}

	ref := fmt.Sprintf("%d", resp.Buy.ContractID)
	c.events <- model.ExecutionEvent{
		Type:      model.ExecAck,
		TradeID:   req.TradeID,
		BrokerRef: ref,
		At:        time.Now().UTC(),
	}

	// Follow the contract to settlement. Updates arrive on the stream with
	// our passthrough attached.
	go func() {
		sctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		if _, err := c.call(sctx, map[string]interface{}{
			"proposal_open_contract": 1,
			"contract_id":            resp.Buy.ContractID,
			"subscribe":              1,
			"passthrough":            passthrough{TradeID: req.TradeID},
		}); err != nil {
			log.Printf("[binaryws] contract %s subscribe error: %v", ref, err)
		}
	}()
	return nil
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// call writes one request and waits for the response carrying its req_id.
func (c *Client) call(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextReq++
	id := c.nextReq
	ch := make(chan json.RawMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	payload["req_id"] = id
	if err := c.write(payload); err != nil {
		return nil, err
	}

	tctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	select {
	case raw := <-ch:
		var env struct {
			Error *apiError `json:"error"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
		if env.Error != nil {
			return nil, env.Error
		}
		return raw, nil
	case <-c.done:
		return nil, ErrClosed
	case <-tctx.Done():
		return nil, tctx.Err()
	}
}

func (c *Client) write(payload interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(payload)
}

// readLoop dispatches incoming frames until the connection breaks.
func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.mu.Unlock()
			if !wasClosed {
				log.Printf("[binaryws] read error: %v", err)
			}
			return
		}

		var msg rawMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[binaryws] decode error: %v", err)
			continue
		}

		switch {
		case msg.MsgType == "tick" && msg.Tick != nil:
			c.dispatchTick(msg.Tick)
		case msg.MsgType == "proposal_open_contract" && msg.Contract != nil:
			c.dispatchContract(&msg)
		}

		if msg.ReqID != 0 {
			c.mu.Lock()
			ch, ok := c.pending[msg.ReqID]
			c.mu.Unlock()
			if ok {
				select {
				case ch <- json.RawMessage(data):
				default:
				}
			}
		}
	}
}

func (c *Client) dispatchTick(t *tickMsg) {
	c.mu.Lock()
	out := c.tickCh
	c.mu.Unlock()
	if out == nil {
		return
	}

	p := model.PricePoint{
		Symbol: t.Symbol,
		TS:     time.Unix(t.Epoch, 0).UTC(),
		Price:  t.Quote,
	}
	select {
	case out <- p:
	default:
		log.Println("[binaryws] tick channel full, dropping tick")
	}
}

func (c *Client) dispatchContract(msg *rawMsg) {
	if msg.Contract.IsSold == 0 {
		return
	}

	var pt passthrough
	if len(msg.Passthrough) > 0 {
		if err := json.Unmarshal(msg.Passthrough, &pt); err != nil {
			log.Printf("[binaryws] passthrough decode error: %v", err)
			return
		}
	}
	if pt.TradeID == "" {
		return
	}

	at := time.Now().UTC()
	if msg.Contract.SellTime > 0 {
		at = time.Unix(msg.Contract.SellTime, 0).UTC()
	}
	c.events <- model.ExecutionEvent{
		Type:      model.ExecSettlement,
		TradeID:   pt.TradeID,
		BrokerRef: fmt.Sprintf("%d", msg.Contract.ContractID),
		PnL:       msg.Contract.Profit,
		At:        at,
	}
}

// pingLoop keeps the session alive; Deriv closes idle connections.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(map[string]interface{}{"ping": 1}); err != nil {
				return
			}
		}
	}
}
