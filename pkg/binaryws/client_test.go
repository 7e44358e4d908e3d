package binaryws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"contractbot/internal/model"
)

var upgrader = websocket.Upgrader{}

// mockBroker implements just enough of the protocol for the client: echo the
// req_id, answer authorize/history/buy, stream a couple of ticks after a
// ticks subscription and a sold contract after a proposal_open_contract one.
// Upgraded connections are handed back on the second return value so tests
// can sever them server-side (httptest's CloseClientConnections does not
// track hijacked connections).
func mockBroker(t *testing.T) (*httptest.Server, chan *websocket.Conn) {
	t.Helper()

	conns := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		conns <- conn

		for {
			var req map[string]interface{}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			reqID := req["req_id"]

			switch {
			case req["authorize"] != nil:
				conn.WriteJSON(map[string]interface{}{
					"msg_type": "authorize", "req_id": reqID,
					"authorize": map[string]interface{}{"loginid": "VRTC123"},
				})

			case req["ticks_history"] != nil:
				conn.WriteJSON(map[string]interface{}{
					"msg_type": "history", "req_id": reqID,
					"history": map[string]interface{}{
						"prices": []float64{100.1, 100.2, 100.3},
						"times":  []int64{1700000001, 1700000002, 1700000003},
					},
				})

			case req["ticks"] != nil:
				conn.WriteJSON(map[string]interface{}{
					"msg_type": "tick", "req_id": reqID,
					"subscription": map[string]interface{}{"id": "sub-1"},
				})
				for i, q := range []float64{100.4, 100.5} {
					conn.WriteJSON(map[string]interface{}{
						"msg_type": "tick",
						"tick": map[string]interface{}{
							"symbol": req["ticks"], "quote": q,
							"epoch": int64(1700000004 + i),
						},
					})
				}

			case req["buy"] != nil:
				params := req["parameters"].(map[string]interface{})
				if params["amount"].(float64) > 100 {
					conn.WriteJSON(map[string]interface{}{
						"msg_type": "buy", "req_id": reqID,
						"error": map[string]interface{}{
							"code": "InsufficientBalance", "message": "stake too large",
						},
					})
					continue
				}
				conn.WriteJSON(map[string]interface{}{
					"msg_type": "buy", "req_id": reqID,
					"buy": map[string]interface{}{"contract_id": int64(42)},
				})

			case req["proposal_open_contract"] != nil:
				conn.WriteJSON(map[string]interface{}{
					"msg_type": "proposal_open_contract", "req_id": reqID,
					"passthrough": req["passthrough"],
					"proposal_open_contract": map[string]interface{}{
						"contract_id": int64(42), "is_sold": 1,
						"profit": 6.33, "sell_time": int64(1700000100),
					},
				})
			}
		}
	}))
	return srv, conns
}

func dialMock(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), Config{URL: url, APIToken: "test-token"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func TestClient_FetchHistory(t *testing.T) {
	srv, _ := mockBroker(t)
	defer srv.Close()
	c := dialMock(t, srv)
	defer c.Close()

	points, err := c.FetchHistory(context.Background(), "R_100", 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[0].Price != 100.1 || points[2].Price != 100.3 {
		t.Errorf("price mismatch: %+v", points)
	}
	for i := 1; i < len(points); i++ {
		if !points[i].TS.After(points[i-1].TS) {
			t.Errorf("timestamps not ascending at %d", i)
		}
	}
}

func TestClient_SubscribeStreamsTicks(t *testing.T) {
	srv, _ := mockBroker(t)
	defer srv.Close()
	c := dialMock(t, srv)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.PricePoint, 8)
	done := make(chan error, 1)
	go func() { done <- c.Subscribe(ctx, "R_100", out) }()

	for _, want := range []float64{100.4, 100.5} {
		select {
		case p := <-out:
			if p.Price != want || p.Symbol != "R_100" {
				t.Errorf("tick mismatch: %+v", p)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("tick not received")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not stop")
	}
}

func TestClient_SubmitOrderAckAndSettlement(t *testing.T) {
	srv, _ := mockBroker(t)
	defer srv.Close()
	c := dialMock(t, srv)
	defer c.Close()

	req := model.OrderRequest{
		TradeID:   "t1",
		Symbol:    "R_100",
		Direction: model.DirectionBuy,
		Stake:     10,
		Duration:  time.Minute,
	}
	if err := c.SubmitOrder(context.Background(), req); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case ev := <-c.Events():
		if ev.Type != model.ExecAck || ev.TradeID != "t1" || ev.BrokerRef != "42" {
			t.Fatalf("expected ack for t1/42, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no ack")
	}

	select {
	case ev := <-c.Events():
		if ev.Type != model.ExecSettlement || ev.TradeID != "t1" || ev.PnL != 6.33 {
			t.Fatalf("expected settlement pnl 6.33, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no settlement")
	}
}

func TestClient_SubmitOrderBrokerReject(t *testing.T) {
	srv, _ := mockBroker(t)
	defer srv.Close()
	c := dialMock(t, srv)
	defer c.Close()

	req := model.OrderRequest{
		TradeID:   "t2",
		Symbol:    "R_100",
		Direction: model.DirectionSell,
		Stake:     500, // the mock rejects stakes over 100
		Duration:  time.Minute,
	}
	if err := c.SubmitOrder(context.Background(), req); err != nil {
		t.Fatalf("a broker-side reject is an event, not an error: %v", err)
	}

	select {
	case ev := <-c.Events():
		if ev.Type != model.ExecReject || ev.TradeID != "t2" {
			t.Fatalf("expected reject, got %+v", ev)
		}
		if ev.Reason != "stake too large" {
			t.Errorf("reason mismatch: %q", ev.Reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reject event")
	}
}

func TestClient_DoneOnServerClose(t *testing.T) {
	srv, conns := mockBroker(t)
	defer srv.Close()
	c := dialMock(t, srv)
	defer c.Close()

	// Drop the broker side of the socket; the read loop must notice and
	// close Done.
	(<-conns).Close()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after connection loss")
	}
}

func TestRawMessageDecode(t *testing.T) {
	data := []byte(`{"msg_type":"proposal_open_contract","passthrough":{"trade_id":"abc"},
		"proposal_open_contract":{"contract_id":7,"is_sold":1,"profit":-10}}`)
	var msg rawMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Contract == nil || msg.Contract.IsSold != 1 || msg.Contract.Profit != -10 {
		t.Errorf("contract decode mismatch: %+v", msg.Contract)
	}
	var pt passthrough
	if err := json.Unmarshal(msg.Passthrough, &pt); err != nil || pt.TradeID != "abc" {
		t.Errorf("passthrough decode mismatch: %v %v", pt, err)
	}
}
