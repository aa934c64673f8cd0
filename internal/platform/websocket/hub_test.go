package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

const testTopic = "registration_queue"

func newClient(id string) *Client {
	return &Client{ID: id, Topic: testTopic, Send: make(chan []byte, sendBuffer)}
}

func mustEvent(t *testing.T, payload interface{}) Event {
	t.Helper()
	ev, err := NewEvent(testTopic, "queue_update", payload)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return ev
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c1")

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount(testTopic) != 1 {
		t.Fatalf("expected 1 client, got %d/%d", hub.ClientCount(), hub.TopicCount(testTopic))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send to be closed")
	}

	// second unregister must not panic on a closed channel
	hub.Unregister(client)
}

func TestHub_BroadcastDeliversPayloadOnly(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := newClient("sub")
	other := &Client{ID: "other", Topic: "lab_results", Send: make(chan []byte, 1)}
	hub.Register(sub)
	hub.Register(other)

	hub.Broadcast(mustEvent(t, map[string]interface{}{"priority_current": nil}))

	select {
	case msg := <-sub.Send:
		var got map[string]interface{}
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if _, ok := got["priority_current"]; !ok {
			t.Errorf("expected raw snapshot payload, got %s", msg)
		}
		if _, ok := got["topic"]; ok {
			t.Error("envelope should not reach the browser")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-other.Send:
		t.Fatal("client on another topic received the event")
	default:
	}
}

func TestHub_BroadcastSkipsFullBuffer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "slow", Topic: testTopic, Send: make(chan []byte, 1)}
	hub.Register(client)

	hub.Broadcast(mustEvent(t, 1))
	hub.Broadcast(mustEvent(t, 2))

	if len(client.Send) != 1 {
		t.Fatalf("expected 1 buffered message, got %d", len(client.Send))
	}
	if got := string(<-client.Send); got != "1" {
		t.Errorf("expected first payload kept, got %s", got)
	}
}

func TestHub_BroadcastEmptyData(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c")
	hub.Register(client)

	hub.Broadcast(Event{Topic: testTopic})
	if len(client.Send) != 0 {
		t.Error("expected nothing sent for an empty payload")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient("c")
			hub.Register(c)
			hub.Broadcast(Event{Topic: testTopic, Data: json.RawMessage(`{}`)})
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHub_PublishImplementsEventPublisher(t *testing.T) {
	var pub EventPublisher = NewHub(zerolog.Nop())
	if err := pub.Publish(context.Background(), mustEvent(t, "x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWebSocketHandler_MissingToken(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewWebSocketHandler(hub, HandlerConfig{
		Topic:        testTopic,
		Authenticate: func(string) (string, error) { return "u1", nil },
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws/queue/registration", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleConnect(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestWebSocketHandler_InvalidToken(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewWebSocketHandler(hub, HandlerConfig{
		Topic:        testTopic,
		Authenticate: func(string) (string, error) { return "", errors.New("expired") },
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws/queue/registration?token=abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleConnect(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestWebSocketHandler_RequiresUpgrade(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewWebSocketHandler(hub, HandlerConfig{Topic: testTopic})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws/queue/registration", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleConnect(c); err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for a plain request")
	}
	if hub.ClientCount() != 0 {
		t.Error("client should not be registered")
	}
}

func TestWebSocketHandler_InitialFrameAndBroadcast(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub(zerolog.Nop())
	tokens := make(chan string, 1)
	h := NewWebSocketHandler(hub, HandlerConfig{
		Topic: testTopic,
		Authenticate: func(token string) (string, error) {
			tokens <- token
			return "user-1", nil
		},
		Initial: func(ctx context.Context) (interface{}, error) {
			return map[string]string{"frame": "initial"}, nil
		},
	})

	e := echo.New()
	e.GET("/ws/queue/registration", h.HandleConnect)
	server := httptest.NewServer(e)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/queue/registration?token=tok"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, first, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if string(first) != `{"frame":"initial"}` {
		t.Errorf("unexpected initial frame %s", first)
	}
	if got := <-tokens; got != "tok" {
		t.Errorf("expected token from query, got %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(testTopic) != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.Broadcast(mustEvent(t, map[string]int{"queue_number": 7}))

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if string(msg) != `{"queue_number":7}` {
		t.Errorf("unexpected broadcast %s", msg)
	}

	conn.Close()
	h.Wait()
	server.Close()

	if hub.ClientCount() != 0 {
		t.Errorf("expected client removed after close, got %d", hub.ClientCount())
	}
}

func TestRedisBridge_HandleMessage(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c")
	hub.Register(client)
	b := NewRedisBridge(nil, "clinic:events", hub, zerolog.Nop())

	own := mustEvent(t, "own")
	own.Origin = b.origin
	data, _ := json.Marshal(own)
	b.handleMessage(string(data))
	if len(client.Send) != 0 {
		t.Fatal("events from this instance must not be re-broadcast")
	}

	remote := mustEvent(t, "remote")
	remote.Origin = "another-instance"
	data, _ = json.Marshal(remote)
	b.handleMessage(string(data))
	if got := string(<-client.Send); got != `"remote"` {
		t.Errorf("unexpected payload %s", got)
	}

	b.handleMessage("not json")
	if len(client.Send) != 0 {
		t.Error("malformed payload should be dropped")
	}
}

func TestRedisBridge_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	channel := "clinic:test:" + time.Now().Format("150405.000")
	receiverHub := NewHub(zerolog.Nop())
	client := newClient("c")
	receiverHub.Register(client)
	receiver := NewRedisBridge(rdb, channel, receiverHub, zerolog.Nop())
	sender := NewRedisBridge(rdb, channel, NewHub(zerolog.Nop()), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- receiver.Run(ctx) }()
	time.Sleep(200 * time.Millisecond)

	if err := sender.Publish(ctx, mustEvent(t, "hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-client.Send:
		if string(msg) != `"hello"` {
			t.Errorf("unexpected payload %s", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("event not fanned out")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("run returned %v", err)
	}
}
