package wsobserver

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clocksync/clocksync/pkg/monitor"
)

func TestHubPushesSampleEventsToClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(zap.NewNop())

	r := gin.New()
	r.GET("/ws", hub.ServeWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	hub.Notify(monitor.Event{Kind: monitor.EventSample, Sample: monitor.Record{Offset: 0.01, Delay: 0.002}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a pushed event, got error: %v", err)
	}
	if !strings.Contains(string(msg), "Offset") {
		t.Errorf("expected pushed message to contain the sample offset, got %s", msg)
	}
}

func TestHubDoesNotBlockOnUnreadClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.register(&client{send: make(chan []byte, sendBufferSize)})
	for i := 0; i < sendBufferSize+5; i++ {
		hub.Notify(monitor.Event{Kind: monitor.EventError, ErrorKind: "test"})
	}
}
