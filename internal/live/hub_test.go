package live

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erazemk/tracky/internal/model"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubStreamsUpdates(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "t1")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.Subscribers("t1") == 1 })

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hub.Publish("t2", model.LocationPoint{Timestamp: ts, Longitude: 1, Latitude: 1})
	hub.Publish("t1", model.LocationPoint{Timestamp: ts, Longitude: 14.5, Latitude: 46.05})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var got Update
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decoding update: %v", err)
	}
	if got.TrackerID != "t1" || got.Longitude != 14.5 || !got.Timestamp.Equal(ts) {
		t.Errorf("unexpected update %+v", got)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.Subscribers("t1") == 0 })
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	slow := &client{trackerID: "t1", send: make(chan []byte)}
	hub.add(slow)

	hub.Publish("t1", model.LocationPoint{Timestamp: time.Now()})

	if n := hub.Subscribers("t1"); n != 0 {
		t.Errorf("expected slow client dropped, got %d subscribers", n)
	}
	if _, ok := <-slow.send; ok {
		t.Error("expected send channel closed")
	}
	hub.remove(slow)
}
