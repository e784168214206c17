package diag

import (
	"encoding/json"
	"testing"
	"time"

	"pump-monitor/pkg/types"
)

func TestHubBroadcastEpisodeReachesRegisteredClient(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond) // let Run() process the register

	hub.BroadcastEpisode(types.EpisodeRecord{Symbol: "BTCUSDT"})

	select {
	case data := <-client.send:
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("invalid broadcast payload: %v", err)
		}
		if evt.Type != "episode" || evt.Episode == nil || evt.Episode.Symbol != "BTCUSDT" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the broadcast to reach the registered client")
	}
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatal("expected send channel to be closed after unregister")
		}
	default:
		t.Fatal("expected send channel to be closed (readable zero-value), not still open and empty")
	}
}

func TestBroadcastSinkForwardsToHub(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	s := NewBroadcastSink(hub)
	s.Emit(types.EpisodeRecord{Symbol: "ETHUSDT"})

	select {
	case <-client.send:
	case <-time.After(time.Second):
		t.Fatal("expected BroadcastSink.Emit to reach the hub's clients")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("expected Close to be a no-op, got %v", err)
	}
}
