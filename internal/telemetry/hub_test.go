package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHubHistoryIsBoundedAndOrdered(t *testing.T) {
	hub := NewHub(3)
	for i := 0; i < 5; i++ {
		hub.Report(Sample{Timestamp: time.Now(), RunID: "r1", Gain: i})
	}
	hist := hub.History()
	if len(hist) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(hist))
	}
	if hist[len(hist)-1].Gain != 4 {
		t.Fatalf("expected most recent gain 4, got %d", hist[len(hist)-1].Gain)
	}
}

func TestHubSubscribeReceivesLiveSamples(t *testing.T) {
	hub := NewHub(10)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Report(Sample{RunID: "r1", Gain: 7})

	select {
	case s := <-ch:
		if s.Gain != 7 {
			t.Fatalf("expected gain 7, got %d", s.Gain)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber sample")
	}
}

func TestHandleHistoryReturnsJSON(t *testing.T) {
	hub := NewHub(10)
	hub.Report(Sample{RunID: "r1", Gain: 3})

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rr := httptest.NewRecorder()
	hub.handleHistory(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var samples []Sample
	if err := json.NewDecoder(rr.Body).Decode(&samples); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(samples) != 1 || samples[0].Gain != 3 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}
