package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mlserve/ml"
	"mlserve/monitoring"
)

// The event stream must upgrade through the full middleware chain: the
// logging wrapper has to hand the raw connection over instead of swallowing
// the hijack.
func TestEventStreamUpgradesThroughMiddlewareChain(t *testing.T) {
	log := zap.NewNop()
	hub := monitoring.NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	artifact := &ml.Artifact{
		Model:     &fakeClassifier{label: 0, proba: []float64{1, 0, 0}},
		Meta:      irisMetadata(),
		ModelType: ml.ModelTypeRandomForest,
		LoadedAt:  time.Now().UTC(),
	}
	mux := http.NewServeMux()
	NewHandlers(artifact, log, nil, hub).Register(mux)

	chain := Chain(
		RecoveryMiddleware(log),
		LoggerMiddleware(log),
		SecurityHeadersMiddleware,
		CORSMiddleware([]string{"*"}),
		RequestSizeMiddleware(1<<20),
	)
	srv := httptest.NewServer(chain(mux))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("websocket dial failed (status %d): %v", status, err)
	}
	defer conn.Close()

	received := make(chan monitoring.PredictionEvent, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var event monitoring.PredictionEvent
		if json.Unmarshal(payload, &event) == nil {
			received <- event
		}
	}()

	// Registration goes through the hub's channel, so keep broadcasting
	// until the subscriber sees an event.
	for i := 0; i < 50; i++ {
		hub.Broadcast(monitoring.PredictionEvent{
			Type:           "prediction",
			PredictedClass: "setosa",
			Confidence:     0.9,
			BatchSize:      1,
			Timestamp:      time.Now().UTC(),
		})
		select {
		case event := <-received:
			if event.Type != "prediction" || event.PredictedClass != "setosa" {
				t.Fatalf("unexpected event: %+v", event)
			}
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatal("no event received over the websocket")
}
