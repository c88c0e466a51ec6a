package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/nocturnal-server/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustNoEvent fails if any event is queued for the client within a short window.
func mustNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestEngine(t *testing.T, policy StatusPolicy) (*Engine, *sqlite.SQLiteStore) {
	t.Helper()

	st := newTestStore(t)
	return NewEngine(st, NewFanout(NewRegistry(), nil), policy, nil), st
}

// connect registers a fresh client for userID directly in the registry.
func connect(e *Engine, id string, userID int64) *Client {
	c := NewClient(id, 0)
	e.fanout.Registry().Register(userID, c)
	return c
}

// nextEvent returns the next event on ch, whatever its kind.
func nextEvent(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()

	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// startHub runs a hub over an in-memory ledger until the test ends.
func startHub(t *testing.T, scheduler ScheduleService) (*Hub, *Engine) {
	t.Helper()

	return startHubWith(t, scheduler, nil)
}

func startHubWith(t *testing.T, scheduler ScheduleService, policy StatusPolicy) (*Hub, *Engine) {
	t.Helper()

	engine, _ := newTestEngine(t, policy)
	hub := NewHub(engine, scheduler, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return hub, engine
}

func newBenchStore() (*sqlite.SQLiteStore, error) {
	return sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
}
