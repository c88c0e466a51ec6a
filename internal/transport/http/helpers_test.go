package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/nocturnal-server/internal/auth"
	"github.com/vovakirdan/nocturnal-server/internal/config"
	"github.com/vovakirdan/nocturnal-server/internal/core"
	"github.com/vovakirdan/nocturnal-server/internal/proto"
	"github.com/vovakirdan/nocturnal-server/internal/service/scheduled"
	"github.com/vovakirdan/nocturnal-server/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	ts         *httptest.Server
	store      *sqlite.SQLiteStore
	auth       *auth.Service
	engine     *core.Engine
	dispatcher *scheduled.Dispatcher
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	cfg.JWTSecret = testSecret
	cfg.RateLimitPerMinute = 0
	return cfg
}

// startTestServer wires the full stack over an in-memory ledger.
func startTestServer(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	disabledLogger := zerolog.Nop()

	fanout := core.NewFanout(core.NewRegistry(), &disabledLogger)
	engine := core.NewEngine(st, fanout, nil, &disabledLogger)
	scheduler := scheduled.New(st, fanout, &disabledLogger)
	hub := core.NewHub(engine, scheduler, &disabledLogger)
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, engine, scheduler, authService, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:         ts,
		store:      st,
		auth:       authService,
		engine:     engine,
		dispatcher: scheduled.NewDispatcher(st, engine, time.Minute, 10, &disabledLogger),
	}
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// inbound is the client-side view of an outbound envelope.
type inbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readUntil reads envelopes until one with the given event name arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) inbound {
	t.Helper()

	for {
		var out inbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if out.Event == event {
			return out
		}
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) proto.MessageView {
	t.Helper()

	out := readUntil(t, ctx, conn, event)
	var view proto.MessageView
	if err := json.Unmarshal(out.Data, &view); err != nil {
		t.Fatalf("unmarshal %s: %v", event, err)
	}
	return view
}

// joinAs dials and binds the connection to userID.
func joinAs(t *testing.T, ctx context.Context, env *testEnv, userID int64) *websocket.Conn {
	t.Helper()

	conn := dial(t, ctx, env.wsURL())
	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{UserID: userID})
	readUntil(t, ctx, conn, proto.EventJoined)
	return conn
}
