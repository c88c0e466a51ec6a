package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/nocturnal-server/internal/core"
	"github.com/vovakirdan/nocturnal-server/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t, testConfig())

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestServerUpgradesLiveChannel(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("upgrade failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("unexpected upgrade status: %d", resp.StatusCode)
	}

	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{UserID: 7, Protocol: proto.ProtocolVersion})
	readUntil(t, ctx, conn, proto.EventJoined)

	// The REST routes keep working next to the upgraded connection.
	health, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("unexpected health status: %d", health.StatusCode)
	}
}

func TestWebSocketPrivateMessage(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := joinAs(t, ctx, env, 1)
	bob := joinAs(t, ctx, env, 2)

	send(t, ctx, alice, proto.InboundTypePrivateMessage, proto.PrivateMessageData{SenderID: 1, ReceiverID: 2, Content: "hi there"})

	got := readMessage(t, ctx, bob, proto.EventNewMessage)
	if got.SenderID != 1 || got.ReceiverID != 2 || got.Content == nil || *got.Content != "hi there" {
		t.Fatalf("unexpected new_message: %+v", got)
	}
	if got.Type != "text" || got.Status != "sent" || got.Edited || got.Deleted {
		t.Fatalf("unexpected message state: %+v", got)
	}

	ack := readMessage(t, ctx, alice, proto.EventMessageSent)
	if ack.ID != got.ID {
		t.Fatalf("ack id %d does not match delivered id %d", ack.ID, got.ID)
	}
}

func TestWebSocketDeliversToEverySession(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := joinAs(t, ctx, env, 1)
	bobPhone := joinAs(t, ctx, env, 2)
	bobLaptop := joinAs(t, ctx, env, 2)

	send(t, ctx, alice, proto.InboundTypePrivateMessage, proto.PrivateMessageData{ReceiverID: 2, Content: "both?"})

	first := readMessage(t, ctx, bobPhone, proto.EventNewMessage)
	second := readMessage(t, ctx, bobLaptop, proto.EventNewMessage)
	if first.ID != second.ID {
		t.Fatalf("sessions saw different messages: %d vs %d", first.ID, second.ID)
	}
}

func TestWebSocketEditAndDeleteForEveryone(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := joinAs(t, ctx, env, 1)
	bob := joinAs(t, ctx, env, 2)

	send(t, ctx, alice, proto.InboundTypePrivateMessage, proto.PrivateMessageData{ReceiverID: 2, Content: "typo"})
	id := readMessage(t, ctx, bob, proto.EventNewMessage).ID

	send(t, ctx, alice, proto.InboundTypeEditMessage, proto.EditMessageData{MessageID: id, SenderID: 1, NewContent: "fixed"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		edited := readMessage(t, ctx, conn, proto.EventMessageEdited)
		if !edited.Edited || edited.Content == nil || *edited.Content != "fixed" || edited.EditedAt == nil {
			t.Fatalf("unexpected message_edited: %+v", edited)
		}
	}

	send(t, ctx, alice, proto.InboundTypeDeleteForAll, proto.DeleteData{MessageID: id, SenderID: 1})
	for _, conn := range []*websocket.Conn{alice, bob} {
		out := readUntil(t, ctx, conn, proto.EventMessageDeleted)
		var raw map[string]any
		if err := json.Unmarshal(out.Data, &raw); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if content, present := raw["content"]; !present || content != nil {
			t.Fatalf("expected null content, got %v", raw["content"])
		}
		if raw["type"] != "deleted" || raw["deleted"] != true {
			t.Fatalf("unexpected tombstone: %v", raw)
		}
	}

	// Editing a tombstone fails for the originator only.
	send(t, ctx, alice, proto.InboundTypeEditMessage, proto.EditMessageData{MessageID: id, NewContent: "back"})
	out := readUntil(t, ctx, alice, "edit_error")
	if out.Type != proto.OutboundTypeError || out.Error == nil || out.Error.Code != core.ErrCodeAlreadyDeleted {
		t.Fatalf("expected already_deleted, got %+v", out)
	}
}

func TestWebSocketEditByNonOwner(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := joinAs(t, ctx, env, 1)
	bob := joinAs(t, ctx, env, 2)

	send(t, ctx, alice, proto.InboundTypePrivateMessage, proto.PrivateMessageData{ReceiverID: 2, Content: "mine"})
	id := readMessage(t, ctx, bob, proto.EventNewMessage).ID

	send(t, ctx, bob, proto.InboundTypeEditMessage, proto.EditMessageData{MessageID: id, NewContent: "forged"})
	out := readUntil(t, ctx, bob, "edit_error")
	if out.Error == nil || out.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", out)
	}

	stored, err := env.store.GetMessage(ctx, id)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if stored.Content != "mine" || stored.Edited {
		t.Fatalf("message was modified: %+v", stored)
	}
}

func TestWebSocketSendWithoutJoin(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, env.wsURL())
	send(t, ctx, conn, proto.InboundTypePrivateMessage, proto.PrivateMessageData{ReceiverID: 2, Content: "hi"})

	out := readUntil(t, ctx, conn, "message_error")
	if out.Error == nil || out.Error.Code != core.ErrCodeNotJoined {
		t.Fatalf("expected not_joined error, got %+v", out)
	}
}

func TestWebSocketSenderMismatch(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mallory := joinAs(t, ctx, env, 3)
	send(t, ctx, mallory, proto.InboundTypePrivateMessage, proto.PrivateMessageData{SenderID: 1, ReceiverID: 2, Content: "spoof"})

	out := readUntil(t, ctx, mallory, "message_error")
	if out.Error == nil || out.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", out)
	}
}

func TestWebSocketLegacyJoinUser(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, env.wsURL())
	send(t, ctx, conn, proto.InboundTypeJoinUser, 7)

	out := readUntil(t, ctx, conn, proto.EventJoined)
	var joined proto.EventJoinedData
	if err := json.Unmarshal(out.Data, &joined); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if joined.UserID != 7 || joined.Protocol != proto.ProtocolVersion {
		t.Fatalf("unexpected joined payload: %+v", joined)
	}
}

func TestWebSocketInvalidPayloadKeepsConnection(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := joinAs(t, ctx, env, 1)

	send(t, ctx, alice, proto.InboundTypePrivateMessage, map[string]any{"content": "nobody"})
	out := readUntil(t, ctx, alice, "message_error")
	if out.Error == nil || out.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", out)
	}

	send(t, ctx, alice, "shout", map[string]any{})
	// Unknown types have no operation, so the error carries no event name.
	unknown := readUntil(t, ctx, alice, "")
	if unknown.Error == nil || unknown.Error.Code != errCodeInvalidMessage {
		t.Fatalf("expected invalid_message, got %+v", unknown)
	}

	// Still usable afterwards.
	send(t, ctx, alice, proto.InboundTypePrivateMessage, proto.PrivateMessageData{ReceiverID: 2, Content: "ok"})
	readUntil(t, ctx, alice, proto.EventMessageSent)
}

func TestProtocolVersionMismatch(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := dial(t, ctx, env.wsURL())
	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{UserID: 1, Protocol: proto.ProtocolVersion + 1})

	out := readUntil(t, ctx, conn, "join_error")
	if out.Error == nil || out.Error.Code != errCodeUnsupportedVersion {
		t.Fatalf("expected unsupported_version error, got %+v", out)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	env := startTestServer(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := joinAs(t, ctx, env, 1) // join consumes one slot
	send(t, ctx, alice, proto.InboundTypePrivateMessage, proto.PrivateMessageData{ReceiverID: 2, Content: "one"})
	readUntil(t, ctx, alice, proto.EventMessageSent)

	send(t, ctx, alice, proto.InboundTypePrivateMessage, proto.PrivateMessageData{ReceiverID: 2, Content: "two"})
	out := readUntil(t, ctx, alice, "message_error")
	if out.Error == nil || out.Error.Code != errCodeRateLimited {
		t.Fatalf("expected rate_limited, got %+v", out)
	}
}

func TestWebSocketReceiptAndScheduledDelivery(t *testing.T) {
	env := startTestServer(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := joinAs(t, ctx, env, 1)
	bob := joinAs(t, ctx, env, 2)

	send(t, ctx, alice, proto.InboundTypeScheduleMessage, proto.ScheduleData{
		ReceiverID:  2,
		Content:     "from the past",
		ScheduledAt: time.Now().Add(-time.Second),
	})
	created := readUntil(t, ctx, alice, proto.EventScheduledCreated)
	var sv proto.ScheduledView
	if err := json.Unmarshal(created.Data, &sv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sv.Status != "pending" || sv.ReceiverID != 2 {
		t.Fatalf("unexpected scheduled view: %+v", sv)
	}

	if n, err := env.dispatcher.RunOnce(ctx, time.Now()); err != nil || n != 1 {
		t.Fatalf("run once: promoted=%d err=%v", n, err)
	}

	msg := readMessage(t, ctx, bob, proto.EventNewMessage)
	if msg.Content == nil || *msg.Content != "from the past" {
		t.Fatalf("unexpected promoted message: %+v", msg)
	}

	send(t, ctx, bob, proto.InboundTypeMarkStatus, proto.MarkStatusData{MessageID: msg.ID, Status: "delivered"})
	status := readMessage(t, ctx, alice, proto.EventMessageStatus)
	if status.ID != msg.ID || status.Status != "delivered" {
		t.Fatalf("unexpected status event: %+v", status)
	}

	send(t, ctx, bob, proto.InboundTypeMarkStatus, proto.MarkStatusData{MessageID: msg.ID, Status: "delivered"})
	out := readUntil(t, ctx, bob, "status_error")
	if out.Error == nil || out.Error.Code != core.ErrCodeInvalidTransition {
		t.Fatalf("expected invalid_transition, got %+v", out)
	}
}
