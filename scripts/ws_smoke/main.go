package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/nocturnal-server/internal/proto"
)

type envelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:5000/ws", "WebSocket address")
	from := flag.Int64("from", 1, "sender user id")
	to := flag.Int64("to", 2, "receiver user id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sender, err := connect(ctx, *addr, *from)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	defer sender.Close(websocket.StatusNormalClosure, "bye")

	receiver, err := connect(ctx, *addr, *to)
	if err != nil {
		return fmt.Errorf("receiver: %w", err)
	}
	defer receiver.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, sender, proto.InboundTypePrivateMessage, proto.PrivateMessageData{ReceiverID: *to, Content: *text}); err != nil {
		return err
	}

	delivered, err := await(ctx, receiver, proto.EventNewMessage)
	if err != nil {
		return err
	}
	var msg proto.MessageView
	if err := json.Unmarshal(delivered.Data, &msg); err != nil {
		return fmt.Errorf("unmarshal new_message: %w", err)
	}
	fmt.Printf("new_message: id=%d from=%d to=%d status=%s content=%q\n", msg.ID, msg.SenderID, msg.ReceiverID, msg.Status, *msg.Content)

	if _, err := await(ctx, sender, proto.EventMessageSent); err != nil {
		return err
	}
	fmt.Println("message_sent acknowledged")

	if err := send(ctx, receiver, proto.InboundTypeMarkStatus, proto.MarkStatusData{MessageID: msg.ID, Status: "delivered"}); err != nil {
		return err
	}
	if _, err := await(ctx, sender, proto.EventMessageStatus); err != nil {
		return err
	}
	fmt.Println("delivery receipt relayed")
	return nil
}

func connect(ctx context.Context, addr string, userID int64) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if err := send(ctx, conn, proto.InboundTypeJoin, proto.JoinData{UserID: userID, Protocol: proto.ProtocolVersion}); err != nil {
		conn.Close(websocket.StatusInternalError, "join failed")
		return nil, err
	}
	if _, err := await(ctx, conn, proto.EventJoined); err != nil {
		conn.Close(websocket.StatusInternalError, "join failed")
		return nil, err
	}
	return conn, nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

// await reads until the named event arrives; any error envelope aborts.
func await(ctx context.Context, conn *websocket.Conn, event string) (envelope, error) {
	for {
		var out envelope
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return out, fmt.Errorf("waiting for %s: %w", event, err)
		}
		if out.Error != nil {
			return out, fmt.Errorf("%s: %s (%s)", out.Event, out.Error.Msg, out.Error.Code)
		}
		if out.Event == event {
			return out, nil
		}
	}
}
