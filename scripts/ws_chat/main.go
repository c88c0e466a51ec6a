package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/nocturnal-server/internal/proto"
)

// envelope is the client-side view of proto.Outbound.
type envelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:5000/ws", "WebSocket address")
	user := flag.Int64("user", 0, "own user id")
	to := flag.Int64("to", 0, "peer user id")
	token := flag.String("token", "", "access token (when the server requires one)")
	flag.Parse()

	if *to <= 0 || (*user <= 0 && *token == "") {
		return errors.New("-to and one of -user or -token are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeJoin, proto.JoinData{UserID: *user, Token: *token, Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s, chatting with %d\n", *addr, *to)
	fmt.Println("Type a message and press Enter. Commands: /edit <id> <text>, /delete <id>, /seen <id>. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *to)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
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

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out envelope
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if out.Error != nil {
			fmt.Printf("! %s: %s (%s)\n", out.Event, out.Error.Msg, out.Error.Code)
			continue
		}

		switch out.Event {
		case proto.EventJoined:
			var evt proto.EventJoinedData
			if err := json.Unmarshal(out.Data, &evt); err == nil {
				fmt.Printf("joined as %d\n", evt.UserID)
			}
		case proto.EventNewMessage, proto.EventMessageSent, proto.EventMessageEdited,
			proto.EventMessageDeleted, proto.EventMessageStatus:
			var msg proto.MessageView
			if err := json.Unmarshal(out.Data, &msg); err != nil {
				log.Printf("unmarshal %s: %v", out.Event, err)
				continue
			}
			fmt.Println(formatMessage(out.Event, msg))
			if out.Event == proto.EventNewMessage {
				receipt := proto.MarkStatusData{MessageID: msg.ID, Status: "delivered"}
				if err := send(ctx, conn, proto.InboundTypeMarkStatus, receipt); err != nil {
					log.Printf("receipt: %v", err)
				}
			}
		default:
			fmt.Printf("event=%s data=%s\n", out.Event, string(out.Data))
		}
	}
}

func formatMessage(event string, msg proto.MessageView) string {
	content := "<deleted>"
	if msg.Content != nil {
		content = *msg.Content
	}
	if msg.Edited {
		content += " (edited)"
	}
	return fmt.Sprintf("[%s #%d %s] %d: %s", event, msg.ID, msg.Status, msg.SenderID, content)
}

func writeLoop(ctx context.Context, conn *websocket.Conn, to int64) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			typ, data, err := parseLine(text, to)
			if err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			if err := send(ctx, conn, typ, data); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

// parseLine turns an input line into an inbound message.
func parseLine(text string, to int64) (string, any, error) {
	if !strings.HasPrefix(text, "/") {
		return proto.InboundTypePrivateMessage, proto.PrivateMessageData{ReceiverID: to, Content: text}, nil
	}

	fields := strings.SplitN(text, " ", 3)
	if len(fields) < 2 {
		return "", nil, fmt.Errorf("usage: %s <id>", fields[0])
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", nil, fmt.Errorf("invalid message id %q", fields[1])
	}

	switch fields[0] {
	case "/edit":
		if len(fields) < 3 {
			return "", nil, errors.New("usage: /edit <id> <text>")
		}
		return proto.InboundTypeEditMessage, proto.EditMessageData{MessageID: id, NewContent: fields[2]}, nil
	case "/delete":
		return proto.InboundTypeDeleteForAll, proto.DeleteData{MessageID: id}, nil
	case "/seen":
		return proto.InboundTypeMarkStatus, proto.MarkStatusData{MessageID: id, Status: "seen"}, nil
	default:
		return "", nil, fmt.Errorf("unknown command %s", fields[0])
	}
}
