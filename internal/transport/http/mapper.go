package http

import (
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/nocturnal-server/internal/core"
	"github.com/vovakirdan/nocturnal-server/internal/proto"
	"github.com/vovakirdan/nocturnal-server/internal/store"
)

const (
	errCodeInvalidMessage     = "invalid_message"
	errCodeUnsupportedVersion = "unsupported_version"
	errCodeRateLimited        = "rate_limited"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// session is the transport-side state of one live channel.
type session struct {
	client   *core.Client
	identity *identityResolver
	// pinned is the identity proven at upgrade time, if any.
	pinned int64
}

// errorEventFor names the error event for an inbound type.
func errorEventFor(inboundType string) string {
	switch inboundType {
	case proto.InboundTypeJoin, proto.InboundTypeJoinUser:
		return string(core.OpJoin) + "_error"
	case proto.InboundTypePrivateMessage:
		return string(core.OpMessage) + "_error"
	case proto.InboundTypeEditMessage:
		return string(core.OpEdit) + "_error"
	case proto.InboundTypeDeleteForAll:
		return string(core.OpDelete) + "_error"
	case proto.InboundTypeMarkStatus:
		return string(core.OpStatus) + "_error"
	case proto.InboundTypeScheduleMessage, proto.InboundTypeCancelScheduled:
		return string(core.OpSchedule) + "_error"
	default:
		return ""
	}
}

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

// decode unmarshals and validates an inbound payload.
func decode(data json.RawMessage, dst any) *proto.Error {
	if len(data) == 0 {
		return badRequest("data is required")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return badRequest("malformed data")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return badRequest("invalid field " + verrs[0].Field())
		}
		return badRequest("invalid data")
	}
	return nil
}

// decodeJoin accepts the join object or, for the legacy join_user type, a
// bare user id as number or string.
func decodeJoin(inbound proto.Inbound) (proto.JoinData, *proto.Error) {
	var join proto.JoinData
	if inbound.Type == proto.InboundTypeJoinUser {
		var id int64
		if err := json.Unmarshal(inbound.Data, &id); err == nil {
			return proto.JoinData{UserID: id}, nil
		}
		var s string
		if err := json.Unmarshal(inbound.Data, &s); err == nil {
			id, convErr := strconv.ParseInt(s, 10, 64)
			if convErr != nil {
				return join, badRequest("invalid user id")
			}
			return proto.JoinData{UserID: id}, nil
		}
	}
	if perr := decode(inbound.Data, &join); perr != nil {
		return join, perr
	}
	return join, nil
}

func (s *session) joinCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	join, perr := decodeJoin(inbound)
	if perr != nil {
		return nil, perr
	}
	if join.Protocol != 0 && join.Protocol != proto.ProtocolVersion {
		return nil, &proto.Error{Code: errCodeUnsupportedVersion, Msg: "unsupported protocol version"}
	}

	userID := join.UserID
	switch {
	case join.Token != "":
		id, err := s.identity.fromToken(join.Token)
		if err != nil {
			return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}
		}
		if userID != 0 && userID != id {
			return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "user id does not match token"}
		}
		userID = id
	case s.pinned != 0:
		if userID != 0 && userID != s.pinned {
			return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "user id does not match credentials"}
		}
		userID = s.pinned
	case s.identity.required:
		return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token is required"}
	}

	if userID <= 0 {
		return nil, badRequest("user id is required")
	}
	return &core.Command{Kind: core.CommandJoin, UserID: userID}, nil
}

// inboundToCommand maps a decoded envelope to a hub command. A protocol error
// is answered to the client and the connection stays open.
func (s *session) inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeJoinUser:
		return s.joinCommand(inbound)
	case proto.InboundTypePrivateMessage:
		var msg proto.PrivateMessageData
		if perr := decode(inbound.Data, &msg); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:        core.CommandSendMessage,
			UserID:      msg.SenderID,
			ReceiverID:  msg.ReceiverID,
			Content:     msg.Content,
			MessageKind: store.MessageKind(msg.Type),
			Timestamp:   msg.Timestamp,
		}, nil
	case proto.InboundTypeEditMessage:
		var edit proto.EditMessageData
		if perr := decode(inbound.Data, &edit); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:      core.CommandEditMessage,
			UserID:    edit.SenderID,
			MessageID: edit.MessageID,
			Content:   edit.NewContent,
		}, nil
	case proto.InboundTypeDeleteForAll:
		var del proto.DeleteData
		if perr := decode(inbound.Data, &del); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:      core.CommandDeleteMessage,
			UserID:    del.SenderID,
			MessageID: del.MessageID,
		}, nil
	case proto.InboundTypeMarkStatus:
		var mark proto.MarkStatusData
		if perr := decode(inbound.Data, &mark); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:      core.CommandMarkStatus,
			MessageID: mark.MessageID,
			Status:    store.MessageStatus(mark.Status),
		}, nil
	case proto.InboundTypeScheduleMessage:
		var sched proto.ScheduleData
		if perr := decode(inbound.Data, &sched); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:        core.CommandScheduleMessage,
			UserID:      sched.SenderID,
			ReceiverID:  sched.ReceiverID,
			Content:     sched.Content,
			MessageKind: store.MessageKind(sched.Type),
			ScheduledAt: sched.ScheduledAt,
		}, nil
	case proto.InboundTypeCancelScheduled:
		var cancel proto.CancelScheduledData
		if perr := decode(inbound.Data, &cancel); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:        core.CommandCancelScheduled,
			UserID:      cancel.SenderID,
			ScheduledID: cancel.ScheduledID,
		}, nil
	default:
		return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func errorOutbound(event string, perr *proto.Error) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeError, Event: event, Error: perr}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventJoined:
		return eventOutbound(proto.EventJoined, proto.EventJoinedData{UserID: event.UserID, Protocol: proto.ProtocolVersion})
	case core.EventMessageCreated:
		return eventOutbound(proto.EventNewMessage, proto.NewMessageView(event.Message))
	case core.EventMessageSent:
		return eventOutbound(proto.EventMessageSent, proto.NewMessageView(event.Message))
	case core.EventMessageEdited:
		return eventOutbound(proto.EventMessageEdited, proto.NewMessageView(event.Message))
	case core.EventMessageDeleted:
		return eventOutbound(proto.EventMessageDeleted, proto.NewMessageView(event.Message))
	case core.EventMessageStatus:
		return eventOutbound(proto.EventMessageStatus, proto.NewMessageView(event.Message))
	case core.EventScheduledCreated:
		return eventOutbound(proto.EventScheduledCreated, proto.NewScheduledView(event.Scheduled))
	case core.EventScheduledCancelled:
		return eventOutbound(proto.EventScheduledCancelled, proto.NewScheduledView(event.Scheduled))
	case core.EventError:
		if event.Error == nil {
			return errorOutbound("", &proto.Error{Code: "unknown", Msg: "unknown error"})
		}
		return errorOutbound(string(event.Op)+"_error", &proto.Error{Code: event.Error.Code, Msg: event.Error.Message})
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}
