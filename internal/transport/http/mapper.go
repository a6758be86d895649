package http

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/proto"
)

func decodeData(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: data is required", core.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidPayload, err)
	}
	return nil
}

func inboundToCommand(inbound proto.Inbound) (core.Command, error) {
	switch inbound.Type {
	case proto.InboundTypeJoinRoom, proto.InboundTypeLeaveRoom:
		var data proto.RoomData
		if err := decodeData(inbound.Data, &data); err != nil {
			return core.Command{}, err
		}
		kind := core.CommandJoinRoom
		if inbound.Type == proto.InboundTypeLeaveRoom {
			kind = core.CommandLeaveRoom
		}
		return core.Command{Kind: kind, Room: data.RoomKey}, nil

	case proto.InboundTypeSendMessage:
		var data proto.SendData
		if err := decodeData(inbound.Data, &data); err != nil {
			return core.Command{}, err
		}
		cmd := core.Command{Kind: core.CommandSendMessage, Room: data.RoomKey}
		if data.Message != nil {
			msg := data.Message.ToCore()
			cmd.Message = &msg
		}
		return cmd, nil

	default:
		return core.Command{}, fmt.Errorf("%w: %q", core.ErrUnknownCommand, inbound.Type)
	}
}

func outboundFromEvent(event *core.Event) (proto.Outbound, error) {
	switch event.Kind {
	case core.EventNewMessage:
		return proto.NewOutbound(proto.OutboundTypeNewMessage, proto.FromCore(event.Message))
	case core.EventRoomJoined:
		return proto.NewOutbound(proto.OutboundTypeRoomJoined, proto.RoomData{RoomKey: event.Room})
	case core.EventRoomLeft:
		return proto.NewOutbound(proto.OutboundTypeRoomLeft, proto.RoomData{RoomKey: event.Room})
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}, nil
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}, nil
	default:
		return proto.Outbound{}, fmt.Errorf("unknown event kind %d", event.Kind)
	}
}
