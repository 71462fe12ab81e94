package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/session"
)

const (
	RoomServiceName = "roomsync.v1.RoomService"

	GetRoomStateProcedure = "/" + RoomServiceName + "/GetRoomState"
	GetRecordProcedure    = "/" + RoomServiceName + "/GetRecord"
)

type GetRoomStateRequest struct{}

type GetRoomStateResponse struct {
	View *session.View `json:"view"`
}

type GetRecordRequest struct {
	PeerID models.PeerID `json:"peer_id"`
}

type GetRecordResponse struct {
	Record models.PlayerRecord `json:"record"`
}

// jsonCodec lets Connect carry plain Go structs. It replaces the default protobuf JSON codec.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// QueryService implements the read-only room queries over Connect
type QueryService struct {
	room RoomSession
}

func NewQueryService(room RoomSession) *QueryService {
	return &QueryService{room: room}
}

func (s *QueryService) GetRoomState(
	ctx context.Context,
	req *connect.Request[GetRoomStateRequest],
) (*connect.Response[GetRoomStateResponse], error) {
	view := s.room.View()
	if view == nil {
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("room not ready"))
	}
	return connect.NewResponse(&GetRoomStateResponse{View: view}), nil
}

func (s *QueryService) GetRecord(
	ctx context.Context,
	req *connect.Request[GetRecordRequest],
) (*connect.Response[GetRecordResponse], error) {
	if req.Msg.PeerID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("peer_id is required"))
	}
	view := s.room.View()
	if view == nil {
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("room not ready"))
	}
	rec, ok := view.Record(req.Msg.PeerID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("no record for %s", req.Msg.PeerID))
	}
	return connect.NewResponse(&GetRecordResponse{Record: rec}), nil
}

// Handler returns the mount path and handler for the service
func (s *QueryService) Handler() (string, http.Handler) {
	opts := []connect.HandlerOption{connect.WithCodec(jsonCodec{})}

	mux := http.NewServeMux()
	mux.Handle(GetRoomStateProcedure, connect.NewUnaryHandler(GetRoomStateProcedure, s.GetRoomState, opts...))
	mux.Handle(GetRecordProcedure, connect.NewUnaryHandler(GetRecordProcedure, s.GetRecord, opts...))
	return "/" + RoomServiceName + "/", mux
}
