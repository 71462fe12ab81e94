package gateway

import (
	"net/http"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

// ProtocolSchema documents the WebSocket protocol: what clients send and what the gateway
// pushes back.
type ProtocolSchema struct {
	ClientCommand *jsonschema.Schema `json:"client_command"`
	RoomEvent     *jsonschema.Schema `json:"room_event"`
}

var (
	protocolOnce   sync.Once
	protocolSchema ProtocolSchema
)

func buildProtocolSchema() ProtocolSchema {
	reflector := jsonschema.Reflector{DoNotReference: true}

	command := reflector.ReflectFromType(reflect.TypeOf(ClientCommand{}))
	command.Title = "Client Command"
	command.Description = "Frame sent by a client over /ws/room. type selects the command."

	event := reflector.ReflectFromType(reflect.TypeOf(RoomEvent{}))
	event.Title = "Room Event"
	event.Description = "Frame pushed by the gateway: a room view, a command acknowledgement or an error."

	return ProtocolSchema{ClientCommand: command, RoomEvent: event}
}

// HandleGetSchema handles GET /api/room/schema
func (h *StateHandler) HandleGetSchema(w http.ResponseWriter, r *http.Request) {
	protocolOnce.Do(func() { protocolSchema = buildProtocolSchema() })
	writeJSON(w, http.StatusOK, protocolSchema)
}
