package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/roomsync/go/internal/models"
)

// ErrUnknownKind is returned when decoding an envelope whose kind is not part of the protocol.
var ErrUnknownKind = errors.New("unknown message kind")

// Envelope is the wire form of a message.
type Envelope struct {
	From    models.PeerID   `json:"from"`
	Target  Target          `json:"target"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps msg into a JSON envelope.
func Encode(from models.PeerID, target Target, msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.Kind(), err)
	}
	return json.Marshal(Envelope{
		From:    from,
		Target:  target,
		Kind:    msg.Kind(),
		Payload: payload,
	})
}

// DecodeEnvelope parses the envelope without touching the payload.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode envelope: empty input")
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Decode parses the envelope payload into its message variant.
func (e Envelope) Decode() (Message, error) {
	switch e.Kind {
	case KindAddRecord:
		return decodePayload[AddRecord](e)
	case KindSetHealth:
		return decodePayload[SetHealth](e)
	case KindSetScore:
		return decodePayload[SetScore](e)
	case KindDie:
		return decodePayload[Die](e)
	case KindStartGame:
		return decodePayload[StartGame](e)
	case KindEndGame:
		return decodePayload[EndGame](e)
	case KindClockSync:
		return decodePayload[ClockSync](e)
	case KindSnapshot:
		return decodePayload[Snapshot](e)
	case KindSpawn:
		return decodePayload[Spawn](e)
	case KindDespawn:
		return decodePayload[Despawn](e)
	case KindJump:
		return decodePayload[Jump](e)
	case KindShoot:
		return decodePayload[Shoot](e)
	case KindChangeWeapon:
		return decodePayload[ChangeWeapon](e)
	case KindDropItem:
		return decodePayload[DropItem](e)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
}

func decodePayload[T Message](e Envelope) (Message, error) {
	var out T
	if len(e.Payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return out, nil
}
