// Package ipc defines the line-delimited JSON protocol spoken over the daemon's Unix
// socket, shared by quicktilesd and tilectl.
//
// Protocol:
//   - Client sends: {"type": "event_name", "data": {...}}
//   - Server responds: {"status": "ok", ...} or {"status": "error", "error": "msg"}
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"

	"quicktiles/internal/tile"
)

// ============================================================================
// Event Types
// ============================================================================
// Events represent intent from the IPC socket and the input devices. The daemon
// loop is the only consumer; it applies them to the panel on the main context.
// ============================================================================

// Event is a marker interface for all daemon events.
type Event interface {
	eventMarker()
}

// Tap is a short press on a tile.
type Tap struct {
	Tile string `json:"tile"`
}

func (Tap) eventMarker() {}

// LongPress is a long press on a tile.
type LongPress struct {
	Tile string `json:"tile"`
}

func (LongPress) eventMarker() {}

// SetListening reports a tile becoming visible (listening) or hidden.
type SetListening struct {
	Tile      string `json:"tile"`
	Listening bool   `json:"listening"`
}

func (SetListening) eventMarker() {}

// AddTile adds a tile to the end of the panel.
type AddTile struct {
	Tile string `json:"tile"`
}

func (AddTile) eventMarker() {}

// RemoveTile removes a tile from the panel.
type RemoveTile struct {
	Tile string `json:"tile"`
}

func (RemoveTile) eventMarker() {}

// GoingToSleep reports the device started going to sleep.
type GoingToSleep struct{}

func (GoingToSleep) eventMarker() {}

// SwitchUser makes another user current.
type SwitchUser struct {
	User int `json:"user"`
}

func (SwitchUser) eventMarker() {}

// DisplayInitialized reports the display subsystem finished initializing.
type DisplayInitialized struct{}

func (DisplayInitialized) eventMarker() {}

// GetState requests a snapshot of every tile view.
type GetState struct{}

func (GetState) eventMarker() {}

// ============================================================================
// Responses
// ============================================================================

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Response is sent back for every request line.
type Response struct {
	Status string          `json:"status"`          // "ok" or "error"
	Error  string          `json:"error,omitempty"` // error message if status == "error"
	Tiles  []tile.View     `json:"tiles,omitempty"` // get_state only
	Flags  map[string]bool `json:"flags,omitempty"` // get_state only
	User   *int            `json:"user,omitempty"`  // get_state only
}

// OK returns a success response.
func OK() Response { return Response{Status: StatusOK} }

// Failure returns an error response for err.
func Failure(err error) Response {
	return Response{Status: StatusError, Error: err.Error()}
}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// ErrUnknownEvent is returned when an envelope names no known event type.
var ErrUnknownEvent = errors.New("unknown event type")

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "tap":
		var e Tap
		if err := unmarshalTile(env.Data, &e, &e.Tile); err != nil {
			return nil, fmt.Errorf("unmarshal Tap: %w", err)
		}
		return e, nil

	case "long_press":
		var e LongPress
		if err := unmarshalTile(env.Data, &e, &e.Tile); err != nil {
			return nil, fmt.Errorf("unmarshal LongPress: %w", err)
		}
		return e, nil

	case "set_listening":
		var e SetListening
		if err := unmarshalTile(env.Data, &e, &e.Tile); err != nil {
			return nil, fmt.Errorf("unmarshal SetListening: %w", err)
		}
		return e, nil

	case "add_tile":
		var e AddTile
		if err := unmarshalTile(env.Data, &e, &e.Tile); err != nil {
			return nil, fmt.Errorf("unmarshal AddTile: %w", err)
		}
		return e, nil

	case "remove_tile":
		var e RemoveTile
		if err := unmarshalTile(env.Data, &e, &e.Tile); err != nil {
			return nil, fmt.Errorf("unmarshal RemoveTile: %w", err)
		}
		return e, nil

	case "going_to_sleep":
		return GoingToSleep{}, nil

	case "switch_user":
		var e SwitchUser
		if len(env.Data) == 0 {
			return nil, errors.New("unmarshal SwitchUser: missing data")
		}
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SwitchUser: %w", err)
		}
		if e.User < 0 {
			return nil, fmt.Errorf("unmarshal SwitchUser: invalid user %d", e.User)
		}
		return e, nil

	case "display_initialized":
		return DisplayInitialized{}, nil

	case "get_state":
		return GetState{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// unmarshalTile decodes data into v and requires the tile field to be set.
func unmarshalTile(data json.RawMessage, v any, tileField *string) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	if *tileField == "" {
		return errors.New("tile must not be empty")
	}
	return nil
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e.(type) {
	case Tap:
		env.Type = "tap"
	case LongPress:
		env.Type = "long_press"
	case SetListening:
		env.Type = "set_listening"
	case AddTile:
		env.Type = "add_tile"
	case RemoveTile:
		env.Type = "remove_tile"
	case SwitchUser:
		env.Type = "switch_user"

	case GoingToSleep:
		env.Type = "going_to_sleep"
		return json.Marshal(env)
	case DisplayInitialized:
		env.Type = "display_initialized"
		return json.Marshal(env)
	case GetState:
		env.Type = "get_state"
		return json.Marshal(env)

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	env.Data = data
	return json.Marshal(env)
}
