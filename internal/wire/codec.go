package wire

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// Subprotocol names negotiated during the WebSocket handshake.
const (
	SubprotocolJSON = "lembas.json.v1"
	SubprotocolCBOR = "lembas.cbor.v1"
)

// Codec encodes frames for one WebSocket subprotocol.
type Codec interface {
	// Subprotocol is the negotiated protocol name.
	Subprotocol() string
	// MessageType is the WebSocket message type frames are sent as.
	MessageType() int
	Encode(f Frame) ([]byte, error)
	Decode(data []byte) (Frame, error)
}

// JSON is the default codec: one JSON object per text message.
var JSON Codec = jsonCodec{}

// CBOR sends frames as deterministic CBOR binary messages.
var CBOR Codec = newCBORCodec()

// Subprotocols lists supported subprotocols in server preference order.
func Subprotocols() []string {
	return []string{SubprotocolCBOR, SubprotocolJSON}
}

// ForSubprotocol returns the codec for a negotiated subprotocol.
// An empty or unknown name falls back to JSON.
func ForSubprotocol(name string) Codec {
	if name == SubprotocolCBOR {
		return CBOR
	}
	return JSON
}

// Negotiate picks the first server-preferred subprotocol the client offered.
func Negotiate(offered []string) Codec {
	for _, p := range Subprotocols() {
		if slices.Contains(offered, p) {
			return ForSubprotocol(p)
		}
	}
	return JSON
}

type jsonCodec struct{}

func (jsonCodec) Subprotocol() string { return SubprotocolJSON }
func (jsonCodec) MessageType() int    { return websocket.TextMessage }

func (jsonCodec) Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode json frame: %w", err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode json frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("decode json frame: missing event")
	}
	return f, nil
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}
	// Generic payloads must decode as map[string]any so the normalizer and
	// encoding/json can handle them.
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Subprotocol() string { return SubprotocolCBOR }
func (cborCodec) MessageType() int    { return websocket.BinaryMessage }

func (c cborCodec) Encode(f Frame) ([]byte, error) {
	data, err := c.enc.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode cbor frame: %w", err)
	}
	return data, nil
}

func (c cborCodec) Decode(data []byte) (Frame, error) {
	var f Frame
	if err := c.dec.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode cbor frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("decode cbor frame: missing event")
	}
	return f, nil
}
