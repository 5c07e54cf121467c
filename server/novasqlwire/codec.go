package novasqlwire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec serialises control frames (requests and response headers). Row and
// descriptor payloads are binary and never pass through a Codec.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type JSONCodec struct{}

func (JSONCodec) Name() string                       { return "json" }
func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// encMode uses Core Deterministic Encoding so equal headers produce
// identical bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("novasqlwire: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("novasqlwire: CBOR decoder initialization failed: " + err.Error())
	}
}

type CBORCodec struct{}

func (CBORCodec) Name() string                       { return "cbor" }
func (CBORCodec) Marshal(v any) ([]byte, error)      { return encMode.Marshal(v) }
func (CBORCodec) Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// CodecByName returns the codec for "json" or "cbor".
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	}
	return nil, fmt.Errorf("novasqlwire: unknown frame codec %q", name)
}
