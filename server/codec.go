package server

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CodecName is the Connect codec name; requests travel as application/cbor.
const CodecName = "cbor"

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// cborCodec carries the exec service messages over Connect.
type cborCodec struct{}

func (cborCodec) Name() string { return CodecName }

func (cborCodec) Marshal(msg any) ([]byte, error) {
	return cborEncMode.Marshal(msg)
}

func (cborCodec) Unmarshal(data []byte, msg any) error {
	if err := cbor.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("server: unmarshal %T: %w", msg, err)
	}
	return nil
}
