package group

import (
	"encoding/binary"
	"fmt"
)

const frameHeader = 8

// frame is the message exchanged by the gRPC transport in both directions.
type frame struct {
	Rank    uint32
	Round   uint32
	Payload []byte
}

// frameCodec encodes frames as two big-endian uint32 fields followed by the
// raw payload. It replaces protobuf so the service needs no generated code.
type frameCodec struct{}

func (frameCodec) Name() string { return "ising-frame" }

func (frameCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, fmt.Errorf("group: cannot marshal %T", v)
	}
	out := make([]byte, frameHeader+len(f.Payload))
	binary.BigEndian.PutUint32(out[0:4], f.Rank)
	binary.BigEndian.PutUint32(out[4:8], f.Round)
	copy(out[frameHeader:], f.Payload)
	return out, nil
}

func (frameCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*frame)
	if !ok {
		return fmt.Errorf("group: cannot unmarshal into %T", v)
	}
	if len(data) < frameHeader {
		return fmt.Errorf("group: short frame of %d bytes", len(data))
	}
	f.Rank = binary.BigEndian.Uint32(data[0:4])
	f.Round = binary.BigEndian.Uint32(data[4:8])
	f.Payload = append(f.Payload[:0], data[frameHeader:]...)
	return nil
}
