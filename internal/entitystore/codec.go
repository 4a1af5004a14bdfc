package entitystore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts records to and from bytes.
type Codec interface {
	Marshal(Record) ([]byte, error)
	Unmarshal([]byte) (Record, error)
	Name() string
}

// JSONCodec encodes records as canonical JSON.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(r Record) ([]byte, error) {
	data, err := MarshalCanonical(r.canonicalMap())
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.Reference, err)
	}
	return data, nil
}

func (JSONCodec) Unmarshal(data []byte) (Record, error) {
	var r Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		return Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	for name, v := range r.Properties {
		n, err := normalizeJSONNumbers(v)
		if err != nil {
			return Record{}, fmt.Errorf("unmarshal record %s property %q: %w", r.Reference, name, err)
		}
		r.Properties[name] = n
	}
	return r, nil
}

// MsgpackCodec encodes records as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Marshal(r Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.Reference, err)
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Unmarshal(data []byte) (Record, error) {
	var r Record
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	// Loose decoding yields int64/uint64/float64 instead of sized integers.
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&r); err != nil {
		return Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, nil
}
