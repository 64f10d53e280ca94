package infra

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
)

// KVPair is a raw entry returned by prefix listings.
type KVPair struct {
	Key   string
	Value []byte
}

// KVStore backs every durable jackpot document: bias configs, winner
// histories, the payout outbox and (optionally) the activity log.
type KVStore interface {
	GetName() string
	Set(k string, v string) error
	Get(k string) (v string, err error)
	// SetAny / GetAny encode v with the store codec
	SetAny(k string, v any) error
	GetAny(k string, v any) (found bool, err error)
	// SetAnyBatch writes every entry or none of them
	SetAnyBatch(entries map[string]any) error

	List(prefix string) ([]*KVPair, error)
	Delete(k string) error
	Close() error
}

// Codec encodes/decodes Go values to/from slices of bytes.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	JSON = JSONcodec{}
	Gob  = GobCodec{}
)

type JSONcodec struct{}

func (c JSONcodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c JSONcodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

type GobCodec struct{}

func (c GobCodec) Marshal(v any) ([]byte, error) {
	buffer := new(bytes.Buffer)
	if err := gob.NewEncoder(buffer).Encode(v); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (c GobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
