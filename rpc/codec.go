package rpc

import (
	"encoding/json"

	"github.com/juju/errors"
)

// jsonCodec is the wire codec for every call. Both sides exchange the
// message structs under model/pkg as JSON, so no generated stubs are
// needed and mock servers can speak the protocol directly.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return "json"
}
