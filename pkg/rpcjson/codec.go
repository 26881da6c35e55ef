// Package rpcjson is a connect codec for plain Go structs. It registers under
// the "json" name so clients speaking the Connect protocol with
// application/json bodies work unchanged.
package rpcjson

import (
	"encoding/json"

	"connectrpc.com/connect"
)

const Name = "json"

type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string { return Name }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// WithCodec is shorthand for connect.WithCodec(Codec{}).
func WithCodec() connect.Option {
	return connect.WithCodec(Codec{})
}
