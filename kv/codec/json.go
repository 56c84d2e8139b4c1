package codec

import "encoding/json"

// JSONValueCodec serialises values of any type as JSON, for callers storing
// arbitrary typed values rather than raw strings or bytes.
type JSONValueCodec[V any] struct{}

var _ ValueCodec[any] = JSONValueCodec[any]{}

// Serialise marshals value to JSON.
func (JSONValueCodec[V]) Serialise(value V) ([]byte, error) {
	return json.Marshal(value)
}

// Deserialise unmarshals b into a value of type V.
func (JSONValueCodec[V]) Deserialise(b []byte) (V, error) {
	var value V
	err := json.Unmarshal(b, &value)

	return value, err
}
