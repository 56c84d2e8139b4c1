package codec

// StringKeyCodec encodes keys as their raw UTF-8 bytes and hashes them
// with FNV-1a.
type StringKeyCodec struct{}

var _ KeyCodec[string] = StringKeyCodec{}

// Encode returns the key's UTF-8 bytes.
func (StringKeyCodec) Encode(key string) []byte {
	return []byte(key)
}

// Decode returns the bytes reinterpreted as a string. It never fails: any
// byte sequence is a legal (if not necessarily valid UTF-8) Go string.
func (StringKeyCodec) Decode(b []byte) (string, error) {
	return string(b), nil
}

// Equal compares keys byte-for-byte.
func (StringKeyCodec) Equal(a, b string) bool {
	return a == b
}

// Hash64 hashes the key's UTF-8 bytes with FNV-1a.
func (StringKeyCodec) Hash64(key string) uint64 {
	return fnv1a64([]byte(key))
}

// StringValueCodec stores values as their raw UTF-8 bytes.
type StringValueCodec struct{}

var _ ValueCodec[string] = StringValueCodec{}

// Serialise returns the value's UTF-8 bytes.
func (StringValueCodec) Serialise(value string) ([]byte, error) {
	return []byte(value), nil
}

// Deserialise returns the bytes reinterpreted as a string.
func (StringValueCodec) Deserialise(b []byte) (string, error) {
	return string(b), nil
}
