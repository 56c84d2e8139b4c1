package codec

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/calvinalkan/logkv/internal/kverrors"
)

// DefaultKeyCodec returns the built-in key codec for K, when one exists:
// string, []byte, [uuid.UUID], or int64. Any other key type needs a
// caller-supplied codec and fails with [kverrors.ErrUnsupported].
func DefaultKeyCodec[K any]() (KeyCodec[K], error) {
	var zero K

	switch any(zero).(type) {
	case string:
		return any(StringKeyCodec{}).(KeyCodec[K]), nil
	case []byte:
		return any(BytesKeyCodec{}).(KeyCodec[K]), nil
	case uuid.UUID:
		return any(GUIDKeyCodec{}).(KeyCodec[K]), nil
	case int64:
		return any(Int64KeyCodec{}).(KeyCodec[K]), nil
	default:
		return nil, fmt.Errorf("codec: no default key codec for %T: %w", zero, kverrors.ErrUnsupported)
	}
}

// DefaultValueCodec returns the built-in value codec for V, when one
// exists: string or []byte. Structured value types should use
// [JSONValueCodec] or a caller-supplied serialiser; they have no default
// because the engine cannot know how the caller wants them laid out.
func DefaultValueCodec[V any]() (ValueCodec[V], error) {
	var zero V

	switch any(zero).(type) {
	case string:
		return any(StringValueCodec{}).(ValueCodec[V]), nil
	case []byte:
		return any(BytesValueCodec{}).(ValueCodec[V]), nil
	default:
		return nil, fmt.Errorf("codec: no default value codec for %T: %w", zero, kverrors.ErrUnsupported)
	}
}
