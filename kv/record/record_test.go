package record_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/logkv/kv/record"
)

func TestAppend_Decode_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []record.Record{
		{Op: record.OpPut, Key: []byte("alpha"), Value: []byte("one")},
		{Op: record.OpPut, Key: nil, Value: []byte("value-for-empty-key")},
		{Op: record.OpPut, Key: []byte("empty-value"), Value: []byte{}},
		{Op: record.OpDel, Key: []byte("beta")},
	}

	for _, rec := range cases {
		buf := record.Append(nil, rec)
		require.Len(t, buf, rec.EncodedLen())

		decoded, err := record.Decode(buf)
		require.NoError(t, err)
		require.Equal(t, rec.Op, decoded.Op)
		require.Equal(t, rec.Key, decoded.Key)

		if rec.Op == record.OpPut {
			require.Equal(t, rec.Value, decoded.Value)
		} else {
			require.Empty(t, decoded.Value)
		}
	}
}

func TestAppend_PrefixAndSuffixAgree(t *testing.T) {
	t.Parallel()

	rec := record.Record{Op: record.OpPut, Key: []byte("k"), Value: []byte("v")}
	buf := record.Append(nil, rec)

	prefix := buf[:record.LenFieldSize]
	suffix := buf[len(buf)-record.LenFieldSize:]
	require.Equal(t, prefix, suffix)
}

func TestDecode_RejectsShortBuffer(t *testing.T) {
	t.Parallel()

	_, err := record.Decode([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestDecode_RejectsPrefixSuffixMismatch(t *testing.T) {
	t.Parallel()

	rec := record.Record{Op: record.OpPut, Key: []byte("k"), Value: []byte("v")}
	buf := record.Append(nil, rec)
	buf[len(buf)-1] ^= 0xFF

	_, err := record.Decode(buf)
	require.Error(t, err)
}

func TestDecode_RejectsOverrunningHeaderLengths(t *testing.T) {
	t.Parallel()

	rec := record.Record{Op: record.OpPut, Key: []byte("k"), Value: []byte("v")}
	buf := record.Append(nil, rec)

	// Corrupt key_len to claim more bytes than the payload has room for.
	buf[record.LenFieldSize+1] = 0xFF

	_, err := record.Decode(buf)
	require.Error(t, err)
}

func TestAppend_MultipleRecordsConcatenate(t *testing.T) {
	t.Parallel()

	var buf []byte
	buf = record.Append(buf, record.Record{Op: record.OpPut, Key: []byte("a"), Value: []byte("1")})
	buf = record.Append(buf, record.Record{Op: record.OpDel, Key: []byte("b")})

	first := record.Record{Op: record.OpPut, Key: []byte("a"), Value: []byte("1")}
	firstLen := first.EncodedLen()

	decodedFirst, err := record.Decode(buf[:firstLen])
	require.NoError(t, err)
	require.Equal(t, record.OpPut, decodedFirst.Op)

	decodedSecond, err := record.Decode(buf[firstLen:])
	require.NoError(t, err)
	require.Equal(t, record.OpDel, decodedSecond.Op)
	require.Equal(t, []byte("b"), decodedSecond.Key)
}
