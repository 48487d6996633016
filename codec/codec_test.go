package codec

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type genericUser struct {
	ID   int
	Name string
}

// fastUser hand-implements msgp.Marshaler/Unmarshaler with a trivial
// length-prefixed name encoding, standing in for msgp-generated code so the
// fast path can be exercised without running the msgp code generator.
type fastUser struct {
	ID   int32
	Name string
}

func (u *fastUser) MarshalMsg(b []byte) ([]byte, error) {
	out := make([]byte, 0, 8+len(u.Name))
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], uint32(u.ID))
	out = append(out, idBuf[:]...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(u.Name)))
	out = append(out, lenBuf[:]...)
	out = append(out, u.Name...)
	return append(b, out...), nil
}

func (u *fastUser) UnmarshalMsg(bts []byte) ([]byte, error) {
	u.ID = int32(binary.BigEndian.Uint32(bts[0:4]))
	n := binary.BigEndian.Uint32(bts[4:8])
	u.Name = string(bts[8 : 8+n])
	return bts[8+n:], nil
}

func TestEncodeDecodeGenericRoundTrip(t *testing.T) {
	in := genericUser{ID: 1, Name: "Alice"}
	b, err := Encode(in, false, 0)
	require.NoError(t, err)
	require.False(t, IsNull(b))

	var out genericUser
	require.NoError(t, Decode(b, &out))
	require.Equal(t, in, out)
}

func TestEncodeDecodeMsgpFastPathRoundTrip(t *testing.T) {
	in := &fastUser{ID: 7, Name: "Bob"}
	b, err := Encode(in, false, 0)
	require.NoError(t, err)

	var out fastUser
	require.NoError(t, Decode(b, &out))
	require.Equal(t, *in, out)
}

func TestEncodeCompressesAboveThreshold(t *testing.T) {
	in := genericUser{ID: 2, Name: strings.Repeat("x", 2048)}
	b, err := Encode(in, true, 16)
	require.NoError(t, err)
	require.True(t, len(b) >= 2)
	require.Equal(t, byte(0x1f), b[0])
	require.Equal(t, byte(0x8b), b[1])

	var out genericUser
	require.NoError(t, Decode(b, &out))
	require.Equal(t, in, out)
}

func TestEncodeDoesNotCompressBelowThreshold(t *testing.T) {
	in := genericUser{ID: 3, Name: "short"}
	b, err := Encode(in, true, 4096)
	require.NoError(t, err)
	require.NotEqual(t, byte(0x1f), b[0])
}

func TestNullMarkerDisjointFromFormatTags(t *testing.T) {
	require.True(t, IsNull(NullMarker))
	in := genericUser{ID: 4, Name: "n"}
	b, err := Encode(in, false, 0)
	require.NoError(t, err)
	require.False(t, IsNull(b))
}
