package oscutil

import (
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/require"
)

func encodeMessage(t *testing.T, addr string, args ...any) []byte {
	t.Helper()
	msg := osc.NewMessage(addr)
	for _, a := range args {
		msg.Append(a)
	}
	b, err := msg.ToBytes()
	require.NoError(t, err)
	return b
}

func TestDecodeMessage(t *testing.T) {
	b := encodeMessage(t, "/test/ping", int32(1))

	p, err := Decode(b)
	require.NoError(t, err)
	require.False(t, p.IsBundle)
	require.Equal(t, "/test/ping", p.Address)
}

func TestEncodeIsCanonical(t *testing.T) {
	b := encodeMessage(t, "/allowed")

	p, err := Decode(b)
	require.NoError(t, err)

	out, err := p.Encode()
	require.NoError(t, err)
	require.Equal(t, b, out)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("not an osc packet"))
	require.Error(t, err)
}

func TestDecodeBundle(t *testing.T) {
	bndl := osc.NewBundle(time.Unix(0, 0))
	bndl.Messages = append(bndl.Messages, osc.NewMessage("/inner"))
	b, err := bndl.ToBytes()
	require.NoError(t, err)

	p, err := Decode(b)
	require.NoError(t, err)
	require.True(t, p.IsBundle)
	require.Empty(t, p.Address)
}
