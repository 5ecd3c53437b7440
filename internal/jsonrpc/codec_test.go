package jsonrpc

import (
	"math/rand/v2"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/require"
)

func TestEncode_Shape(t *testing.T) {
	t.Parallel()

	out := Encode([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	snaps.MatchSnapshot(t, string(out))
}

func TestDecoder_WholeMessageAtOnce(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"jsonrpc":"2.0","id":1,"result":null}`)
	dec := NewDecoder()
	msgs := dec.Feed(Encode(payload))

	require.Len(t, msgs, 1)
	require.Equal(t, payload, msgs[0])
}

func TestDecoder_MultipleMessagesInOneFragment(t *testing.T) {
	t.Parallel()

	a := []byte(`{"jsonrpc":"2.0","id":1,"result":1}`)
	b := []byte(`{"jsonrpc":"2.0","id":2,"result":2}`)

	dec := NewDecoder()
	fragment := append(Encode(a), Encode(b)...)
	msgs := dec.Feed(fragment)

	require.Len(t, msgs, 2)
	require.Equal(t, a, msgs[0])
	require.Equal(t, b, msgs[1])
}

func TestDecoder_MalformedHeaderIsSkipped(t *testing.T) {
	t.Parallel()

	good := []byte(`{"jsonrpc":"2.0","id":1,"result":null}`)
	bad := "Content-Length: not-a-number\r\n\r\n"

	dec := NewDecoder()
	fragment := append([]byte(bad), Encode(good)...)
	msgs := dec.Feed(fragment)

	require.Len(t, msgs, 1)
	require.Equal(t, good, msgs[0])
}

// TestDecoder_SplitAtEveryBoundary covers spec's frame-codec round-trip
// property: feeding one message as two fragments, split at every possible
// point, always yields exactly the original payload back out.
func TestDecoder_SplitAtEveryBoundary(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"jsonrpc":"2.0","id":42,"method":"textDocument/hover","params":{"uri":"file:///a/b.go","utf8":"héllo wörld 日本語"}}`)
	framed := Encode(payload)

	for split := 0; split <= len(framed); split++ {
		split := split
		t.Run("", func(t *testing.T) {
			t.Parallel()

			dec := NewDecoder()
			var got [][]byte
			got = append(got, dec.Feed(framed[:split])...)
			got = append(got, dec.Feed(framed[split:])...)

			require.Len(t, got, 1)
			require.Equal(t, payload, got[0])
		})
	}
}

func TestDecoder_RandomFragmentation(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(1, 2))
	payloads := [][]byte{
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"a"}`),
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"b","params":{"x":1}}`),
		[]byte(`{"jsonrpc":"2.0","id":3,"result":{"ok":true}}`),
	}

	var framed []byte
	for _, p := range payloads {
		framed = append(framed, Encode(p)...)
	}

	dec := NewDecoder()
	var got [][]byte
	for len(framed) > 0 {
		n := 1 + r.IntN(7)
		if n > len(framed) {
			n = len(framed)
		}
		got = append(got, dec.Feed(framed[:n])...)
		framed = framed[n:]
	}

	require.Len(t, got, len(payloads))
	for i, p := range payloads {
		require.Equal(t, p, got[i])
	}
}
