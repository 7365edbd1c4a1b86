package bencode_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/bitwire/pkg/bencode"
)

func TestEncodeScalars(t *testing.T) {
	tests := []struct {
		name  string
		input bencode.Value
		want  string
	}{
		{"zero", bencode.NewInt(0), "i0e"},
		{"positive", bencode.NewInt(42), "i42e"},
		{"negative", bencode.NewInt(-1), "i-1e"},
		{"min int", bencode.NewInt(math.MinInt64), "i-9223372036854775808e"},
		{"empty string", bencode.NewString(""), "0:"},
		{"string", bencode.NewString("spam"), "4:spam"},
		{"binary", bencode.NewBytes([]byte{0, 0xff}), "2:\x00\xff"},
		{"empty list", bencode.NewList(), "le"},
		{"empty dict", bencode.NewDict(), "de"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bencode.Encode(tt.input)
			if string(got) != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeSortsKeys(t *testing.T) {
	ping := bencode.NewDict().
		Put("t", bencode.NewString("aa")).
		Put("y", bencode.NewString("q")).
		Put("q", bencode.NewString("ping")).
		Put("a", bencode.NewDict().Put("id", bencode.NewString("0123456789abcdefghij")))

	want := "d1:ad2:id20:0123456789abcdefghije1:q4:ping1:t2:aa1:y1:qe"
	assert.Equal(t, want, string(ping.Encode()))
}

func TestEncodeResortsDecodedDict(t *testing.T) {
	v, err := bencode.Decode([]byte("d1:bi1e1:ai2e1:\xffi3ee"))
	require.NoError(t, err)

	assert.Equal(t, "d1:ai2e1:bi1e1:\xffi3ee", string(bencode.Encode(v)))
}

func TestEncodeMixedTree(t *testing.T) {
	decoded, err := bencode.Decode([]byte("l4:spami7ee"))
	require.NoError(t, err)

	root := bencode.NewDict().
		Put("borrowed", decoded).
		Put("list", bencode.NewList(bencode.NewInt(1), bencode.NewString("x")))

	assert.Equal(t, "d8:borrowedl4:spami7ee4:listli1e1:xee", string(root.Encode()))
}

func TestEncoderStream(t *testing.T) {
	var buf bytes.Buffer
	enc := bencode.NewEncoder(&buf)

	require.NoError(t, enc.Encode(bencode.NewInt(1)))
	require.NoError(t, enc.Encode(bencode.NewString("ab")))

	assert.Equal(t, "i1e2:ab", buf.String())
}

func TestEncodeHelpers(t *testing.T) {
	assert.Equal(t, "4:spam", string(bencode.EncodeString("spam")))
	assert.Equal(t, "i-3e", string(bencode.EncodeInt(-3)))
	assert.Equal(t, "x3:abc", string(bencode.AppendBytes([]byte("x"), []byte("abc"))))
}
