package bencode_test

import (
	"bytes"
	"testing"

	anabencode "github.com/anacrolix/torrent/bencode"
	jackpal "github.com/jackpal/bencode-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/bitwire/pkg/bencode"
)

var roundTripInputs = []string{
	"i0e",
	"i-42e",
	"0:",
	"5:hello",
	"le",
	"de",
	"li1ei2ei3ee",
	"l4:spam4:eggsd3:cow3:mooee",
	"d1:ad2:id20:0123456789abcdefghije1:q4:ping1:t2:aa1:y1:qe",
	"d4:infod6:lengthi1024e4:name8:file.txt12:piece lengthi16384e6:pieces20:aaaaaaaaaaaaaaaaaaaaee",
	"d1:mdee",
	"lllleeee",
}

func TestRoundTrip(t *testing.T) {
	for _, input := range roundTripInputs {
		t.Run(input, func(t *testing.T) {
			v, err := bencode.Decode([]byte(input))
			require.NoError(t, err)

			encoded := bencode.Encode(v)
			assert.Equal(t, input, string(encoded))

			again, err := bencode.Decode(encoded)
			require.NoError(t, err)
			assert.True(t, bencode.Equal(v, again))
		})
	}
}

func TestRoundTripUnsortedInput(t *testing.T) {
	v, err := bencode.Decode([]byte("d1:zi1e1:ml1:xe1:ad1:ci1e1:bi2eee"))
	require.NoError(t, err)

	encoded := bencode.Encode(v)

	strict := bencode.DefaultDecodeOptions()
	strict.CheckKeySort = true

	again, err := bencode.DecodeWithOptions(encoded, strict)
	require.NoError(t, err)
	assert.True(t, bencode.Equal(v, again))

	assert.Equal(t, string(encoded), string(bencode.Encode(again)))
}

func TestCanonicalIdempotence(t *testing.T) {
	values := []bencode.Value{
		bencode.NewInt(-9),
		bencode.NewString("\x00binary\xff"),
		bencode.NewList(bencode.NewDict().Put("b", bencode.NewInt(1)).Put("a", bencode.NewInt(2))),
		bencode.NewDict().
			Put("y", bencode.NewString("r")).
			Put("r", bencode.NewDict().Put("id", bencode.NewString("abcdefghij0123456789"))).
			Put("t", bencode.NewString("aa")),
	}

	for _, v := range values {
		once := bencode.Encode(v)

		decoded, err := bencode.Decode(once)
		require.NoError(t, err)

		assert.Equal(t, once, bencode.Encode(decoded))
	}
}

func TestMutList(t *testing.T) {
	m := bencode.NewList(bencode.NewInt(1), bencode.NewInt(3))

	l, ok := m.MutList()
	require.True(t, ok)

	assert.True(t, l.Insert(1, bencode.NewInt(2)))
	assert.False(t, l.Insert(5, bencode.NewInt(9)))
	l.Push(bencode.NewString("end"))
	assert.Equal(t, "li1ei2ei3e3:ende", string(m.Encode()))

	removed, ok := l.Remove(0)
	require.True(t, ok)
	n, _ := removed.Int()
	assert.Equal(t, int64(1), n)

	assert.True(t, l.Set(0, bencode.NewInt(20)))
	assert.False(t, l.Set(10, bencode.NewInt(0)))
	_, ok = l.Remove(10)
	assert.False(t, ok)

	assert.Equal(t, "li20ei3e3:ende", string(m.Encode()))

	_, ok = m.MutDict()
	assert.False(t, ok)
}

func TestMutDict(t *testing.T) {
	m := bencode.NewDict()

	d, ok := m.MutDict()
	require.True(t, ok)

	_, replaced := d.Insert([]byte("b"), bencode.NewInt(1))
	assert.False(t, replaced)

	old, replaced := d.Insert([]byte("b"), bencode.NewInt(2))
	require.True(t, replaced)
	n, _ := old.Int()
	assert.Equal(t, int64(1), n)

	d.Insert([]byte("a"), bencode.NewString("x"))
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, "d1:a1:x1:bi2ee", string(m.Encode()))

	_, ok = d.Remove([]byte("a"))
	assert.True(t, ok)
	_, ok = d.Remove([]byte("a"))
	assert.False(t, ok)

	assert.Equal(t, "d1:bi2ee", string(m.Encode()))
}

func TestMutPanicsOnWrongKind(t *testing.T) {
	assert.Panics(t, func() { bencode.NewInt(1).Put("a", bencode.NewInt(2)) })
	assert.Panics(t, func() { bencode.NewDict().Append(bencode.NewInt(2)) })
}

func TestCloneDetachesFromBuffer(t *testing.T) {
	input := []byte("d3:keyl4:spamee")

	v, err := bencode.Decode(input)
	require.NoError(t, err)

	owned := bencode.Clone(v)
	for i := range input {
		input[i] = 'X'
	}

	assert.Equal(t, "d3:keyl4:spamee", string(owned.Encode()))
}

func TestMutInsertClonesBorrowedValues(t *testing.T) {
	input := []byte("4:spam")

	v, err := bencode.Decode(input)
	require.NoError(t, err)

	m := bencode.NewDict().Put("k", v)
	input[2] = 'S'

	assert.Equal(t, "d1:k4:spame", string(m.Encode()))
}

func TestMutInsertCopiesOwnedValues(t *testing.T) {
	shared := bencode.NewList(bencode.NewInt(1), bencode.NewInt(2))

	a := bencode.NewDict().Put("l", shared)
	b := bencode.NewList(shared)

	shared.Append(bencode.NewInt(3))

	inA, ok := mustDict(t, a).Lookup([]byte("l"))
	require.True(t, ok)

	ml, ok := inA.(*bencode.Mut).MutList()
	require.True(t, ok)
	assert.Equal(t, 2, ml.Len())
	ml.Push(bencode.NewInt(9))

	bl, _ := b.List()
	inB, _ := bl.Get(0)
	inBList, _ := inB.List()
	assert.Equal(t, 2, inBList.Len())

	assert.Equal(t, "d1:lli1ei2ei9eee", string(a.Encode()))
	assert.Equal(t, "lli1ei2eee", string(b.Encode()))
}

func TestMutAppendSelf(t *testing.T) {
	l := bencode.NewList(bencode.NewInt(1))
	l.Append(l)

	assert.Equal(t, "li1eli1eee", string(l.Encode()))

	d := bencode.NewDict().Put("a", bencode.NewInt(1))
	d.Put("self", d)

	assert.Equal(t, "d1:ai1e4:selfd1:ai1eee", string(d.Encode()))
}

func mustDict(t *testing.T, v bencode.Value) bencode.Dict {
	t.Helper()

	d, ok := v.Dict()
	require.True(t, ok)

	return d
}

func TestEncodeInteropWithAnacrolix(t *testing.T) {
	ping := bencode.NewDict().
		Put("t", bencode.NewString("aa")).
		Put("y", bencode.NewString("q")).
		Put("q", bencode.NewString("ping")).
		Put("a", bencode.NewDict().Put("id", bencode.NewString("0123456789abcdefghij")))

	var got map[string]interface{}
	require.NoError(t, anabencode.Unmarshal(ping.Encode(), &got))

	assert.Equal(t, "ping", got["q"])
	assert.Equal(t, "aa", got["t"])

	args, ok := got["a"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0123456789abcdefghij", args["id"])
}

func TestDecodeInteropWithAnacrolix(t *testing.T) {
	src := map[string]interface{}{
		"zeta":  int64(3),
		"alpha": []interface{}{"x", int64(-1)},
		"mid":   map[string]interface{}{"k": "v"},
	}

	data, err := anabencode.Marshal(src)
	require.NoError(t, err)

	strict := bencode.DefaultDecodeOptions()
	strict.CheckKeySort = true

	v, err := bencode.DecodeWithOptions(data, strict)
	require.NoError(t, err)
	assert.Equal(t, data, bencode.Encode(v))
}

type trackerReply struct {
	Interval int    `bencode:"interval"`
	Peers    string `bencode:"peers"`
	Comment  string `bencode:"comment"`
}

func TestInteropWithJackpal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jackpal.Marshal(&buf, trackerReply{Interval: 900, Peers: "\x7f\x00\x00\x01\x1a\xe1", Comment: "ok"}))

	v, err := bencode.Decode(buf.Bytes())
	require.NoError(t, err)

	d, ok := v.Dict()
	require.True(t, ok)

	interval, err := bencode.LookupInt(d, "interval")
	require.NoError(t, err)
	assert.Equal(t, int64(900), interval)

	peers, err := bencode.LookupBytes(d, "peers")
	require.NoError(t, err)
	assert.Equal(t, []byte{127, 0, 0, 1, 0x1a, 0xe1}, peers)

	ours := bencode.NewDict().
		Put("peers", bencode.NewBytes([]byte{10, 0, 0, 2, 0x1a, 0xe1})).
		Put("interval", bencode.NewInt(60))

	var got trackerReply
	require.NoError(t, jackpal.Unmarshal(bytes.NewReader(ours.Encode()), &got))
	assert.Equal(t, 60, got.Interval)
	assert.Equal(t, "\x0a\x00\x00\x02\x1a\xe1", got.Peers)
}
