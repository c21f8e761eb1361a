package idgen

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphabet(t *testing.T) {
	assert.Len(t, Alphabet, 34)
	assert.NotContains(t, Alphabet, "I")
	assert.NotContains(t, Alphabet, "O")

	seen := map[rune]bool{}
	for _, r := range Alphabet {
		assert.False(t, seen[r], "duplicate symbol %q", r)
		seen[r] = true
	}
}

func TestEncode(t *testing.T) {
	enc := NewEncoder(4)
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0000"},
		{1, "0001"},
		{2, "0002"},
		{9, "0009"},
		{10, "000A"},
		{17, "000H"},
		{18, "000J"}, // I is skipped
		{23, "000P"}, // O is skipped
		{33, "000Z"},
		{34, "0010"},
		{34*34*34*34 - 1, "ZZZZ"},
		{34 * 34 * 34 * 34, "10000"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, enc.Encode(tt.input), "Encode(%d)", tt.input)
	}
}

func TestEncodeWidth(t *testing.T) {
	assert.Equal(t, "1", NewEncoder(1).Encode(1))
	assert.Equal(t, "000001", NewEncoder(6).Encode(1))
	assert.Equal(t, "0001", NewEncoder(0).Encode(1), "width below 1 falls back to the default")
	assert.Equal(t, "1", Encoder{}.Encode(1), "zero value pads nothing")
}

func TestEncodeMaxInt64(t *testing.T) {
	enc := NewEncoder(4)
	label := enc.Encode(math.MaxInt64)
	assert.Len(t, label, 13)

	n, err := enc.Decode(label)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), n)
}

func TestEncodeNegativePanics(t *testing.T) {
	assert.Panics(t, func() { NewEncoder(4).Encode(-1) })
}

func TestDecode(t *testing.T) {
	enc := NewEncoder(4)
	tests := []struct {
		input    string
		expected int64
	}{
		{"0000", 0},
		{"0001", 1},
		{"1", 1},
		{"000A", 10},
		{"0010", 34},
		{"ZZZZ", 34*34*34*34 - 1},
		{"10000", 34 * 34 * 34 * 34},
	}

	for _, tt := range tests {
		n, err := enc.Decode(tt.input)
		require.NoError(t, err, "Decode(%q)", tt.input)
		assert.Equal(t, tt.expected, n, "Decode(%q)", tt.input)
	}
}

func TestDecodeRejectsForeignSymbols(t *testing.T) {
	enc := NewEncoder(4)
	for _, input := range []string{
		"",
		"000I",
		"000O",
		"00o1",
		"abcd",
		"00-1",
		" 001",
		"0001\n",
		"00é1",
	} {
		_, err := enc.Decode(input)
		assert.ErrorIs(t, err, ErrInvalidLabel, "Decode(%q)", input)
	}
}

func TestDecodeEveryForeignByte(t *testing.T) {
	enc := NewEncoder(4)
	for b := 0; b < 256; b++ {
		s := "00" + string([]byte{byte(b)}) + "0"
		_, err := enc.Decode(s)
		if charIndex[b] >= 0 {
			assert.NoError(t, err, "byte %d", b)
		} else {
			assert.ErrorIs(t, err, ErrInvalidLabel, "byte %d", b)
		}
	}
}

func TestDecodeOverflow(t *testing.T) {
	_, err := NewEncoder(4).Decode("ZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, ErrInvalidLabel)
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	enc := NewEncoder(4)
	for i := int64(0); i < 34*34*34*34; i++ {
		decoded, err := enc.Decode(enc.Encode(i))
		require.NoError(t, err)
		if decoded != i {
			t.Fatalf("Decode(Encode(%d)) = %d", i, decoded)
		}
	}

	r := rand.New(rand.NewPCG(1, 2))
	for range 10000 {
		n := r.Int64()
		decoded, err := enc.Decode(enc.Encode(n))
		require.NoError(t, err)
		require.Equal(t, n, decoded)
	}
}

func TestEncodePreservesOrderWithinWidth(t *testing.T) {
	enc := NewEncoder(4)
	labels := make([]string, 0, 2000)
	for i := int64(0); i < 34*34*34*34; i += 577 {
		labels = append(labels, enc.Encode(i))
	}
	assert.True(t, sort.StringsAreSorted(labels))

	for i := int64(1); i < 34*34*34*34; i++ {
		if enc.Encode(i-1) >= enc.Encode(i) {
			t.Fatalf("Encode(%d) >= Encode(%d)", i-1, i)
		}
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "00AB", Normalize("  00ab \t"))
	assert.Equal(t, "000O", Normalize("000o"))
}
