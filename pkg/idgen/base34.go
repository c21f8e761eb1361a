package idgen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Alphabet is the label alphabet: digits and upper-case letters without I and O,
// so every symbol survives handwriting and optical scanning.
const Alphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// Base is the radix of the label encoding.
const Base = int64(len(Alphabet))

// DefaultWidth is the minimum label width printed on tags.
const DefaultWidth = 4

var ErrInvalidLabel = errors.New("invalid label")

// Generator hands out labels that were never handed out before, across
// restarts and processes sharing one store.
type Generator interface {
	Generate(ctx context.Context) (string, error)
}

var charIndex = func() [256]int8 {
	var m [256]int8
	for i := range m {
		m[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		m[Alphabet[i]] = int8(i)
	}
	return m
}()

// Encoder converts counter values to labels and back.
// Labels shorter than Width are left-padded with the zero symbol, so string
// order equals numeric order as long as a label fits in Width characters.
type Encoder struct {
	Width int
}

// NewEncoder returns an Encoder padding to width (DefaultWidth when width < 1).
func NewEncoder(width int) Encoder {
	if width < 1 {
		width = DefaultWidth
	}
	return Encoder{Width: width}
}

// Encode returns the label for n. Negative values are never issued by the
// counter; they panic.
func (e Encoder) Encode(n int64) string {
	if n < 0 {
		panic(fmt.Sprintf("idgen: cannot encode negative value %d", n))
	}
	// 13 base-34 digits cover the whole int64 range.
	var buf [16]byte
	i := len(buf)
	for {
		i--
		buf[i] = Alphabet[n%Base]
		n /= Base
		if n == 0 {
			break
		}
	}
	digits := len(buf) - i
	if digits >= e.Width {
		return string(buf[i:])
	}
	return strings.Repeat(string(Alphabet[0]), e.Width-digits) + string(buf[i:])
}

// Decode parses a label. It rejects empty input, symbols outside Alphabet and
// values beyond int64. Whether the value was ever issued is up to the caller.
func (e Encoder) Decode(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidLabel)
	}
	var n int64
	for i := 0; i < len(s); i++ {
		v := charIndex[s[i]]
		if v < 0 {
			return 0, fmt.Errorf("%w: %q contains %q at position %d", ErrInvalidLabel, s, s[i], i)
		}
		if n > (math.MaxInt64-int64(v))/Base {
			return 0, fmt.Errorf("%w: %q overflows", ErrInvalidLabel, s)
		}
		n = n*Base + int64(v)
	}
	return n, nil
}

// Normalize trims surrounding space and upper-cases scanned or typed input.
// It does not map look-alikes such as O to 0; those stay invalid.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
