package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
	"math"
	"strconv"
)

const roundSize = 32

// Stream produces the reproducible byte/float sequence for one
// (serverSeed, clientSeed, nonce) triple.
//
// Each 32-byte round is HMAC_SHA256(serverSeed, "<clientSeed>:<nonce>:<round>").
// Floats consume exactly 4 bytes, so a round yields 8 floats.
type Stream struct {
	clientSeed string
	nonce      uint64

	mac    hash.Hash
	round  uint64
	pos    int
	buffer [roundSize]byte
}

// NewStream starts a stream at cursor 0.
func NewStream(serverSeed, clientSeed string, nonce uint64) *Stream {
	return NewStreamAt(serverSeed, clientSeed, nonce, 0)
}

// NewStreamAt starts a stream at the given byte cursor.
func NewStreamAt(serverSeed, clientSeed string, nonce uint64, cursor uint64) *Stream {
	s := &Stream{
		clientSeed: clientSeed,
		nonce:      nonce,
		mac:        hmac.New(sha256.New, []byte(serverSeed)),
		round:      cursor / roundSize,
		pos:        int(cursor % roundSize),
	}
	s.generateRound()
	return s
}

// NextByte returns the next byte of the stream.
func (s *Stream) NextByte() byte {
	if s.pos >= roundSize {
		s.round++
		s.pos = 0
		s.generateRound()
	}

	b := s.buffer[s.pos]
	s.pos++
	return b
}

// NextFloat returns the next value in [0, 1) using exactly 4 bytes.
func (s *Stream) NextFloat() float64 {
	return bytesToFloat([4]byte{s.NextByte(), s.NextByte(), s.NextByte(), s.NextByte()})
}

// NextInt returns an integer in [0, n) from one float draw. n must be positive.
func (s *Stream) NextInt(n int) int {
	idx := int(math.Floor(s.NextFloat() * float64(n)))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// Floats draws count successive floats.
func (s *Stream) Floats(count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = s.NextFloat()
	}
	return out
}

// Cursor is the byte offset of the next unread byte.
func (s *Stream) Cursor() uint64 {
	return s.round*roundSize + uint64(s.pos)
}

func (s *Stream) generateRound() {
	msg := make([]byte, 0, len(s.clientSeed)+42)
	msg = append(msg, s.clientSeed...)
	msg = append(msg, ':')
	msg = strconv.AppendUint(msg, s.nonce, 10)
	msg = append(msg, ':')
	msg = strconv.AppendUint(msg, s.round, 10)

	s.mac.Reset()
	s.mac.Write(msg)
	copy(s.buffer[:], s.mac.Sum(nil))
}

// bytesToFloat converts exactly 4 bytes to float64: sum(b_i / 256^(i+1)).
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		divider := math.Pow(256, float64(i+1))
		result += float64(b) / divider
	}
	return result
}

// Floats generates count floats starting from the given byte cursor.
func Floats(serverSeed, clientSeed string, nonce uint64, cursor uint64, count int) []float64 {
	return NewStreamAt(serverSeed, clientSeed, nonce, cursor).Floats(count)
}
