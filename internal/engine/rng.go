package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// Source yields uniformly distributed floats in [0, 1).
type Source interface {
	Float64() float64
}

// ByteGenerator streams HMAC-SHA256 bytes keyed by a server secret.
// Each 32-byte round hashes "seed:nonce:round".
type ByteGenerator struct {
	secret       string
	seed         string
	nonce        uint64
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

// NewByteGenerator creates a byte generator positioned at cursor.
func NewByteGenerator(secret, seed string, nonce uint64, cursor uint64) *ByteGenerator {
	bg := &ByteGenerator{
		secret:       secret,
		seed:         seed,
		nonce:        nonce,
		currentRound: cursor / 32,
		currentPos:   int(cursor % 32),
	}

	bg.generateRound()

	return bg
}

// Next returns the next byte from the generator
func (bg *ByteGenerator) Next() byte {
	if bg.currentPos >= 32 {
		bg.currentRound++
		bg.currentPos = 0
		bg.generateRound()
	}

	b := bg.buffer[bg.currentPos]
	bg.currentPos++
	return b
}

// NextFloat generates the next float using exactly 4 bytes
func (bg *ByteGenerator) NextFloat() float64 {
	b0 := bg.Next()
	b1 := bg.Next()
	b2 := bg.Next()
	b3 := bg.Next()

	return bytesToFloat([4]byte{b0, b1, b2, b3})
}

func (bg *ByteGenerator) generateRound() {
	h := hmac.New(sha256.New, []byte(bg.secret))
	message := fmt.Sprintf("%s:%d:%d", bg.seed, bg.nonce, bg.currentRound)
	h.Write([]byte(message))
	copy(bg.buffer[:], h.Sum(nil))
}

// bytesToFloat maps 4 bytes onto [0, 1) as a base-256 fraction.
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		divider := math.Pow(256, float64(i+1))
		result += float64(b) / divider
	}
	return result
}

// Floats generates count floats starting from the given cursor.
func Floats(secret, seed string, nonce uint64, cursor uint64, count int) []float64 {
	bg := NewByteGenerator(secret, seed, nonce, cursor)
	floats := make([]float64, count)

	for i := 0; i < count; i++ {
		floats[i] = bg.NextFloat()
	}

	return floats
}

// floatsPerRound is how many 4-byte floats one HMAC round yields.
const floatsPerRound = 8

// Stream is a Source that draws Floats one round at a time. Two streams
// built from the same secret, seed and nonce produce the same sequence.
type Stream struct {
	secret string
	seed   string
	nonce  uint64
	cursor uint64
	buf    []float64
}

// NewStream creates a deterministic Source for one seed.
func NewStream(secret, seed string, nonce uint64) *Stream {
	return &Stream{secret: secret, seed: seed, nonce: nonce}
}

// Float64 implements Source.
func (s *Stream) Float64() float64 {
	if len(s.buf) == 0 {
		s.buf = Floats(s.secret, s.seed, s.nonce, s.cursor, floatsPerRound)
		s.cursor += floatsPerRound * 4
	}
	f := s.buf[0]
	s.buf = s.buf[1:]
	return f
}

// HashSecret returns a short SHA256 fingerprint of a secret for logging.
func HashSecret(secret string) string {
	if secret == "" {
		return "empty"
	}
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])[:16]
}
