package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	Prefix = "GM2"

	// SuffixLen is the number of trailing hex characters of the digest kept in the payload.
	SuffixLen = 8

	separator = ":"
)

var ErrMalformedPayload = errors.New("malformed payload")

// Payload is the colon-delimited string shown as a QR code.
type Payload struct {
	CardNumber string
	Constant   string
	Timestamp  int64
	Hash       string
}

// Hash returns the last SuffixLen hex characters, uppercased, of
// sha256(cardNumber + constant + timestamp + deviceID).
func Hash(cardNumber, constant string, timestamp int64, deviceID string) string {
	preimage := cardNumber + constant + strconv.FormatInt(timestamp, 10) + deviceID
	sum := sha256.Sum256([]byte(preimage))
	digest := hex.EncodeToString(sum[:])
	return strings.ToUpper(digest[len(digest)-SuffixLen:])
}

// Format builds the payload string for a fixed timestamp.
func Format(cardNumber, constant string, timestamp int64, deviceID string) string {
	return New(cardNumber, constant, timestamp, deviceID).String()
}

func New(cardNumber, constant string, timestamp int64, deviceID string) Payload {
	return Payload{
		CardNumber: cardNumber,
		Constant:   constant,
		Timestamp:  timestamp,
		Hash:       Hash(cardNumber, constant, timestamp, deviceID),
	}
}

func (p Payload) String() string {
	return strings.Join([]string{
		Prefix,
		p.CardNumber,
		p.Constant,
		strconv.FormatInt(p.Timestamp, 10),
		p.Hash,
	}, separator)
}

// Verify recomputes the hash suffix for deviceID and compares it with the
// one carried by the payload.
func (p Payload) Verify(deviceID string) bool {
	return Hash(p.CardNumber, p.Constant, p.Timestamp, deviceID) == p.Hash
}

// Parse splits a payload back into its fields. Card numbers or constants
// containing ':' cannot be recovered and are reported as malformed.
func Parse(s string) (Payload, error) {
	parts := strings.Split(s, separator)
	if len(parts) != 5 || parts[0] != Prefix {
		return Payload{}, ErrMalformedPayload
	}

	if !isDigits(parts[3]) {
		return Payload{}, ErrMalformedPayload
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Payload{}, ErrMalformedPayload
	}

	if !isUpperHex(parts[4]) {
		return Payload{}, ErrMalformedPayload
	}

	return Payload{
		CardNumber: parts[1],
		Constant:   parts[2],
		Timestamp:  ts,
		Hash:       parts[4],
	}, nil
}

// Generator stamps payloads with the current Unix time in whole seconds.
type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// WithClock returns a generator reading time from now.
func WithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

func (g *Generator) Generate(cardNumber, constant, deviceID string) Payload {
	return New(cardNumber, constant, g.now().Unix(), deviceID)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isUpperHex(s string) bool {
	if len(s) != SuffixLen {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}
