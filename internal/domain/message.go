package domain

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Envelope is the wire form of one encrypted message. The ciphertext is
// the full AEAD output (nonce, payload, auth tag); Counter is the
// sender's position in its current sending chain and PreviousCounter
// the length of its prior chain.
type Envelope struct {
	Ciphertext       []byte       `json:"ciphertext"`
	RatchetPublicKey X25519Public `json:"ratchet_public_key"`
	Counter          uint32       `json:"counter"`
	PreviousCounter  uint32       `json:"previous_counter"`
}

// Message wraps an Envelope with addressing and, for the first messages
// of a conversation, the X3DH handshake payload. This is what crosses
// the transport; delivery guarantees are the transport's problem.
type Message struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	Envelope  Envelope   `json:"envelope"`
	Handshake *Handshake `json:"handshake,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

// EncodeMessage serialises a message to CBOR.
func EncodeMessage(m Message) ([]byte, error) {
	return cbor.Marshal(m)
}

// DecodeMessage parses a CBOR message and validates the envelope shape.
// Parse failures surface as ErrInvalidMessage.
func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Envelope.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks the structural invariants of an envelope.
func (e Envelope) Validate() error {
	if len(e.Ciphertext) == 0 {
		return fmt.Errorf("%w: empty ciphertext", ErrInvalidMessage)
	}
	if e.RatchetPublicKey.IsZero() {
		return fmt.Errorf("%w: zero ratchet public key", ErrInvalidMessage)
	}
	if e.Counter == 0 {
		return fmt.Errorf("%w: zero counter", ErrInvalidMessage)
	}
	return nil
}
