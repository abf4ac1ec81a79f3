// Package receipts signs and verifies engine audit events. Every committed
// state transition can be wrapped in a COSE_Sign1 receipt so external
// consumers verify the event stream offline without trusting the transport.
package receipts

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cdpmarket/auctionengine/engine"
)

// Signer produces COSE_Sign1 receipts over CBOR-encoded event envelopes
// using an ECDSA P-256 key.
type Signer struct {
	key    *ecdsa.PrivateKey
	signer cose.Signer
}

// NewSigner wraps an existing private key.
func NewSigner(key *ecdsa.PrivateKey) (*Signer, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create COSE signer: %w", err)
	}
	return &Signer{key: key, signer: signer}, nil
}

// GenerateSigner creates a Signer with a fresh P-256 key.
func GenerateSigner() (*Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt key: %w", err)
	}
	return NewSigner(key)
}

// PublicKey returns the verification key for this signer.
func (s *Signer) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

// Key returns the underlying private key, for persistence.
func (s *Signer) Key() *ecdsa.PrivateKey {
	return s.key
}

// Sign encodes the event as CBOR and wraps it in a COSE_Sign1 message.
// Returns the serialized receipt bytes.
func (s *Signer) Sign(ev engine.Event) ([]byte, error) {
	payload, err := cbor.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, s.signer); err != nil {
		return nil, fmt.Errorf("failed to sign event %s: %w", ev.ID, err)
	}

	receipt, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize receipt for event %s: %w", ev.ID, err)
	}
	return receipt, nil
}

// Verify checks a receipt's signature against the public key and returns the
// embedded event. A tampered payload or a key mismatch fails verification.
func Verify(receipt []byte, pub *ecdsa.PublicKey) (engine.Event, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(receipt); err != nil {
		return engine.Event{}, fmt.Errorf("failed to parse receipt: %w", err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, pub)
	if err != nil {
		return engine.Event{}, fmt.Errorf("failed to create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return engine.Event{}, fmt.Errorf("receipt signature verification failed: %w", err)
	}

	var ev engine.Event
	if err := cbor.Unmarshal(msg.Payload, &ev); err != nil {
		return engine.Event{}, fmt.Errorf("failed to decode receipt payload: %w", err)
	}
	return ev, nil
}
