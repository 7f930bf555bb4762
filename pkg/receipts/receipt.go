// Package receipts records signed evidence of every upgrade attempt that
// consumed a governance message.
package receipts

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

type Status string

const (
	StatusUpgraded Status = "UPGRADED"
	// StatusFailed means the message was claimed but the loader refused the
	// upgrade. The claim stands.
	StatusFailed Status = "FAILED"
)

var (
	ErrNotFound         = errors.New("receipt not found")
	ErrInvalidSignature = errors.New("invalid receipt signature")
)

// Receipt is the signed outcome of one upgrade.
type Receipt struct {
	ID             string             `json:"id"`
	MessageID      string             `json:"message_id"`
	Chain          contracts.ChainID  `json:"chain"`
	Emitter        contracts.Address  `json:"emitter"`
	Sequence       contracts.Sequence `json:"sequence"`
	ClaimAddress   contracts.Address  `json:"claim_address"`
	Program        contracts.Address  `json:"program"`
	Implementation contracts.Address  `json:"implementation"`
	Authority      contracts.Address  `json:"authority"`
	Bump           uint8              `json:"bump"`
	Spill          contracts.Address  `json:"spill"`
	Payer          contracts.Address  `json:"payer"`
	Status         Status             `json:"status"`
	Error          string             `json:"error,omitempty"`
	IssuedAt       time.Time          `json:"issued_at"`
	SignerKey      string             `json:"signer_key,omitempty"`
	Signature      string             `json:"signature,omitempty"`
}

// NewID returns a fresh receipt identifier.
func NewID() string {
	return uuid.NewString()
}

// Canonical returns the RFC 8785 bytes of r without its signature.
func Canonical(r *Receipt) ([]byte, error) {
	unsigned := *r
	unsigned.Signature = ""

	raw, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("receipt marshal failed: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("receipt canonicalization failed: %w", err)
	}
	return out, nil
}

// Signer signs receipts with an ed25519 key.
type Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
}

// NewSigner generates a fresh key.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Signer{privKey: priv, pubKey: pub}, nil
}

func NewSignerFromKey(priv ed25519.PrivateKey) *Signer {
	return &Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
	}
}

func (s *Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

// Sign stamps r with the signer's key and signature.
func (s *Signer) Sign(r *Receipt) error {
	r.SignerKey = s.PublicKey()
	data, err := Canonical(r)
	if err != nil {
		return err
	}
	r.Signature = hex.EncodeToString(ed25519.Sign(s.privKey, data))
	return nil
}

// Verify checks r's signature against the hex-encoded public key pubKeyHex.
func Verify(r *Receipt, pubKeyHex string) error {
	if r.SignerKey != pubKeyHex {
		return fmt.Errorf("%w: signed by %q", ErrInvalidSignature, r.SignerKey)
	}
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad public key", ErrInvalidSignature)
	}
	sig, err := hex.DecodeString(r.Signature)
	if err != nil {
		return fmt.Errorf("%w: bad signature encoding", ErrInvalidSignature)
	}
	data, err := Canonical(r)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, data, sig) {
		return ErrInvalidSignature
	}
	return nil
}
