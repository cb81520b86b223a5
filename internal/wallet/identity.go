package wallet

import (
	"crypto/ed25519"

	"github.com/gagliardetto/solana-go"
)

// SigningIdentity owns the 64-byte ed25519 keypair. It is never exposed
// outside this package: WalletClient captures it in an unexported field
// and the only operation that touches it is sign, a private method (spec
// §4.4/§9 — "closure that owns a keypair" ported as an owned private
// field behind an opaque handle).
type SigningIdentity struct {
	priv ed25519.PrivateKey
}

// NewSigningIdentity wraps a 64-byte ed25519 private key (seed‖pubkey).
func NewSigningIdentity(priv ed25519.PrivateKey) SigningIdentity {
	cp := make(ed25519.PrivateKey, len(priv))
	copy(cp, priv)
	return SigningIdentity{priv: cp}
}

// publicKey derives the solana.PublicKey for this identity.
func (s SigningIdentity) publicKey() solana.PublicKey {
	pub := s.priv.Public().(ed25519.PublicKey)
	return solana.PublicKeyFromBytes(pub)
}

// sign produces a raw ed25519 signature over msg. Unexported: the only
// caller is WalletClient.signTransaction.
func (s SigningIdentity) sign(msg []byte) [64]byte {
	var out [64]byte
	copy(out[:], ed25519.Sign(s.priv, msg))
	return out
}

// zero overwrites the private key bytes. Call once the identity is no
// longer needed (WalletClient.Close).
func (s *SigningIdentity) zero() {
	for i := range s.priv {
		s.priv[i] = 0
	}
}
