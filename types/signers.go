package types

import "github.com/gagliardetto/solana-go"

// SignerSet is the set of principals that provided a valid signature for the
// containing invocation. The host verifies signatures; the core only checks
// membership.
type SignerSet map[solana.PublicKey]struct{}

// NewSignerSet builds a set from the given principals.
func NewSignerSet(keys ...solana.PublicKey) SignerSet {
	s := make(SignerSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether key signed the invocation.
func (s SignerSet) Has(key solana.PublicKey) bool {
	_, ok := s[key]
	return ok
}

// Require returns ErrMissingSigner unless key signed the invocation.
func (s SignerSet) Require(key solana.PublicKey) error {
	if !s.Has(key) {
		return Errf(ErrMissingSigner, "required signer %s did not sign", key)
	}
	return nil
}
