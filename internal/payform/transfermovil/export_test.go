package transfermovil

import (
	"crypto/rsa"
	"testing"
)

// Seal exposes the test signer to the external test package.
func Seal(t *testing.T, key *rsa.PrivateKey, plain []byte) string { return seal(t, key, plain) }

func NewKey(t *testing.T) (*rsa.PrivateKey, string) { return newKey(t) }
