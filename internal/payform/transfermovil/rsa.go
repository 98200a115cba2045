package transfermovil

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
	"strings"
)

var errInvalidBlock = errors.New("invalid signed block")

// ParsePublicKey accepts PKIX ("PUBLIC KEY") and PKCS#1 ("RSA PUBLIC KEY") PEM blocks.
func ParsePublicKey(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(raw)))
	if block == nil {
		return nil, errors.New("public key is not PEM encoded")
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not RSA")
		}
		return key, nil
	}
}

// OpenPayload recovers data the gateway signed with its private key: it applies the public
// exponent and strips PKCS#1 v1.5 type 1 padding. Payloads longer than one block are split.
func OpenPayload(publicKey, encoded string) ([]byte, error) {
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, err
	}
	size := key.Size()
	if len(sealed) == 0 || len(sealed)%size != 0 {
		return nil, errInvalidBlock
	}

	var out bytes.Buffer
	for offset := 0; offset < len(sealed); offset += size {
		chunk, err := openBlock(key, sealed[offset:offset+size])
		if err != nil {
			return nil, err
		}
		out.Write(chunk)
	}
	return out.Bytes(), nil
}

func openBlock(key *rsa.PublicKey, block []byte) ([]byte, error) {
	c := new(big.Int).SetBytes(block)
	if c.Cmp(key.N) >= 0 {
		return nil, errInvalidBlock
	}
	m := new(big.Int).Exp(c, big.NewInt(int64(key.E)), key.N)
	em := m.FillBytes(make([]byte, key.Size()))

	if em[0] != 0x00 || em[1] != 0x01 {
		return nil, errInvalidBlock
	}
	i := 2
	for i < len(em) && em[i] == 0xff {
		i++
	}
	if i-2 < 8 || i >= len(em) || em[i] != 0x00 {
		return nil, errInvalidBlock
	}
	return em[i+1:], nil
}
