package transfermovil

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// seal signs plain with the private exponent in blocks of at most size-11 bytes.
func seal(t *testing.T, key *rsa.PrivateKey, plain []byte) string {
	t.Helper()
	size := key.Size()
	chunk := size - 11
	var out bytes.Buffer
	for len(plain) > 0 {
		n := min(chunk, len(plain))
		em := make([]byte, size)
		em[1] = 0x01
		padEnd := size - n - 1
		for i := 2; i < padEnd; i++ {
			em[i] = 0xff
		}
		copy(em[padEnd+1:], plain[:n])
		m := new(big.Int).SetBytes(em)
		c := new(big.Int).Exp(m, key.D, key.N)
		out.Write(c.FillBytes(make([]byte, size)))
		plain = plain[n:]
	}
	return base64.StdEncoding.EncodeToString(out.Bytes())
}

func TestOpenPayloadRoundTrip(t *testing.T) {
	key, publicPEM := newKey(t)

	short := []byte(`{"status":"PAID","externalID":"ORD-1"}`)
	opened, err := OpenPayload(publicPEM, seal(t, key, short))
	require.NoError(t, err)
	assert.Equal(t, short, opened)

	long := bytes.Repeat([]byte("x"), 300)
	opened, err = OpenPayload(publicPEM, seal(t, key, long))
	require.NoError(t, err)
	assert.Equal(t, long, opened)
}

func TestOpenPayloadRejectsTampering(t *testing.T) {
	key, publicPEM := newKey(t)
	other, _ := newKey(t)

	_, err := OpenPayload(publicPEM, seal(t, other, []byte("hello")))
	assert.Error(t, err)

	sealed, err := base64.StdEncoding.DecodeString(seal(t, key, []byte("hello")))
	require.NoError(t, err)
	_, err = OpenPayload(publicPEM, base64.StdEncoding.EncodeToString(sealed[:len(sealed)-1]))
	assert.ErrorIs(t, err, errInvalidBlock)

	_, err = OpenPayload(publicPEM, "***")
	assert.Error(t, err)
	_, err = OpenPayload("not a key", seal(t, key, []byte("hello")))
	assert.Error(t, err)
}

func TestParsePublicKeyAcceptsPKCS1(t *testing.T) {
	key, _ := newKey(t)
	raw := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)})
	parsed, err := ParsePublicKey(string(raw))
	require.NoError(t, err)
	assert.Zero(t, key.N.Cmp(parsed.N))
}
