package gatewayhub_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/smallbiznis/payforms/internal/payform/domain"
	"github.com/smallbiznis/payforms/internal/payform/gatewayhub"
	"github.com/smallbiznis/payforms/internal/payform/payformtest"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write([]byte("1700000000." + string(body)))
	expected := hex.EncodeToString(mac.Sum(nil))

	header := gatewayhub.Sign("s", "1700000000", body)
	assert.Equal(t, "t=1700000000,v1="+expected, header)
	assert.True(t, gatewayhub.VerifySignature("s", header, body))
	assert.True(t, gatewayhub.VerifySignature("s", " v1="+expected+" , t=1700000000 ", body))

	for _, pos := range []int{0, len(expected) / 2, len(expected) - 1} {
		tampered := flipHexChar(expected, pos)
		require.NotEqual(t, expected, tampered)
		assert.False(t, gatewayhub.VerifySignature("s", "t=1700000000,v1="+tampered, body), pos)
	}

	assert.False(t, gatewayhub.VerifySignature("s", header, []byte(`{"a":2}`)))
	assert.False(t, gatewayhub.VerifySignature("other", header, body))
	assert.False(t, gatewayhub.VerifySignature("", header, body))

	for _, malformed := range []string{
		"",
		"t=1700000000",
		"v1=" + expected,
		"t=1700000000,v1=not-hex",
		"t=1700000000,v1=" + expected + ",v0=abc",
		"t=1700000000,t=1700000000,v1=" + expected,
		"t=1700000000;v1=" + expected,
		"t=,v1=" + expected,
	} {
		assert.False(t, gatewayhub.VerifySignature("s", malformed, body), malformed)
	}
}

// flipHexChar swaps the hex digit at pos for a different one.
func flipHexChar(value string, pos int) string {
	out := []byte(value)
	if out[pos] == '0' {
		out[pos] = '1'
	} else {
		out[pos] = '0'
	}
	return string(out)
}

func signedCommit(secret string, body string) domain.CommitRequest {
	header := http.Header{}
	header.Set(gatewayhub.SignatureHeader, gatewayhub.Sign(secret, "1700000000", []byte(body)))
	return domain.CommitRequest{Body: []byte(body), Header: header}
}

func TestHandleCommitPayment(t *testing.T) {
	order := &payformtest.Payable{ID: "9", Reference: "ORD-9", State: "pending"}
	f := payformtest.New(t, payformtest.WithPayables(payformtest.Lookup{"9": order}))
	h := newHub(t)
	c := newClient(t, f, h, gatewayhub.Options{})
	ctx := context.Background()

	resp, err := c.CreateTransaction(ctx, domain.CreateTransactionRequest{Amount: 900, Currency: "CUP"})
	require.NoError(t, err)
	reference := resp.Transaction.Reference
	tx, err := f.Deps.Transactions.FindByReference(ctx, f.Tenant.ID, reference)
	require.NoError(t, err)

	t.Run("bad signature", func(t *testing.T) {
		_, err := c.CommitPayment(ctx, signedCommit("wrong", `{"reference":"`+reference+`","status":"paid"}`))
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("missing reference", func(t *testing.T) {
		_, err := c.CommitPayment(ctx, signedCommit("s3cret", `{"status":"paid"}`))
		assert.ErrorIs(t, err, domain.ErrMissingReference)
	})

	t.Run("unknown reference", func(t *testing.T) {
		_, err := c.CommitPayment(ctx, signedCommit("s3cret", `{"reference":"nope","status":"paid"}`))
		assert.ErrorIs(t, err, txdomain.ErrNotFound)
	})

	t.Run("non paid status is ignored", func(t *testing.T) {
		entry, err := c.CommitPayment(ctx, signedCommit("s3cret", `{"reference":"`+reference+`","status":"failed"}`))
		require.NoError(t, err)
		assert.Nil(t, entry)
		status, err := f.Deps.Transactions.CurrentStatus(ctx, f.Tenant.ID, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, txdomain.StatusPending, status)
	})

	t.Run("paid approves once", func(t *testing.T) {
		body := `{"reference":"` + reference + `","status":"paid"}`
		entry, err := c.CommitPayment(ctx, signedCommit("s3cret", body))
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, txdomain.StatusApproved, entry.Status)
		assert.Equal(t, txdomain.SourceWebhook, entry.Metadata["source"])

		again, err := c.CommitPayment(ctx, signedCommit("s3cret", body))
		require.NoError(t, err)
		assert.Nil(t, again)

		history, err := f.Deps.Transactions.History(ctx, f.Tenant.ID, tx.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, txdomain.StatusPending, history[0].Status)
		assert.Equal(t, txdomain.StatusApproved, history[1].Status)
	})
}

func TestPayByReferenceAfterCancel(t *testing.T) {
	f := payformtest.New(t)
	h := newHub(t)
	c := newClient(t, f, h, gatewayhub.Options{})
	ctx := context.Background()

	resp, err := c.CreateTransaction(ctx, domain.CreateTransactionRequest{Amount: 100, Currency: "CUP"})
	require.NoError(t, err)
	tx, err := f.Deps.Transactions.FindByReference(ctx, f.Tenant.ID, resp.Transaction.Reference)
	require.NoError(t, err)
	_, err = f.Deps.Transactions.SetStatus(ctx, f.Tenant.ID, tx.ID, txdomain.StatusCanceled, nil)
	require.NoError(t, err)

	_, err = gatewayhub.PayByReference(ctx, f.Deps.Transactions, f.Tenant.ID, tx.Reference, true, nil, f.Deps.Log)
	assert.ErrorIs(t, err, txdomain.ErrInvalidTransition)
}
