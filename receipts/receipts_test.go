package receipts

import (
	"os"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cdpmarket/auctionengine/core"
	"github.com/cdpmarket/auctionengine/engine"
)

func sampleEvent() engine.Event {
	amount := decimal.NewFromInt(1000)
	return engine.Event{
		ID:        "ev-1",
		Type:      engine.EventAuctionSettled,
		Height:    42,
		Timestamp: time.Unix(1756600000, 0).UTC(),
		Auction: &core.Auction{
			ID:     "a-1",
			Status: core.StatusSettled,
			Ask:    decimal.NewFromInt(1000),
		},
		Bid: &core.Bid{
			ID:       "b-1",
			Buyer:    "buyer",
			Value:    decimal.NewFromInt(1000),
			Accepted: true,
		},
		Amount: &amount,
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, err := GenerateSigner()
	assert.Nil(t, err)

	ev := sampleEvent()
	receipt, err := signer.Sign(ev)
	assert.Nil(t, err)
	check.True(t, len(receipt) > 0)

	got, err := Verify(receipt, signer.PublicKey())
	assert.Nil(t, err)

	check.Equal(t, ev.ID, got.ID)
	check.Equal(t, ev.Type, got.Type)
	check.Equal(t, ev.Height, got.Height)
	check.Equal(t, ev.Timestamp.Unix(), got.Timestamp.Unix())

	assert.NotNil(t, got.Auction)
	check.Equal(t, ev.Auction.ID, got.Auction.ID)
	check.Equal(t, core.StatusSettled, got.Auction.Status)

	assert.NotNil(t, got.Bid)
	check.True(t, got.Bid.Accepted)
	check.True(t, got.Bid.Value.Equal(decimal.NewFromInt(1000)))

	assert.NotNil(t, got.Amount)
	check.True(t, got.Amount.Equal(decimal.NewFromInt(1000)))
}

func TestVerify_RejectsTamperedReceipt(t *testing.T) {
	signer, err := GenerateSigner()
	assert.Nil(t, err)

	receipt, err := signer.Sign(sampleEvent())
	assert.Nil(t, err)

	// Flip a bit in the trailing signature bytes.
	tampered := make([]byte, len(receipt))
	copy(tampered, receipt)
	tampered[len(tampered)-1] ^= 0x01

	_, err = Verify(tampered, signer.PublicKey())
	check.Error(t, err)
}

func TestVerify_RejectsWrongKey(t *testing.T) {
	signer, err := GenerateSigner()
	assert.Nil(t, err)
	other, err := GenerateSigner()
	assert.Nil(t, err)

	receipt, err := signer.Sign(sampleEvent())
	assert.Nil(t, err)

	_, err = Verify(receipt, other.PublicKey())
	check.Error(t, err)
}

func TestVerify_RejectsGarbage(t *testing.T) {
	_, err := Verify([]byte("not a receipt"), nil)
	check.Error(t, err)
}

func TestKeyPEMRoundTrip(t *testing.T) {
	signer, err := GenerateSigner()
	assert.Nil(t, err)

	path := t.TempDir() + "/receipt.pem"
	assert.Nil(t, SavePrivateKeyPEM(path, signer.Key()))

	loaded, err := LoadPrivateKeyPEM(path)
	assert.Nil(t, err)
	check.True(t, loaded.Equal(signer.Key()))

	// A receipt signed with the reloaded key verifies against the
	// original public key.
	reloaded, err := NewSigner(loaded)
	assert.Nil(t, err)
	receipt, err := reloaded.Sign(sampleEvent())
	assert.Nil(t, err)
	_, err = Verify(receipt, signer.PublicKey())
	check.Nil(t, err)

	pubPEM, err := PublicKeyPEM(signer.PublicKey())
	assert.Nil(t, err)
	pubPath := t.TempDir() + "/receipt.pub"
	assert.Nil(t, os.WriteFile(pubPath, []byte(pubPEM), 0o644))
	pub, err := LoadPublicKeyPEM(pubPath)
	assert.Nil(t, err)
	check.True(t, pub.Equal(signer.PublicKey()))
}
