package receipts_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/receipts"
)

func signedReceipt(t *testing.T) (*receipts.Receipt, *receipts.Signer) {
	t.Helper()
	s, err := receipts.NewSigner()
	require.NoError(t, err)

	r := &receipts.Receipt{
		ID:             "rcpt_test_001",
		MessageID:      "1/0000000000000000000000000000000000000000000000000000000000000004/9",
		Chain:          contracts.GovernanceChain,
		Emitter:        contracts.GovernanceEmitter,
		Sequence:       9,
		Implementation: contracts.MustParseAddress("2222222222222222222222222222222222222222222222222222222222222222"),
		Bump:           253,
		Status:         receipts.StatusUpgraded,
		IssuedAt:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Sign(r))
	return r, s
}

func TestReceiptTamperResistance(t *testing.T) {
	tamper := map[string]func(r *receipts.Receipt){
		"status":         func(r *receipts.Receipt) { r.Status = receipts.StatusFailed },
		"sequence":       func(r *receipts.Receipt) { r.Sequence++ },
		"implementation": func(r *receipts.Receipt) { r.Implementation[0] ^= 0xff },
		"bump":           func(r *receipts.Receipt) { r.Bump-- },
		"error":          func(r *receipts.Receipt) { r.Error = "injected" },
		"issued_at":      func(r *receipts.Receipt) { r.IssuedAt = r.IssuedAt.Add(time.Second) },
	}

	for field, mutate := range tamper {
		t.Run(field, func(t *testing.T) {
			r, s := signedReceipt(t)
			mutate(r)
			assert.ErrorIs(t, receipts.Verify(r, s.PublicKey()), receipts.ErrInvalidSignature)
		})
	}
}

func TestReceiptSurvivesJSONRoundTrip(t *testing.T) {
	r, s := signedReceipt(t)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	var decoded receipts.Receipt
	require.NoError(t, json.Unmarshal(raw, &decoded))

	require.NoError(t, receipts.Verify(&decoded, s.PublicKey()))
}
