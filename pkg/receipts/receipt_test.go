package receipts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"

	_ "modernc.org/sqlite"
)

func sampleReceipt(seq contracts.Sequence, at time.Time) *Receipt {
	return &Receipt{
		ID:             NewID(),
		MessageID:      "1/0000000000000000000000000000000000000000000000000000000000000004/42",
		Chain:          1,
		Emitter:        contracts.GovernanceEmitter,
		Sequence:       seq,
		Implementation: contracts.MustParseAddress("1111111111111111111111111111111111111111111111111111111111111111"),
		Bump:           254,
		Status:         StatusUpgraded,
		IssuedAt:       at,
	}
}

func TestSignVerify(t *testing.T) {
	s, err := NewSigner()
	require.NoError(t, err)

	r := sampleReceipt(42, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, s.Sign(r))
	assert.Equal(t, s.PublicKey(), r.SignerKey)
	require.NoError(t, Verify(r, s.PublicKey()))

	r.Status = StatusFailed
	require.ErrorIs(t, Verify(r, s.PublicKey()), ErrInvalidSignature)

	other, err := NewSigner()
	require.NoError(t, err)
	r.Status = StatusUpgraded
	require.ErrorIs(t, Verify(r, other.PublicKey()), ErrInvalidSignature)
}

func TestCanonical_ExcludesSignatureAndSortsKeys(t *testing.T) {
	r := sampleReceipt(7, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	a, err := Canonical(r)
	require.NoError(t, err)

	r.Signature = "deadbeef"
	b, err := Canonical(r)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Regexp(t, `^\{"authority":`, string(a))
}

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLStore(db)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestStores_AppendGetList(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": openSQLite(t),
	}
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			signer, err := NewSigner()
			require.NoError(t, err)

			var ids []string
			for i := 0; i < 3; i++ {
				r := sampleReceipt(contracts.Sequence(i), base.Add(time.Duration(i)*time.Minute))
				require.NoError(t, signer.Sign(r))
				require.NoError(t, store.Append(ctx, r))
				ids = append(ids, r.ID)
			}

			got, err := store.Get(ctx, ids[1])
			require.NoError(t, err)
			assert.Equal(t, contracts.Sequence(1), got.Sequence)
			require.NoError(t, Verify(got, signer.PublicKey()), "signature must survive storage")

			list, err := store.List(ctx, 2)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, ids[2], list[0].ID)
			assert.Equal(t, ids[1], list[1].ID)

			_, err = store.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStores_ListOrdersSubSecond(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": openSQLite(t),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := sampleReceipt(1, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
			b := sampleReceipt(2, time.Date(2026, 1, 2, 3, 4, 5, 500_000_000, time.UTC))
			require.NoError(t, store.Append(ctx, a))
			require.NoError(t, store.Append(ctx, b))

			list, err := store.List(ctx, 1)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, b.ID, list[0].ID)
		})
	}
}

func TestSQLStore_AppendError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	r := sampleReceipt(1, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO receipts`)).
		WithArgs(r.ID, r.MessageID, "UPGRADED", r.IssuedAt.UnixNano(), sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err = NewSQLStore(db).Append(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert receipt")
	require.NoError(t, mock.ExpectationsWereMet())
}
