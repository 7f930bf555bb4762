package bootstrap

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"

	_ "modernc.org/sqlite"
)

var (
	programID  = contracts.MustParseAddress("0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b")
	coreBridge = contracts.MustParseAddress("0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e")
	payer      = contracts.MustParseAddress("0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c")
	fixedNow   = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
)

func stores(t *testing.T) map[string]Store {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	sqlStore := NewSQLStore(db)
	require.NoError(t, sqlStore.Init(context.Background()))

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlStore,
	}
}

func TestService_InitializeOnce(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(store, programID, fixedNow)

			_, err := svc.Load(ctx)
			require.ErrorIs(t, err, ErrNotInitialized)

			created, err := svc.Initialize(ctx, payer, coreBridge)
			require.NoError(t, err)

			addr, err := ConfigAddress(programID)
			require.NoError(t, err)
			assert.Equal(t, addr, created.Address)

			loaded, err := svc.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, coreBridge, loaded.CoreBridgeProgram)
			assert.Equal(t, payer, loaded.Payer)
			assert.Equal(t, fixedNow(), loaded.CreatedAt)

			_, err = svc.Initialize(ctx, payer, payer)
			require.ErrorIs(t, err, ErrAlreadyInitialized)

			again, err := svc.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, coreBridge, again.CoreBridgeProgram, "second initialize must not overwrite")
		})
	}
}

func TestConfigAddress_PerProgram(t *testing.T) {
	a, err := ConfigAddress(programID)
	require.NoError(t, err)
	b, err := ConfigAddress(coreBridge)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
