package admin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"dineledger/core/events"
	"dineledger/core/state"
	"dineledger/crypto"
	"dineledger/storage"
)

var (
	owner    = crypto.MustParseAddress("0x1000000000000000000000000000000000000001")
	stranger = crypto.MustParseAddress("0x2000000000000000000000000000000000000002")
)

func TestRequireBeforeBootstrap(t *testing.T) {
	reg := NewRegistry(state.NewManager(storage.NewMemDB()))
	err := reg.Require("payments", owner)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestBootstrapKeepsExistingAdmin(t *testing.T) {
	reg := NewRegistry(state.NewManager(storage.NewMemDB()))
	require.NoError(t, reg.Bootstrap("payments", owner))
	require.NoError(t, reg.Bootstrap("payments", stranger))
	current, err := reg.Admin("payments")
	require.NoError(t, err)
	require.Equal(t, owner, current)
	require.ErrorIs(t, reg.Bootstrap("reviews", [20]byte{}), ErrInvalidAdmin)
}

func TestTransferAdministration(t *testing.T) {
	reg := NewRegistry(state.NewManager(storage.NewMemDB()))
	var buf events.Buffer
	reg.SetEmitter(&buf)
	require.NoError(t, reg.Bootstrap("reviews", owner))

	require.ErrorIs(t, reg.TransferAdministration("reviews", stranger, stranger), ErrUnauthorized)
	require.ErrorIs(t, reg.TransferAdministration("reviews", owner, [20]byte{}), ErrInvalidAdmin)
	require.NoError(t, reg.TransferAdministration("reviews", owner, stranger))

	require.ErrorIs(t, reg.Require("reviews", owner), ErrUnauthorized)
	require.NoError(t, reg.Require("reviews", stranger))

	drained := buf.Drain()
	require.Len(t, drained, 1)
	require.Equal(t, events.TypeAdminTransferred, drained[0].EventType())
	require.Equal(t, crypto.FormatAddress(stranger), drained[0].Event().Attr("next"))
}
