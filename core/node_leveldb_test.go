package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dineledger/storage"
)

func TestNodeStateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "ledger")

	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	n := newTestNode(t, db)
	registerRestaurant(t, n)
	fundAndApprove(t, n, customerC, "100.00")
	_, err = n.ProcessPayment(ctx, customerC, restaurantR, amount(t, "100.00"), "bill")
	require.NoError(t, err)
	_, err = n.ReviewBill(ctx, customerC, 1, 5, "Amazing")
	require.NoError(t, err)
	require.NoError(t, n.TransferAdministration(ctx, "payments", operator, customerD))
	n.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	reopened := newTestNode(t, db)
	defer reopened.Close()

	stats, err := reopened.PaymentStats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.TotalPayments)

	review, ok, err := reopened.ReviewByBill(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Amazing", review.Text)

	// Bootstrap does not overwrite an administrator that already exists.
	current, err := reopened.Admin(ctx, "payments")
	require.NoError(t, err)
	require.Equal(t, customerD, current)
}
