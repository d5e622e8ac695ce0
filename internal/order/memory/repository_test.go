package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshmarkt/orderflow/internal/order/domain"
)

func twoSellerOrder() *domain.Order {
	return &domain.Order{
		ID:      "ord_1",
		BuyerID: "buyer_1",
		Items: []domain.LineItem{
			{ProductID: "prod_1", SellerID: "seller_1", Quantity: 2, UnitPrice: 10, Status: domain.ItemPending},
			{ProductID: "prod_2", SellerID: "seller_2", Quantity: 1, UnitPrice: 5, Status: domain.ItemPending},
		},
		PaymentStatus: domain.PaymentPending,
		RefundStatus:  domain.RefundNone,
	}
}

func TestUpdateAppliesOnlyListedChanges(t *testing.T) {
	repo := NewRepository()
	require.NoError(t, repo.Save(context.Background(), twoSellerOrder()))

	o, err := repo.Get(context.Background(), "ord_1")
	require.NoError(t, err)

	o.Items[0].Status = domain.ItemConfirmed
	o.Items[1].Status = domain.ItemConfirmed // not listed, must not be written
	err = repo.Update(context.Background(), o, []domain.ItemChange{
		{Position: 0, From: domain.ItemPending, To: domain.ItemConfirmed},
	})
	require.NoError(t, err)

	stored, err := repo.Get(context.Background(), "ord_1")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemConfirmed, stored.Items[0].Status)
	assert.Equal(t, domain.ItemPending, stored.Items[1].Status)
}

// Two sellers read the same aggregate and write back independently. The
// later write only touches its own position, so the earlier seller's
// cancellation survives even though the later writer's copy predates it.
func TestUpdateDoesNotClobberConcurrentWriter(t *testing.T) {
	repo := NewRepository()
	require.NoError(t, repo.Save(context.Background(), twoSellerOrder()))

	bySeller1, err := repo.Get(context.Background(), "ord_1")
	require.NoError(t, err)
	bySeller2, err := repo.Get(context.Background(), "ord_1")
	require.NoError(t, err)

	bySeller2.Items[1].Status = domain.ItemCancelled
	require.NoError(t, repo.Update(context.Background(), bySeller2, []domain.ItemChange{
		{Position: 1, From: domain.ItemPending, To: domain.ItemCancelled},
	}))

	bySeller1.Items[0].Status = domain.ItemConfirmed
	require.NoError(t, repo.Update(context.Background(), bySeller1, []domain.ItemChange{
		{Position: 0, From: domain.ItemPending, To: domain.ItemConfirmed},
	}))

	stored, err := repo.Get(context.Background(), "ord_1")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemConfirmed, stored.Items[0].Status)
	assert.Equal(t, domain.ItemCancelled, stored.Items[1].Status)
}

func TestUpdateStaleFromFailsWholeWrite(t *testing.T) {
	repo := NewRepository()
	require.NoError(t, repo.Save(context.Background(), twoSellerOrder()))

	stale, err := repo.Get(context.Background(), "ord_1")
	require.NoError(t, err)

	fresh, err := repo.Get(context.Background(), "ord_1")
	require.NoError(t, err)
	fresh.Items[0].Status = domain.ItemConfirmed
	require.NoError(t, repo.Update(context.Background(), fresh, []domain.ItemChange{
		{Position: 0, From: domain.ItemPending, To: domain.ItemConfirmed},
	}))

	// The stale copy still believes position 0 is pending.
	stale.Items[0].Status = domain.ItemPreparing
	err = repo.Update(context.Background(), stale, []domain.ItemChange{
		{Position: 0, From: domain.ItemPending, To: domain.ItemPreparing},
	})
	assert.ErrorIs(t, err, domain.ErrStaleOrder)

	stored, err := repo.Get(context.Background(), "ord_1")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemConfirmed, stored.Items[0].Status)
}

func TestUpdateWritesExpectedDelivery(t *testing.T) {
	repo := NewRepository()
	require.NoError(t, repo.Save(context.Background(), twoSellerOrder()))

	o, err := repo.Get(context.Background(), "ord_1")
	require.NoError(t, err)

	eta := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	o.Items[0].Status = domain.ItemConfirmed
	require.NoError(t, repo.Update(context.Background(), o, []domain.ItemChange{
		{Position: 0, From: domain.ItemPending, To: domain.ItemConfirmed, ExpectedDelivery: &eta},
	}))

	stored, err := repo.Get(context.Background(), "ord_1")
	require.NoError(t, err)
	require.NotNil(t, stored.Items[0].ExpectedDelivery)
	assert.True(t, eta.Equal(*stored.Items[0].ExpectedDelivery))
	assert.Nil(t, stored.Items[1].ExpectedDelivery)
}

func TestUpdateUnknownOrder(t *testing.T) {
	repo := NewRepository()

	err := repo.Update(context.Background(), twoSellerOrder(), nil)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
