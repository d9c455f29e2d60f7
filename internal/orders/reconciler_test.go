package orders

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	orders     map[int64]*Order
	lines      map[int64][]SaleLine
	nextOrder  int64
	nextLine   int64
	txError    error
	updateSeen int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		orders:    make(map[int64]*Order),
		lines:     make(map[int64][]SaleLine),
		nextOrder: 1,
		nextLine:  1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockRepository) attachLines(o Order) *Order {
	copied := o
	copied.Lines = append([]SaleLine(nil), m.lines[o.ID]...)
	return &copied
}

func (m *mockRepository) GetByID(_ context.Context, storeID string, id int64) (*Order, error) {
	o, ok := m.orders[id]
	if !ok || o.StoreID != storeID {
		return nil, ErrOrderNotFound
	}
	return m.attachLines(*o), nil
}

func (m *mockRepository) GetByExternalID(_ context.Context, storeID string, channel margin.Channel, externalID string) (*Order, error) {
	for _, o := range m.orders {
		if o.StoreID == storeID && o.Channel == channel && o.ExternalOrderID == externalID {
			return m.attachLines(*o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *mockRepository) FindByExternalID(_ context.Context, storeID, externalID string) (*Order, error) {
	for _, o := range m.orders {
		if o.StoreID == storeID && o.ExternalOrderID == externalID {
			return m.attachLines(*o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *mockRepository) GetByTransactionRef(_ context.Context, storeID, ref string) (*Order, error) {
	for _, o := range m.orders {
		if o.StoreID == storeID && o.TransactionRef != nil && *o.TransactionRef == ref {
			return m.attachLines(*o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *mockRepository) FindByExternalIDPrefix(_ context.Context, storeID, prefix string) (*Order, error) {
	for _, o := range m.orders {
		if o.StoreID == storeID && len(o.ExternalOrderID) >= len(prefix) && o.ExternalOrderID[:len(prefix)] == prefix {
			return m.attachLines(*o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *mockRepository) ListByStatus(_ context.Context, storeID string, status OrderStatus) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if o.StoreID == storeID && o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, order Order) (int64, error) {
	order.ID = m.nextOrder
	m.nextOrder++
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	m.orders[order.ID] = &order
	return order.ID, nil
}

func (m *mockRepository) Update(_ context.Context, order Order) error {
	if _, ok := m.orders[order.ID]; !ok {
		return ErrOrderNotFound
	}
	m.updateSeen++
	order.UpdatedAt = time.Now()
	m.orders[order.ID] = &order
	return nil
}

func (m *mockRepository) ReplaceLines(_ context.Context, orderID int64, lines []SaleLine) error {
	stored := make([]SaleLine, len(lines))
	for i, l := range lines {
		if l.ID == 0 {
			l.ID = m.nextLine
			m.nextLine++
		}
		l.OrderID = orderID
		stored[i] = l
	}
	m.lines[orderID] = stored
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func testReconciler(repo Repository) *Reconciler {
	return NewReconciler(repo, margin.DefaultRates(), nil, nil)
}

func lineFact(ref string, qty, price, cost string) LineFact {
	return LineFact{
		ProductRef:    ref,
		Category:      margin.CategoryInverters,
		Quantity:      decimal.RequireFromString(qty),
		UnitSellPrice: decimal.RequireFromString(price),
		UnitCost:      decimal.RequireFromString(cost),
	}
}

// ============================================================================
// TESTS
// ============================================================================

func TestApplyCreatesProvisionalOrder(t *testing.T) {
	repo := newMockRepository()
	rec := testReconciler(repo)

	res, err := rec.Apply(context.Background(), "store-1", Fact{
		Source:          "email",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "wpT5sgv0",
		ProductRefs:     []string{"SUN2000-12K-MAP0"},
	})
	require.NoError(t, err)

	assert.Equal(t, ApplyProcessed, res.Status)
	require.NotZero(t, res.OrderID)
	order := repo.orders[res.OrderID]
	assert.Equal(t, StatusProvisional, order.Status)
	assert.Equal(t, "wpT5sgv0", order.ExternalOrderID)
	assert.Equal(t, "email", order.LastSource)
}

func TestApplyWholesaleReplaceComputesDerived(t *testing.T) {
	repo := newMockRepository()
	rec := testReconciler(repo)

	pm := margin.PaymentCard
	shipping := dp("30.00")
	res, err := rec.Apply(context.Background(), "store-1", Fact{
		Source:          "payment",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "wpT5sgv0",
		PaymentMethod:   pm,
		ShippingCharged: shipping,
		StatusHint:      StatusEnriched,
		Lines:           []LineFact{lineFact("SUN2000-12K-MAP0", "2", "500.00", "380.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.LinesAffected)

	lines := repo.lines[res.OrderID]
	require.Len(t, lines, 1)
	l := lines[0]
	assert.Equal(t, "1000.00", l.SellTotal.StringFixed(2))
	assert.Equal(t, "30.00", l.ShippingChargedPart.StringFixed(2))
	assert.Equal(t, "1030.00", l.TransactionValue.StringFixed(2))
	assert.Equal(t, "41.10", l.Commission.StringFixed(2))
	assert.Equal(t, "5.00", l.Fee.StringFixed(2))
	assert.Equal(t, "983.90", l.NetReceived.StringFixed(2))
	assert.Equal(t, StatusEnriched, repo.orders[res.OrderID].Status)
}

func TestApplySharedCostAllocationAcrossLines(t *testing.T) {
	repo := newMockRepository()
	rec := testReconciler(repo)

	pm := margin.PaymentWire
	res, err := rec.Apply(context.Background(), "store-1", Fact{
		Source:          "accounting",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "SO-1001",
		PaymentMethod:   pm,
		ShippingCharged: dp("100.00"),
		Lines: []LineFact{
			lineFact("SUN2000-12K-MAP0", "1", "200.00", "0"),
			lineFact("LUNA2000-5-S0", "1", "300.00", "0"),
			lineFact("DONGLE-WLAN-FE1", "1", "0.00", "0"),
		},
	})
	require.NoError(t, err)

	lines := repo.lines[res.OrderID]
	require.Len(t, lines, 3)
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.ShippingChargedPart)
	}
	assert.Equal(t, "100.00", sum.StringFixed(2))
	assert.Equal(t, "40.00", lines[0].ShippingChargedPart.StringFixed(2))
	assert.Equal(t, "60.00", lines[1].ShippingChargedPart.StringFixed(2))
	// Zero-weight last line takes whatever remainder the floors left.
	assert.Equal(t, "0.00", lines[2].ShippingChargedPart.StringFixed(2))
}

func TestApplyMergePreservesExistingFields(t *testing.T) {
	repo := newMockRepository()
	rec := testReconciler(repo)
	ctx := context.Background()

	name := "Jane Smith GmbH"
	_, err := rec.Apply(ctx, "store-1", Fact{
		Source:          "email",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "wpT5sgv0",
		CustomerName:    name,
	})
	require.NoError(t, err)

	// Later fact carries a different name; the existing one must stand.
	res, err := rec.Apply(ctx, "store-1", Fact{
		Source:          "scrape",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "wpT5sgv0",
		CustomerName:    "J. Smith",
		StatusHint:      StatusEnriched,
	})
	require.NoError(t, err)

	order := repo.orders[res.OrderID]
	require.NotNil(t, order.CustomerName)
	assert.Equal(t, name, *order.CustomerName)
	assert.Equal(t, "scrape", order.LastSource)
}

func TestApplyStatusNeverDowngrades(t *testing.T) {
	repo := newMockRepository()
	rec := testReconciler(repo)
	ctx := context.Background()

	res, err := rec.Apply(ctx, "store-1", Fact{
		Source:          "scrape",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "wpT5sgv0",
		StatusHint:      StatusNeedsCompletion,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsCompletion, repo.orders[res.OrderID].Status)

	_, err = rec.Apply(ctx, "store-1", Fact{
		Source:          "email",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "wpT5sgv0",
		StatusHint:      StatusEnriched,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsCompletion, repo.orders[res.OrderID].Status)
}

func TestApplyNeverValidates(t *testing.T) {
	repo := newMockRepository()
	rec := testReconciler(repo)

	res, err := rec.Apply(context.Background(), "store-1", Fact{
		Source:          "accounting",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "SO-1001",
		StatusHint:      StatusValidated,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusProvisional, repo.orders[res.OrderID].Status)
}

func TestApplyMatchOnlyNotFound(t *testing.T) {
	repo := newMockRepository()
	rec := testReconciler(repo)

	_, err := rec.Apply(context.Background(), "store-1", Fact{
		Source:          "shipment",
		ExternalOrderID: "unknown-99",
		MatchOnly:       true,
	})
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestApplyShipmentMatchesOrderCodeWithoutChannel(t *testing.T) {
	repo := newMockRepository()
	rec := testReconciler(repo)
	ctx := context.Background()

	first, err := rec.Apply(ctx, "store-1", Fact{
		Source:          "accounting",
		Channel:         margin.ChannelSecondSol,
		ExternalOrderID: "SO-42",
	})
	require.NoError(t, err)

	// Shipment facts carry the order code but no channel and no transaction
	// ref; a code too short for the prefix heuristic must still match exactly.
	res, err := rec.Apply(ctx, "store-1", Fact{
		Source:          "shipment",
		ExternalOrderID: "SO-42",
		MatchOnly:       true,
		Tracking:        &TrackingUpdate{Number: "00340434218", Status: "delivered"},
	})
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, res.OrderID)

	order := repo.orders[res.OrderID]
	require.NotNil(t, order.TrackingNumber)
	assert.Equal(t, "00340434218", *order.TrackingNumber)
}

func TestApplyShipmentMatchesByTransactionRef(t *testing.T) {
	repo := newMockRepository()
	rec := testReconciler(repo)
	ctx := context.Background()

	pm := margin.PaymentWire
	first, err := rec.Apply(ctx, "store-1", Fact{
		Source:          "payment",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "wpT5sgv0",
		TransactionRef:  "pi_3abc",
		PaymentMethod:   pm,
		Lines:           []LineFact{lineFact("SUN2000-12K-MAP0", "1", "500.00", "380.00")},
	})
	require.NoError(t, err)

	res, err := rec.Apply(ctx, "store-1", Fact{
		Source:           "shipment",
		TransactionRef:   "pi_3abc",
		MatchOnly:        true,
		RealShippingCost: dp("24.90"),
		Tracking:         &TrackingUpdate{Number: "00340434217", Status: "in_transit"},
	})
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, res.OrderID)

	order := repo.orders[res.OrderID]
	require.NotNil(t, order.TrackingNumber)
	assert.Equal(t, "00340434217", *order.TrackingNumber)

	// Real cost reallocated onto the existing line without touching identity.
	lines := repo.lines[res.OrderID]
	require.Len(t, lines, 1)
	assert.Equal(t, "24.90", lines[0].ShippingCostPart.StringFixed(2))
	assert.Equal(t, "404.90", lines[0].TotalCost.StringFixed(2))
}

func TestApplyReplacePreservesEnrichment(t *testing.T) {
	repo := newMockRepository()
	rec := testReconciler(repo)
	ctx := context.Background()

	pm := margin.PaymentWire
	first, err := rec.Apply(ctx, "store-1", Fact{
		Source:          "accounting",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "SO-1001",
		TransactionRef:  "pi_3abc",
		PaymentMethod:   pm,
		Lines:           []LineFact{lineFact("SUN2000-12K-MAP0", "1", "500.00", "380.00")},
	})
	require.NoError(t, err)

	// Shipment enriches the line set at the order level.
	_, err = rec.Apply(ctx, "store-1", Fact{
		Source:           "shipment",
		TransactionRef:   "pi_3abc",
		MatchOnly:        true,
		RealShippingCost: dp("24.90"),
	})
	require.NoError(t, err)

	// A repeated accounting sync replaces all lines wholesale; the real
	// shipping cost must survive because the ref matches.
	res, err := rec.Apply(ctx, "store-1", Fact{
		Source:          "accounting",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "SO-1001",
		Lines:           []LineFact{lineFact("HUAWEI SUN2000-12K-MAP0", "1", "510.00", "0")},
	})
	require.NoError(t, err)
	require.Equal(t, first.OrderID, res.OrderID)

	lines := repo.lines[res.OrderID]
	require.Len(t, lines, 1)
	assert.Equal(t, "24.90", lines[0].ShippingCostPart.StringFixed(2))
	// Zero cost in the new fact falls back to the previous unit cost.
	assert.Equal(t, "380.00", lines[0].UnitCost.StringFixed(2))
	assert.Equal(t, "510.00", lines[0].SellTotal.StringFixed(2))
}

func TestApplyRecomputeIsDeterministic(t *testing.T) {
	repo := newMockRepository()
	rec := testReconciler(repo)
	ctx := context.Background()

	pm := margin.PaymentCard
	fact := Fact{
		Source:          "payment",
		Channel:         margin.ChannelSunStore,
		ExternalOrderID: "wpT5sgv0",
		PaymentMethod:   pm,
		ShippingCharged: dp("30.00"),
		Lines:           []LineFact{lineFact("SUN2000-12K-MAP0", "2", "500.00", "380.00")},
	}

	res1, err := rec.Apply(ctx, "store-1", fact)
	require.NoError(t, err)
	snap1 := append([]SaleLine(nil), repo.lines[res1.OrderID]...)

	res2, err := rec.Apply(ctx, "store-1", fact)
	require.NoError(t, err)
	snap2 := repo.lines[res2.OrderID]

	require.Equal(t, len(snap1), len(snap2))
	for i := range snap1 {
		assert.True(t, snap1[i].NetMargin.Equal(snap2[i].NetMargin))
		assert.True(t, snap1[i].Commission.Equal(snap2[i].Commission))
		assert.True(t, snap1[i].NetMarginPct.Equal(snap2[i].NetMarginPct))
	}
}
