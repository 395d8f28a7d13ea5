package inventory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshowusu-alt/tillflow/internal/ledger"
	"github.com/joshowusu-alt/tillflow/internal/masterdata/products"
)

type balanceKey struct {
	storeID   int64
	productID int64
}

type memoryTx struct {
	balances  map[balanceKey]Balance
	movements []Movement
}

func newMemoryTx() *memoryTx {
	return &memoryTx{balances: map[balanceKey]Balance{}}
}

func (m *memoryTx) GetBalanceForUpdate(_ context.Context, storeID, productID int64) (Balance, error) {
	b, ok := m.balances[balanceKey{storeID, productID}]
	if !ok {
		return Balance{StoreID: storeID, ProductID: productID}, ErrBalanceNotFound
	}
	return b, nil
}

func (m *memoryTx) UpsertBalance(_ context.Context, balance Balance) error {
	m.balances[balanceKey{balance.StoreID, balance.ProductID}] = balance
	return nil
}

func (m *memoryTx) Decrement(_ context.Context, storeID, productID, qtyBase int64) (Balance, error) {
	if qtyBase <= 0 {
		return Balance{}, ErrInvalidQuantity
	}
	key := balanceKey{storeID, productID}
	b, ok := m.balances[key]
	if !ok || b.QtyOnHandBase < qtyBase {
		return Balance{}, ErrInsufficientStock
	}
	b.QtyOnHandBase -= qtyBase
	m.balances[key] = b
	return b, nil
}

func (m *memoryTx) InsertMovement(_ context.Context, mv Movement) (int64, error) {
	mv.ID = int64(len(m.movements) + 1)
	m.movements = append(m.movements, mv)
	return mv.ID, nil
}

type memoryJournal struct {
	entries []ledger.PostingInput
}

func (m *memoryJournal) Post(_ context.Context, in ledger.PostingInput) (ledger.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	m.entries = append(m.entries, in)
	return ledger.JournalEntry{ID: int64(len(m.entries)), BusinessID: in.BusinessID}, nil
}

func (m *memoryJournal) GetWithLines(_ context.Context, _, _ int64) (ledger.JournalEntry, error) {
	return ledger.JournalEntry{}, ledger.ErrEntryNotFound
}

func (m *memoryJournal) GetByReference(_ context.Context, _ int64, _, _ string) (ledger.JournalEntry, error) {
	return ledger.JournalEntry{}, ledger.ErrEntryNotFound
}

type memoryRepo struct {
	tx      *memoryTx
	journal *memoryJournal
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tx: newMemoryTx(), journal: &memoryJournal{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository, ledger.TxRepository) error) error {
	return fn(ctx, m.tx, m.journal)
}

func (m *memoryRepo) Balance(ctx context.Context, storeID, productID int64) (Balance, error) {
	return m.tx.GetBalanceForUpdate(ctx, storeID, productID)
}

func (m *memoryRepo) ListMovements(_ context.Context, _, _, _ int64, _ int) ([]Movement, error) {
	return m.tx.movements, nil
}

type stubCatalog struct {
	product products.Product
}

func (s *stubCatalog) Get(_ context.Context, _, productID int64) (products.Product, error) {
	if s.product.ID != productID {
		return products.Product{}, products.ErrProductNotFound
	}
	return s.product, nil
}

type stubReasons struct {
	known map[string]bool
}

func (s *stubReasons) IsRecognised(_ context.Context, _ int64, code string) (bool, error) {
	return s.known[code], nil
}

func seedService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	catalog := &stubCatalog{product: products.Product{ID: 7, BusinessID: 1, DefaultCostPence: 400}}
	reasons := &stubReasons{known: map[string]bool{"DAMAGE": true, "STOCK_COUNT": true}}
	return NewService(repo, catalog, nil, reasons), repo
}

func TestIncreaseRecomputesWeightedAverage(t *testing.T) {
	tx := newMemoryTx()
	ctx := context.Background()

	bal, err := Increase(ctx, tx, IncreaseParams{BusinessID: 1, StoreID: 2, ProductID: 7, QtyBase: 10, UnitCostPence: 100, Type: MovementPurchase})
	require.NoError(t, err)
	require.Equal(t, int64(10), bal.QtyOnHandBase)
	require.Equal(t, int64(100), bal.AvgCostBasePence)

	bal, err = Increase(ctx, tx, IncreaseParams{BusinessID: 1, StoreID: 2, ProductID: 7, QtyBase: 10, UnitCostPence: 200, Type: MovementPurchase})
	require.NoError(t, err)
	require.Equal(t, int64(20), bal.QtyOnHandBase)
	require.Equal(t, int64(150), bal.AvgCostBasePence)
}

func TestDecreaseLeavesAverageUnchanged(t *testing.T) {
	tx := newMemoryTx()
	ctx := context.Background()
	_, err := Increase(ctx, tx, IncreaseParams{BusinessID: 1, StoreID: 2, ProductID: 7, QtyBase: 10, UnitCostPence: 150, Type: MovementPurchase})
	require.NoError(t, err)

	bal, err := Decrease(ctx, tx, DecreaseParams{BusinessID: 1, StoreID: 2, ProductID: 7, QtyBase: 4, UnitCostPence: 150, Type: MovementSale})
	require.NoError(t, err)
	require.Equal(t, int64(6), bal.QtyOnHandBase)
	require.Equal(t, int64(150), bal.AvgCostBasePence)
}

func TestDecreaseBelowZeroFails(t *testing.T) {
	tx := newMemoryTx()
	ctx := context.Background()
	_, err := Increase(ctx, tx, IncreaseParams{BusinessID: 1, StoreID: 2, ProductID: 7, QtyBase: 3, UnitCostPence: 100, Type: MovementPurchase})
	require.NoError(t, err)

	_, err = Decrease(ctx, tx, DecreaseParams{BusinessID: 1, StoreID: 2, ProductID: 7, QtyBase: 4, UnitCostPence: 100, Type: MovementSale})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestPositiveAdjustmentPostsGain(t *testing.T) {
	svc, repo := seedService(t)
	ctx := context.Background()

	bal, err := svc.PostAdjustment(ctx, AdjustmentInput{
		BusinessID: 1, StoreID: 2, ProductID: 7,
		QtyBase: 5, UnitCostPence: 300, ReasonCode: "STOCK_COUNT", ActorID: 9,
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), bal.QtyOnHandBase)
	require.Equal(t, int64(300), bal.AvgCostBasePence)

	require.Len(t, repo.journal.entries, 1)
	entry := repo.journal.entries[0]
	require.Equal(t, "STOCK_ADJUSTMENT", entry.ReferenceType)
	require.Equal(t, ledger.AccountInventory, entry.Lines[0].AccountCode)
	require.Equal(t, int64(1500), entry.Lines[0].DebitPence)
	require.Equal(t, ledger.AccountInventoryGain, entry.Lines[1].AccountCode)
	require.Equal(t, int64(1500), entry.Lines[1].CreditPence)
}

func TestNegativeAdjustmentPostsShrinkageAtAverageCost(t *testing.T) {
	svc, repo := seedService(t)
	ctx := context.Background()
	_, err := Increase(ctx, repo.tx, IncreaseParams{BusinessID: 1, StoreID: 2, ProductID: 7, QtyBase: 10, UnitCostPence: 250, Type: MovementPurchase})
	require.NoError(t, err)

	bal, err := svc.PostAdjustment(ctx, AdjustmentInput{
		BusinessID: 1, StoreID: 2, ProductID: 7,
		QtyBase: -4, ReasonCode: "DAMAGE", ActorID: 9,
	})
	require.NoError(t, err)
	require.Equal(t, int64(6), bal.QtyOnHandBase)

	require.Len(t, repo.journal.entries, 1)
	entry := repo.journal.entries[0]
	require.Equal(t, ledger.AccountShrinkage, entry.Lines[0].AccountCode)
	require.Equal(t, int64(1000), entry.Lines[0].DebitPence)
	require.Equal(t, ledger.AccountInventory, entry.Lines[1].AccountCode)
	require.Equal(t, int64(1000), entry.Lines[1].CreditPence)
}

func TestNegativeAdjustmentFallsBackToDefaultCost(t *testing.T) {
	svc, repo := seedService(t)
	ctx := context.Background()
	// Stock exists but its average was never established.
	require.NoError(t, repo.tx.UpsertBalance(ctx, Balance{StoreID: 2, ProductID: 7, QtyOnHandBase: 5}))

	_, err := svc.PostAdjustment(ctx, AdjustmentInput{
		BusinessID: 1, StoreID: 2, ProductID: 7,
		QtyBase: -2, ReasonCode: "DAMAGE", ActorID: 9,
	})
	require.NoError(t, err)

	require.Len(t, repo.journal.entries, 1)
	require.Equal(t, int64(800), repo.journal.entries[0].Lines[0].DebitPence)
}

func TestAdjustmentRejectsUnknownReason(t *testing.T) {
	svc, _ := seedService(t)
	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		BusinessID: 1, StoreID: 2, ProductID: 7,
		QtyBase: 1, UnitCostPence: 100, ReasonCode: "NOT_A_REASON",
	})
	require.Error(t, err)
}

func TestAdjustmentRejectsZeroQuantity(t *testing.T) {
	svc, _ := seedService(t)
	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		BusinessID: 1, StoreID: 2, ProductID: 7,
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestTransferMovesStockAtSourceAverage(t *testing.T) {
	svc, repo := seedService(t)
	ctx := context.Background()
	_, err := Increase(ctx, repo.tx, IncreaseParams{BusinessID: 1, StoreID: 2, ProductID: 7, QtyBase: 10, UnitCostPence: 220, Type: MovementPurchase})
	require.NoError(t, err)

	outBal, inBal, err := svc.PostTransfer(ctx, TransferInput{
		BusinessID: 1, SrcStoreID: 2, DstStoreID: 3, ProductID: 7, QtyBase: 4, ActorID: 9,
	})
	require.NoError(t, err)
	require.Equal(t, int64(6), outBal.QtyOnHandBase)
	require.Equal(t, int64(4), inBal.QtyOnHandBase)
	require.Equal(t, int64(220), inBal.AvgCostBasePence)

	// Transfers keep the inventory asset where it is; no journal entry.
	require.Empty(t, repo.journal.entries)

	types := make([]MovementType, 0, len(repo.tx.movements))
	for _, m := range repo.tx.movements {
		types = append(types, m.Type)
	}
	require.Contains(t, types, MovementTransferOut)
	require.Contains(t, types, MovementTransferIn)
}

func TestTransferRejectsSameStore(t *testing.T) {
	svc, _ := seedService(t)
	_, _, err := svc.PostTransfer(context.Background(), TransferInput{
		BusinessID: 1, SrcStoreID: 2, DstStoreID: 2, ProductID: 7, QtyBase: 1,
	})
	require.Error(t, err)
}

func TestTransferInsufficientStockRollsBack(t *testing.T) {
	svc, repo := seedService(t)
	ctx := context.Background()
	_, err := Increase(ctx, repo.tx, IncreaseParams{BusinessID: 1, StoreID: 2, ProductID: 7, QtyBase: 2, UnitCostPence: 100, Type: MovementPurchase})
	require.NoError(t, err)

	_, _, err = svc.PostTransfer(ctx, TransferInput{
		BusinessID: 1, SrcStoreID: 2, DstStoreID: 3, ProductID: 7, QtyBase: 5,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestResolveAvgCost(t *testing.T) {
	cases := []struct {
		bal   Balance
		found bool
		def   int64
		want  int64
	}{
		{Balance{AvgCostBasePence: 120}, true, 400, 120},
		{Balance{AvgCostBasePence: 0}, true, 400, 400},
		{Balance{}, false, 400, 400},
	}
	for i, tc := range cases {
		require.Equal(t, tc.want, ResolveAvgCost(tc.bal, tc.found, tc.def), fmt.Sprintf("case %d", i))
	}
}
