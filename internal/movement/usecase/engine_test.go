package usecase

import (
	"context"
	"errors"
	"math"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fekuna/omnipos-stock-service/internal/cache"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	"github.com/fekuna/omnipos-stock-service/internal/lock"
	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/fekuna/omnipos-stock-service/internal/metrics"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/movement"
	"github.com/fekuna/omnipos-stock-service/internal/movement/dto"
	"github.com/fekuna/omnipos-stock-service/internal/movement/repository"
	"github.com/fekuna/omnipos-stock-service/internal/testutil"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.MovementEvent
	err    error
}

func (p *recordingPublisher) PublishMovement(_ context.Context, evt *events.MovementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error {
	return nil
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) InvalidateListCache(context.Context) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func ledger(t *testing.T, uc movement.UseCase, itemID string) []model.StockMovementView {
	t.Helper()
	list, err := uc.ListMovements(context.Background(), &dto.MovementFilters{ItemID: itemID, Limit: 100})
	require.NoError(t, err)
	return list.Items
}

func outMovement(id string, q int) *dto.MovementInput {
	return &dto.MovementInput{ItemID: id, Kind: model.MovementOut, Quantity: q, Reason: "order 42", ActorID: "user-1"}
}

func TestApplyMovementSimple(t *testing.T) {
	pub := &recordingPublisher{}
	inv := &countingInvalidator{}
	uc, db := newUseCase(t, Options{Publisher: pub, Cache: inv})
	ctx := context.Background()
	bulb := testutil.SeedItem(t, db, "BULB", 10)

	res, err := uc.ApplyMovement(ctx, &dto.MovementInput{ItemID: bulb.ID, Kind: model.MovementIn, Quantity: 5, Reason: "restock"})
	require.NoError(t, err)
	assert.Equal(t, 10, res.PreviousQuantity)
	assert.Equal(t, 15, res.NewQuantity)
	assert.Empty(t, res.Cascade)
	assert.Equal(t, 15, testutil.Quantity(t, db, bulb.ID))

	res, err = uc.ApplyMovement(ctx, outMovement(bulb.ID, 15))
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewQuantity)

	res, err = uc.ApplyMovement(ctx, &dto.MovementInput{ItemID: bulb.ID, Kind: model.MovementAdjustment, Quantity: 7})
	require.NoError(t, err)
	assert.Equal(t, 0, res.PreviousQuantity)
	assert.Equal(t, 7, res.NewQuantity)

	entries := ledger(t, uc, bulb.ID)
	require.Len(t, entries, 3)
	assert.Equal(t, model.MovementAdjustment, entries[0].MovementType)
	assert.Nil(t, entries[0].Reason)
	assert.Nil(t, entries[0].ActorID)
	assert.Equal(t, model.MovementOut, entries[1].MovementType)
	require.NotNil(t, entries[1].Reason)
	assert.Equal(t, "order 42", *entries[1].Reason)
	require.NotNil(t, entries[1].ActorID)
	assert.Equal(t, "user-1", *entries[1].ActorID)
	assert.False(t, entries[1].IsCascade)
	assert.Nil(t, entries[1].ParentMovementID)
	require.NotNil(t, entries[2].ItemSKU)
	assert.Equal(t, "BULB", *entries[2].ItemSKU)

	require.Len(t, pub.events, 3)
	assert.Equal(t, events.RoutingKeyStockMoved, pub.events[0].EventType)
	assert.Equal(t, 15, pub.events[0].New)
	assert.Equal(t, 3, inv.calls)
}

func TestApplyMovementBySKU(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	bulb := testutil.SeedItem(t, db, "BULB", 10)

	res, err := uc.ApplyMovement(context.Background(), &dto.MovementInput{SKU: "BULB", Kind: model.MovementOut, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, bulb.ID, res.ItemID)
	assert.Equal(t, 9, testutil.Quantity(t, db, bulb.ID))

	_, err = uc.ApplyMovement(context.Background(), &dto.MovementInput{SKU: "NOPE", Kind: model.MovementOut, Quantity: 1})
	assert.ErrorIs(t, err, movement.ErrNotFound)
}

func TestApplyMovementCompositeCascade(t *testing.T) {
	pub := &recordingPublisher{}
	uc, db := newUseCase(t, Options{Publisher: pub})
	lk := seedLampKit(t, db)

	res, err := uc.ApplyMovement(context.Background(), outMovement(lk.kit.ID, 3))
	require.NoError(t, err)

	assert.Equal(t, 4, testutil.Quantity(t, db, lk.bulb.ID))
	assert.Equal(t, 0, testutil.Quantity(t, db, lk.base.ID))
	assert.Equal(t, 2, testutil.Quantity(t, db, lk.kit.ID))
	assert.Equal(t, 5, res.PreviousQuantity)
	assert.Equal(t, 2, res.NewQuantity)
	require.Len(t, res.Cascade, 2)
	assert.Equal(t, "BULB", res.Cascade[0].SKU)
	assert.Equal(t, 6, res.Cascade[0].Quantity)
	assert.Equal(t, "BASE", res.Cascade[1].SKU)
	assert.Equal(t, 3, res.Cascade[1].Quantity)

	all := ledger(t, uc, "")
	require.Len(t, all, 3)
	top := all[0]
	assert.Equal(t, lk.kit.ID, top.ItemID)
	assert.Equal(t, res.MovementID, top.ID)
	assert.False(t, top.IsCascade)
	for _, m := range all[1:] {
		assert.True(t, m.IsCascade)
		require.NotNil(t, m.ParentMovementID)
		assert.Equal(t, top.ID, *m.ParentMovementID)
		require.NotNil(t, m.Reason)
		assert.Equal(t, "auto: composite LAMP-KIT movement: order 42", *m.Reason)
		assert.True(t, top.CreatedAt.Equal(m.CreatedAt))
	}

	require.Len(t, pub.events, 1)
	assert.Len(t, pub.events[0].Touched, 3)
}

func TestApplyMovementInsufficientStockWritesNothing(t *testing.T) {
	m := metrics.New()
	uc, db := newUseCase(t, Options{Metrics: m})
	lk := seedLampKit(t, db)

	_, err := uc.ApplyMovement(context.Background(), outMovement(lk.kit.ID, 4))
	require.ErrorIs(t, err, movement.ErrInsufficientStock)

	var short *movement.InsufficientStockError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, "BASE", short.SKU)
	assert.Equal(t, 4, short.Required)
	assert.Equal(t, 3, short.Available)
	assert.Equal(t, 1, short.Missing)
	assert.Len(t, short.Shortages, 1)

	assert.Equal(t, 10, testutil.Quantity(t, db, lk.bulb.ID))
	assert.Equal(t, 3, testutil.Quantity(t, db, lk.base.ID))
	assert.Equal(t, 5, testutil.Quantity(t, db, lk.kit.ID))
	assert.Equal(t, 0, testutil.MovementCount(t, db, ""))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, w.Body.String(), `stock_movement_rejections_total{reason="insufficient_stock"} 1`)
}

func TestApplyMovementReportsEveryShortage(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	lk := seedLampKit(t, db)

	_, err := uc.ApplyMovement(context.Background(), outMovement(lk.kit.ID, 6))
	var short *movement.InsufficientStockError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, "BULB", short.SKU)
	require.Len(t, short.Shortages, 2)
	assert.Equal(t, 12, short.Shortages[0].Required)
	assert.Equal(t, "BASE", short.Shortages[1].SKU)
}

func TestApplyMovementNested(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	lk := seedLampKit(t, db)
	top := testutil.SeedItem(t, db, "KIT-OF-KITS", 0)
	testutil.SeedEdge(t, db, top, lk.kit, 1)
	ctx := context.Background()

	res, err := uc.ApplyMovement(ctx, outMovement(top.ID, 2))
	require.NoError(t, err)
	assert.Equal(t, 6, testutil.Quantity(t, db, lk.bulb.ID))
	assert.Equal(t, 1, testutil.Quantity(t, db, lk.base.ID))
	// Intermediate composites are walked through, not written.
	assert.Equal(t, 5, testutil.Quantity(t, db, lk.kit.ID))
	assert.Len(t, res.Cascade, 2)
	assert.Equal(t, 3, testutil.MovementCount(t, db, ""))

	n, err := uc.ResolveMaxAssemblable(ctx, top.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApplyMovementSharedComponentAggregatesDemand(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	lk := seedLampKit(t, db)
	bundle := testutil.SeedItem(t, db, "BUNDLE", 0)
	testutil.SeedEdge(t, db, bundle, lk.kit, 1)
	testutil.SeedEdge(t, db, bundle, lk.bulb, 2)

	// 3 bundles need 6 bulbs through the kit and 6 directly.
	_, err := uc.ApplyMovement(context.Background(), outMovement(bundle.ID, 3))
	var short *movement.InsufficientStockError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, "BULB", short.SKU)
	assert.Equal(t, 12, short.Required)
	assert.Equal(t, 10, short.Available)
	assert.Equal(t, 10, testutil.Quantity(t, db, lk.bulb.ID))

	_, err = uc.ApplyMovement(context.Background(), outMovement(bundle.ID, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, testutil.Quantity(t, db, lk.bulb.ID))
	assert.Equal(t, 1, testutil.Quantity(t, db, lk.base.ID))
}

func TestApplyMovementCompositeInAndAdjustment(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	lk := seedLampKit(t, db)
	ctx := context.Background()

	_, err := uc.ApplyMovement(ctx, &dto.MovementInput{ItemID: lk.kit.ID, Kind: model.MovementIn, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 14, testutil.Quantity(t, db, lk.bulb.ID))
	assert.Equal(t, 5, testutil.Quantity(t, db, lk.base.ID))
	assert.Equal(t, 7, testutil.Quantity(t, db, lk.kit.ID))

	_, err = uc.ApplyMovement(ctx, &dto.MovementInput{ItemID: lk.kit.ID, Kind: model.MovementAdjustment, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, testutil.Quantity(t, db, lk.bulb.ID))
	assert.Equal(t, 1, testutil.Quantity(t, db, lk.base.ID))
	assert.Equal(t, 1, testutil.Quantity(t, db, lk.kit.ID))
}

func TestApplyMovementEmptyComposite(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	empty := testutil.SeedItem(t, db, "EMPTY", 4)
	_, err := db.Exec(`UPDATE stock_items SET is_composite = 1 WHERE id = ?`, empty.ID)
	require.NoError(t, err)

	_, err = uc.ApplyMovement(context.Background(), outMovement(empty.ID, 1))
	var short *movement.InsufficientStockError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, "EMPTY", short.SKU)
	assert.Equal(t, 0, short.Available)

	res, err := uc.ApplyMovement(context.Background(), &dto.MovementInput{ItemID: empty.ID, Kind: model.MovementIn, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, res.NewQuantity)
	assert.Empty(t, res.Cascade)
}

func TestApplyMovementRejectsInvalidInput(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	bulb := testutil.SeedItem(t, db, "BULB", 10)
	ctx := context.Background()

	cases := []*dto.MovementInput{
		{ItemID: bulb.ID, Kind: "transfer", Quantity: 1},
		{ItemID: bulb.ID, Kind: model.MovementIn, Quantity: 0},
		{ItemID: bulb.ID, Kind: model.MovementOut, Quantity: -3},
		{Kind: model.MovementIn, Quantity: 1},
	}
	for _, in := range cases {
		_, err := uc.ApplyMovement(ctx, in)
		assert.ErrorIs(t, err, movement.ErrInvalidMovement, "%+v", in)
	}

	_, err := uc.ApplyMovement(ctx, outMovement("missing", 1))
	assert.ErrorIs(t, err, movement.ErrNotFound)
	assert.Equal(t, 10, testutil.Quantity(t, db, bulb.ID))
	assert.Equal(t, 0, testutil.MovementCount(t, db, ""))
}

func TestApplyMovementCycle(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	a := testutil.SeedItem(t, db, "A", 1)
	b := testutil.SeedItem(t, db, "B", 1)
	testutil.SeedEdge(t, db, a, b, 1)
	testutil.SeedEdge(t, db, b, a, 1)

	_, err := uc.ApplyMovement(context.Background(), outMovement(a.ID, 1))
	assert.ErrorIs(t, err, movement.ErrCyclicBOM)
	assert.Equal(t, 0, testutil.MovementCount(t, db, ""))
}

func TestApplyMovementPublishFailureKeepsCommit(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	uc, db := newUseCase(t, Options{Publisher: pub})
	bulb := testutil.SeedItem(t, db, "BULB", 10)

	_, err := uc.ApplyMovement(context.Background(), outMovement(bulb.ID, 1))
	require.NoError(t, err)
	assert.Equal(t, 9, testutil.Quantity(t, db, bulb.ID))
	assert.Len(t, pub.events, 1)
}

func runConcurrentOuts(t *testing.T, uc movement.UseCase, id string, n int) (ok, short int) {
	t.Helper()
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.ApplyMovement(context.Background(), outMovement(id, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, movement.ErrInsufficientStock):
				short++
			default:
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	return ok, short
}

func TestApplyMovementConcurrentNeverOverdraws(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	lk := seedLampKit(t, db)

	ok, short := runConcurrentOuts(t, uc, lk.kit.ID, 8)
	assert.Equal(t, 3, ok)
	assert.Equal(t, 5, short)
	assert.Equal(t, 0, testutil.Quantity(t, db, lk.base.ID))
	assert.Equal(t, 4, testutil.Quantity(t, db, lk.bulb.ID))
	assert.Equal(t, 9, testutil.MovementCount(t, db, ""))
}

func TestApplyMovementWithRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisClient(&cache.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	db := testutil.SetupTestDB(t)
	locker := lock.NewRedisLocker(rc, lock.RedisConfig{TTL: 5 * time.Second, Attempts: 500, RetryDelay: time.Millisecond}, logger.NewNop())
	uc := NewMovementUseCase(repository.NewSQLiteRepository(db), locker, Options{}, logger.NewNop())
	bulb := testutil.SeedItem(t, db, "BULB", 4)

	ok, short := runConcurrentOuts(t, uc, bulb.ID, 6)
	assert.Equal(t, 4, ok)
	assert.Equal(t, 2, short)
	assert.Equal(t, 0, testutil.Quantity(t, db, bulb.ID))
	assert.Empty(t, mr.Keys())
}

// shiftingRepo adds a component to the kit right after the first plan read its edges, the way
// a concurrent BOM edit would.
type shiftingRepo struct {
	movement.Repository
	db    *sqlx.DB
	t     *testing.T
	kitID string
	extra *model.StockItem
	once  sync.Once
	calls int
}

func (r *shiftingRepo) ListComponents(ctx context.Context, mainID string) ([]model.BOMEdge, error) {
	edges, err := r.Repository.ListComponents(ctx, mainID)
	if mainID == r.kitID {
		r.calls++
		r.once.Do(func() {
			kit := &model.StockItem{BaseModel: model.BaseModel{ID: r.kitID}}
			testutil.SeedEdge(r.t, r.db, kit, r.extra, 1)
		})
	}
	return edges, err
}

func TestApplyMovementReplansWhenBOMChanges(t *testing.T) {
	db := testutil.SetupTestDB(t)
	lk := seedLampKit(t, db)
	strap := testutil.SeedItem(t, db, "STRAP", 5)
	repo := &shiftingRepo{Repository: repository.NewSQLiteRepository(db), db: db, t: t, kitID: lk.kit.ID, extra: strap}
	uc := NewMovementUseCase(repo, lock.NewKeyedMutex(), Options{}, logger.NewNop())

	res, err := uc.ApplyMovement(context.Background(), outMovement(lk.kit.ID, 1))
	require.NoError(t, err)
	assert.Len(t, res.Cascade, 3)
	assert.Equal(t, 4, testutil.Quantity(t, db, strap.ID))
	assert.Equal(t, 3, repo.calls)
}

func TestApplyMovementOutThenInRestoresQuantity(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	ctx := context.Background()
	bulb := testutil.SeedItem(t, db, "BULB", 10)

	_, err := uc.ApplyMovement(ctx, outMovement(bulb.ID, 4))
	require.NoError(t, err)
	_, err = uc.ApplyMovement(ctx, &dto.MovementInput{ItemID: bulb.ID, Kind: model.MovementIn, Quantity: 4})
	require.NoError(t, err)

	assert.Equal(t, 10, testutil.Quantity(t, db, bulb.ID))
	entries := ledger(t, uc, bulb.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, model.MovementIn, entries[0].MovementType)
	assert.Equal(t, 6, entries[0].PreviousQuantity)
	assert.Equal(t, 10, entries[0].NewQuantity)
	assert.Equal(t, model.MovementOut, entries[1].MovementType)
	assert.Equal(t, 10, entries[1].PreviousQuantity)
	assert.Equal(t, 6, entries[1].NewQuantity)
}

func TestApplyMovementAdjustmentSumsSharedComponent(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	ctx := context.Background()
	kit := testutil.SeedItem(t, db, "KIT", 0)
	sub := testutil.SeedItem(t, db, "SUB", 0)
	bulb := testutil.SeedItem(t, db, "BULB", 50)
	testutil.SeedEdge(t, db, kit, bulb, 2)
	testutil.SeedEdge(t, db, kit, sub, 1)
	testutil.SeedEdge(t, db, sub, bulb, 1)

	res, err := uc.ApplyMovement(ctx, &dto.MovementInput{ItemID: kit.ID, Kind: model.MovementAdjustment, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, res.Cascade, 1)
	assert.Equal(t, 3, res.Cascade[0].Quantity)
	assert.Equal(t, 50, res.Cascade[0].PreviousQuantity)
	assert.Equal(t, 3, res.Cascade[0].NewQuantity)

	assert.Equal(t, 3, testutil.Quantity(t, db, bulb.ID))
	assert.Equal(t, 1, testutil.MovementCount(t, db, bulb.ID))

	n, err := uc.ResolveMaxAssemblable(ctx, kit.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApplyMovementInOverflowIsInvalid(t *testing.T) {
	uc, db := newUseCase(t, Options{})
	ctx := context.Background()
	bulb := testutil.SeedItem(t, db, "BULB", 10)

	_, err := uc.ApplyMovement(ctx, &dto.MovementInput{ItemID: bulb.ID, Kind: model.MovementIn, Quantity: math.MaxInt})
	assert.ErrorIs(t, err, movement.ErrInvalidMovement)
	assert.Equal(t, 10, testutil.Quantity(t, db, bulb.ID))

	kit := testutil.SeedItem(t, db, "KIT", 1)
	part := testutil.SeedItem(t, db, "PART", 0)
	testutil.SeedEdge(t, db, kit, part, 1)
	_, err = uc.ApplyMovement(ctx, &dto.MovementInput{ItemID: kit.ID, Kind: model.MovementIn, Quantity: math.MaxInt})
	assert.ErrorIs(t, err, movement.ErrInvalidMovement)
	assert.Equal(t, 0, testutil.MovementCount(t, db, ""))
}

func TestPlannerAndResolverShareDepthLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewSQLiteRepository(db)
	leaf := testutil.SeedItem(t, db, "L0", 100)
	prev := leaf
	for _, sku := range []string{"L1", "L2", "L3"} {
		next := testutil.SeedItem(t, db, sku, 0)
		testutil.SeedEdge(t, db, next, prev, 1)
		prev = next
	}
	ctx := context.Background()

	// L0 sits three levels below L3.
	atLimit := NewMovementUseCase(repo, lock.NewKeyedMutex(), Options{MaxDepth: 3}, logger.NewNop())
	n, err := atLimit.ResolveMaxAssemblable(ctx, prev.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	_, err = atLimit.ApplyMovement(ctx, outMovement(prev.ID, 1))
	require.NoError(t, err)

	pastLimit := NewMovementUseCase(repo, lock.NewKeyedMutex(), Options{MaxDepth: 2}, logger.NewNop())
	_, err = pastLimit.ResolveMaxAssemblable(ctx, prev.ID)
	assert.ErrorIs(t, err, movement.ErrCyclicBOM)
	_, err = pastLimit.ApplyMovement(ctx, outMovement(prev.ID, 1))
	assert.ErrorIs(t, err, movement.ErrCyclicBOM)
}
