package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/repository"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "rzp_test_secret"

type fixture struct {
	repo     *repository.FileRepository
	pipeline *Pipeline
	recorder *recordingRecorder
}

type recordingRecorder struct {
	mu      sync.Mutex
	entries []models.Activity
}

func (r *recordingRecorder) Record(entry models.Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) ListProducts(ctx context.Context) ([]models.Product, error) {
	args := m.Called(ctx)
	products, _ := args.Get(0).([]models.Product)
	return products, args.Error(1)
}

func (m *mockCatalog) SaveProducts(ctx context.Context, products []models.Product) error {
	return m.Called(ctx, products).Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishOrderPlaced(ctx context.Context, order models.Order) error {
	return m.Called(ctx, order).Error(0)
}

// flakyLedger reports a collision for the first n appends.
type flakyLedger struct {
	repository.OrderLedger
	collisions int
	seen       []string
}

func (l *flakyLedger) AppendOrder(ctx context.Context, order models.Order) error {
	l.seen = append(l.seen, order.ID)
	if l.collisions > 0 {
		l.collisions--
		return repository.ErrDuplicateOrder
	}
	return l.OrderLedger.AppendOrder(ctx, order)
}

type failingUsers struct {
	repository.UserStore
}

func (failingUsers) UpdateUser(context.Context, string, func(*models.User) error) error {
	return errors.New("disk full")
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	repo, err := repository.NewFileRepository(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, repo.SaveProducts(ctx, []models.Product{
		{Title: "Bamboo Chair v1", Price: 690, Images: []string{"/uploads/chair.jpg", "/uploads/chair2.jpg"}},
		{Title: "Bamboo Stool", Price: 1200},
	}))
	require.NoError(t, repo.SaveCredentials(ctx, models.Credentials{KeyID: "rzp_test_key", KeySecret: testSecret}))

	rec := &recordingRecorder{}
	opts = append([]Option{WithLogger(zap.NewNop()), WithRecorder(rec)}, opts...)
	return &fixture{
		repo:     repo,
		pipeline: NewPipeline(repo, repo, repo, repo, opts...),
		recorder: rec,
	}
}

func (f *fixture) addUser(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.repo.CreateUser(context.Background(), models.User{
		ID:    id,
		Email: id + "@example.com",
		Name:  "Test User",
		Cart:  []models.CartLine{{Title: "Bamboo Stool", Quantity: 1}},
	}))
}

func codRequest() PlaceRequest {
	return PlaceRequest{
		Type: "COD",
		Items: []models.CartLine{
			{Title: "Bamboo Chair v1", Quantity: 2},
			{Title: "Bamboo Stool", Quantity: 1},
		},
		UserDetails: CustomerDetails{Name: "Asha", Phone: "9999999999", Address: "12 MG Road"},
	}
}

func onlineRequest(signature string) PlaceRequest {
	req := codRequest()
	req.Type = "ONLINE"
	req.PaymentData = PaymentData{
		GatewayOrderID:   "order_Mx1",
		GatewayPaymentID: "pay_Mx2",
		Signature:        signature,
	}
	return req
}

func TestPlaceCashOnDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.pipeline.Place(ctx, "", codRequest())
	require.NoError(t, err)

	assert.Regexp(t, idPattern, order.ID)
	assert.EqualValues(t, 2580, order.Total)
	assert.Equal(t, models.CashOnDelivery, order.OrderType)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.Nil(t, order.PaymentID)
	assert.Equal(t, models.StatusProcessing, order.Status)
	assert.Equal(t, models.GuestUserID, order.UserID)
	assert.Equal(t, "Asha", order.CustomerName)

	require.Len(t, order.Items, 2)
	assert.Equal(t, models.LineItem{Title: "Bamboo Chair v1", Price: 690, Quantity: 2, Image: "/uploads/chair.jpg"}, order.Items[0])
	assert.Equal(t, models.LineItem{Title: "Bamboo Stool", Price: 1200, Quantity: 1, Image: ""}, order.Items[1])
}

func TestPlaceIgnoresClientPrices(t *testing.T) {
	f := newFixture(t)

	// CartLine carries no price; extra JSON fields from the client are dropped
	// on decode, so the total can only come from the catalog.
	req := codRequest()
	req.Items = []models.CartLine{{Title: "Bamboo Stool", Quantity: 3}}

	order, err := f.pipeline.Place(context.Background(), "", req)
	require.NoError(t, err)
	assert.EqualValues(t, 3600, order.Total)
}

func TestPlaceOnlineWithValidSignature(t *testing.T) {
	f := newFixture(t)
	sig := payment.Sign("order_Mx1", "pay_Mx2", testSecret)

	order, err := f.pipeline.Place(context.Background(), "", onlineRequest(sig))
	require.NoError(t, err)

	assert.Equal(t, models.OnlinePayment, order.OrderType)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
	require.NotNil(t, order.PaymentID)
	assert.Equal(t, "pay_Mx2", *order.PaymentID)
	assert.EqualValues(t, 2580, order.Total)
}

func TestPlaceOnlineWithMutatedSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sig := []byte(payment.Sign("order_Mx1", "pay_Mx2", testSecret))
	if sig[0] == '0' {
		sig[0] = '1'
	} else {
		sig[0] = '0'
	}

	order, err := f.pipeline.Place(ctx, "", onlineRequest(string(sig)))
	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrPaymentInvalid)
	assert.Equal(t, KindAuthentication, KindOf(err))

	orders, err := f.repo.ListOrders(ctx)
	require.NoError(t, err)
	for _, o := range orders {
		assert.NotEqual(t, int64(2580), o.Total)
	}
	assert.Empty(t, orders)
}

func TestPlaceOnlineMissingPaymentData(t *testing.T) {
	f := newFixture(t)
	sig := payment.Sign("order_Mx1", "pay_Mx2", testSecret)

	cases := map[string]func(*PaymentData){
		"order id":   func(d *PaymentData) { d.GatewayOrderID = "" },
		"payment id": func(d *PaymentData) { d.GatewayPaymentID = "" },
		"signature":  func(d *PaymentData) { d.Signature = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := onlineRequest(sig)
			mutate(&req.PaymentData)

			_, err := f.pipeline.Place(context.Background(), "", req)
			assert.ErrorIs(t, err, ErrPaymentDataMissing)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestPlaceOnlineWithoutCredentialsFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.SaveCredentials(ctx, models.Credentials{}))

	// A signature made with an empty key must not pass either.
	sig := payment.Sign("order_Mx1", "pay_Mx2", "")
	_, err := f.pipeline.Place(ctx, "", onlineRequest(sig))
	assert.ErrorIs(t, err, ErrPaymentUnavailable)
	assert.Equal(t, KindConfiguration, KindOf(err))

	// Cash on delivery keeps working.
	_, err = f.pipeline.Place(ctx, "", codRequest())
	assert.NoError(t, err)
}

func TestPlaceRegisteredUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "user_1")

	order, err := f.pipeline.Place(ctx, "user_1", codRequest())
	require.NoError(t, err)
	assert.Equal(t, "user_1", order.UserID)

	user, err := f.repo.FindUser(ctx, "user_1")
	require.NoError(t, err)
	assert.NotNil(t, user.Cart)
	assert.Empty(t, user.Cart)
	require.Len(t, user.Orders, 1)
	assert.Equal(t, order.ID, user.Orders[0].ID)
	assert.EqualValues(t, 2580, user.Orders[0].Total)

	orders, err := f.repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)
}

func TestPlaceGuestNeverTouchesUsers(t *testing.T) {
	repo, err := repository.NewFileRepository(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, repo.SaveProducts(ctx, []models.Product{{Title: "Bamboo Stool", Price: 1200}}))

	// A nil UserStore would panic if the pipeline reached for it.
	p := NewPipeline(repo, nil, repo, repo)
	order, err := p.Place(ctx, models.GuestUserID, PlaceRequest{
		Type:  "COD",
		Items: []models.CartLine{{Title: "Bamboo Stool", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.GuestUserID, order.UserID)

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.GuestUserID, orders[0].UserID)
}

func TestPlaceUnknownUserStillRecordsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.pipeline.Place(ctx, "user_missing", codRequest())
	require.NoError(t, err)

	orders, err := f.repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)
	assert.Equal(t, "user_missing", orders[0].UserID)
}

func TestPlaceUserCopyFailureStillAcknowledges(t *testing.T) {
	repo, err := repository.NewFileRepository(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, repo.SaveProducts(ctx, []models.Product{{Title: "Bamboo Stool", Price: 1200}}))

	p := NewPipeline(repo, failingUsers{repo}, repo, repo)
	order, err := p.Place(ctx, "user_1", PlaceRequest{
		Type:  "COD",
		Items: []models.CartLine{{Title: "Bamboo Stool", Quantity: 1}},
	})
	require.NoError(t, err)

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.ID, orders[0].ID)
}

func TestPlaceEmptyCartSkipsCatalog(t *testing.T) {
	catalog := new(mockCatalog)
	p := NewPipeline(catalog, nil, nil, nil)

	_, err := p.Place(context.Background(), "", PlaceRequest{Type: "COD"})
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, KindValidation, KindOf(err))
	catalog.AssertNotCalled(t, "ListProducts", mock.Anything)
}

func TestPlaceNoValidItems(t *testing.T) {
	f := newFixture(t)

	req := codRequest()
	req.Items = []models.CartLine{
		{Title: "bamboo stool", Quantity: 1},
		{Title: "Teak Table", Quantity: 1},
		{Title: "Bamboo Stool", Quantity: 0},
	}
	_, err := f.pipeline.Place(context.Background(), "", req)
	assert.ErrorIs(t, err, ErrNoValidItems)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestPlaceDropsUnmatchedLines(t *testing.T) {
	f := newFixture(t)

	req := codRequest()
	req.Items = append(req.Items, models.CartLine{Title: "Teak Table", Quantity: 4})
	order, err := f.pipeline.Place(context.Background(), "", req)
	require.NoError(t, err)
	assert.Len(t, order.Items, 2)
	assert.EqualValues(t, 2580, order.Total)
}

func TestPlaceUnknownType(t *testing.T) {
	f := newFixture(t)

	req := codRequest()
	req.Type = "CRYPTO"
	_, err := f.pipeline.Place(context.Background(), "", req)
	assert.ErrorIs(t, err, ErrUnknownOrderType)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestPlaceCatalogFailureIsPersistence(t *testing.T) {
	catalog := new(mockCatalog)
	catalog.On("ListProducts", mock.Anything).Return(nil, errors.New("decode products.json: unexpected EOF"))
	p := NewPipeline(catalog, nil, nil, nil)

	_, err := p.Place(context.Background(), "", codRequest())
	require.Error(t, err)
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.Contains(t, err.Error(), "unexpected EOF")
}

func TestPlaceRetriesOnDuplicateID(t *testing.T) {
	repo, err := repository.NewFileRepository(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, repo.SaveProducts(ctx, []models.Product{{Title: "Bamboo Stool", Price: 1200}}))

	ledger := &flakyLedger{OrderLedger: repo, collisions: 2}
	p := NewPipeline(repo, repo, ledger, repo)

	order, err := p.Place(ctx, "", PlaceRequest{Type: "COD", Items: []models.CartLine{{Title: "Bamboo Stool", Quantity: 1}}})
	require.NoError(t, err)
	require.Len(t, ledger.seen, 3)
	assert.Equal(t, ledger.seen[2], order.ID)
}

func TestPlaceGivesUpAfterRepeatedCollisions(t *testing.T) {
	repo, err := repository.NewFileRepository(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, repo.SaveProducts(ctx, []models.Product{{Title: "Bamboo Stool", Price: 1200}}))

	ledger := &flakyLedger{OrderLedger: repo, collisions: 100}
	p := NewPipeline(repo, repo, ledger, repo)

	_, err = p.Place(ctx, "", PlaceRequest{Type: "COD", Items: []models.CartLine{{Title: "Bamboo Stool", Quantity: 1}}})
	assert.ErrorIs(t, err, repository.ErrDuplicateOrder)
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.Len(t, ledger.seen, defaultIDAttempts)
}

func TestConcurrentPlacementsLoseNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.addUser(t, fmt.Sprintf("user_%d", i))
	}

	const perUser = 6
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		for j := 0; j < perUser; j++ {
			wg.Add(1)
			go func(uid string) {
				defer wg.Done()
				_, err := f.pipeline.Place(ctx, uid, codRequest())
				assert.NoError(t, err)
			}(fmt.Sprintf("user_%d", i))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pipeline.Place(ctx, "", codRequest())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	orders, err := f.repo.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 5*perUser+5)

	ids := make(map[string]bool)
	for _, o := range orders {
		ids[o.ID] = true
	}
	assert.Len(t, ids, len(orders))

	for i := 0; i < 5; i++ {
		user, err := f.repo.FindUser(ctx, fmt.Sprintf("user_%d", i))
		require.NoError(t, err)
		assert.Len(t, user.Orders, perUser)
		for _, o := range user.Orders {
			assert.True(t, ids[o.ID])
		}
	}
}

func TestPlaceAnnouncesOrder(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("PublishOrderPlaced", mock.Anything, mock.MatchedBy(func(o models.Order) bool {
		return o.Total == 2580 && o.UserID == models.GuestUserID
	})).Return(nil).Once()

	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m := metrics.New()
	f := newFixture(t, WithPublisher(pub), WithMetrics(m), WithClock(func() time.Time { return clock }))

	order, err := f.pipeline.Place(context.Background(), "", codRequest())
	require.NoError(t, err)
	assert.Equal(t, clock, order.Date)
	assert.Contains(t, order.ID, fmt.Sprintf("ORD-%d-", clock.Unix()))
	pub.AssertExpectations(t)

	require.Len(t, f.recorder.entries, 1)
	assert.Equal(t, models.ActionOrderPlaced, f.recorder.entries[0].Action)
	assert.Contains(t, f.recorder.entries[0].Description, order.ID)
}

func TestPublishFailureDoesNotFailOrder(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(errors.New("nats: timeout"))
	f := newFixture(t, WithPublisher(pub))

	_, err := f.pipeline.Place(context.Background(), "", codRequest())
	assert.NoError(t, err)
}

func TestRejectionsAreNotAnnounced(t *testing.T) {
	pub := new(mockPublisher)
	f := newFixture(t, WithPublisher(pub))

	_, err := f.pipeline.Place(context.Background(), "", PlaceRequest{Type: "COD"})
	require.Error(t, err)
	pub.AssertNotCalled(t, "PublishOrderPlaced", mock.Anything, mock.Anything)
	assert.Empty(t, f.recorder.entries)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)

	items, total, err := f.pipeline.Quote(context.Background(), codRequest().Items)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.EqualValues(t, 2580, total)

	_, _, err = f.pipeline.Quote(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindValidation, KindOf(fmt.Errorf("wrap: %w", ErrEmptyCart)))
	assert.Equal(t, KindAuthentication, KindOf(ErrPaymentInvalid))
	assert.Equal(t, KindConfiguration, KindOf(ErrPaymentUnavailable))
	assert.Equal(t, KindPersistence, KindOf(errors.New("boom")))
}
