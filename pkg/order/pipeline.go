package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

const defaultIDAttempts = 5

// PlaceRequest is a checkout as submitted by the client. Only titles and
// quantities of Items are trusted; prices come from the catalog.
type PlaceRequest struct {
	Type        string            `json:"type"`
	Items       []models.CartLine `json:"items"`
	UserDetails CustomerDetails   `json:"userDetails"`
	PaymentData PaymentData       `json:"paymentData"`
}

type CustomerDetails struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// PaymentData is the assertion the gateway's checkout widget returns.
type PaymentData struct {
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

func (d PaymentData) complete() bool {
	return d.GatewayOrderID != "" && d.GatewayPaymentID != "" && d.Signature != ""
}

// ActivityRecorder receives entries for the system action log. Record must
// not block.
type ActivityRecorder interface {
	Record(entry models.Activity)
}

// EventPublisher announces acknowledged orders.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, order models.Order) error
}

type Pipeline struct {
	catalog repository.CatalogStore
	users   repository.UserStore
	ledger  repository.OrderLedger
	creds   repository.CredentialSource

	ids        *IDGenerator
	idAttempts int
	now        func() time.Time

	recorder  ActivityRecorder
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

type Option func(*Pipeline)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithRecorder(r ActivityRecorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

func WithPublisher(pub EventPublisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock replaces time.Now for order dates and ids.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithIDGenerator(g *IDGenerator) Option {
	return func(p *Pipeline) { p.ids = g }
}

func NewPipeline(
	catalog repository.CatalogStore,
	users repository.UserStore,
	ledger repository.OrderLedger,
	creds repository.CredentialSource,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		catalog:    catalog,
		users:      users,
		ledger:     ledger,
		creds:      creds,
		idAttempts: defaultIDAttempts,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.ids == nil {
		p.ids = NewIDGenerator(p.now)
	}
	p.logger = p.logger.Named("pipeline")
	return p
}

// Quote prices lines against the catalog without placing anything.
func (p *Pipeline) Quote(ctx context.Context, lines []models.CartLine) ([]models.LineItem, int64, error) {
	if len(lines) == 0 {
		return nil, 0, ErrEmptyCart
	}
	return p.price(ctx, lines)
}

// Place turns a checkout into a persisted order. actorID is the
// authenticated user id, or "" / models.GuestUserID for guest checkout.
func (p *Pipeline) Place(ctx context.Context, actorID string, req PlaceRequest) (*models.Order, error) {
	start := time.Now()

	order, err := p.place(ctx, actorID, req)
	if err != nil {
		if p.metrics != nil {
			p.metrics.OrderRejected(KindOf(err).String(), time.Since(start))
		}
		p.logger.Info("Order rejected",
			zap.String("user_id", actorID),
			zap.String("type", req.Type),
			zap.Stringer("kind", KindOf(err)),
			zap.Error(err))
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.OrderPlaced(order.OrderType.String(), time.Since(start))
	}
	p.announce(ctx, *order)
	return order, nil
}

func (p *Pipeline) place(ctx context.Context, actorID string, req PlaceRequest) (*models.Order, error) {
	if actorID == "" {
		actorID = models.GuestUserID
	}

	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	orderType, err := models.ParseRequestType(req.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOrderType, req.Type)
	}

	items, total, err := p.price(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	order := models.Order{
		UserID:       actorID,
		CustomerName: req.UserDetails.Name,
		Phone:        req.UserDetails.Phone,
		Address:      req.UserDetails.Address,
		Items:        items,
		Total:        total,
		OrderType:    orderType,
		Status:       models.StatusProcessing,
	}

	switch orderType {
	case models.CashOnDelivery:
		order.PaymentStatus = models.PaymentPending
	case models.OnlinePayment:
		if err := p.verifyPayment(ctx, req.PaymentData); err != nil {
			return nil, err
		}
		paymentID := req.PaymentData.GatewayPaymentID
		order.PaymentStatus = models.PaymentPaid
		order.PaymentID = &paymentID
	}

	order.Date = p.now()
	if err := p.appendToLedger(ctx, &order); err != nil {
		return nil, err
	}

	if actorID != models.GuestUserID {
		p.copyToUser(ctx, order)
	}

	p.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int64("total", order.Total),
		zap.Stringer("order_type", order.OrderType))
	return &order, nil
}

// price matches lines to catalog products by exact title. Lines that match
// nothing, or carry a non-positive quantity, are dropped.
func (p *Pipeline) price(ctx context.Context, lines []models.CartLine) ([]models.LineItem, int64, error) {
	products, err := p.catalog.ListProducts(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load catalog: %w", err)
	}

	byTitle := make(map[string]models.Product, len(products))
	for _, prod := range products {
		if _, dup := byTitle[prod.Title]; !dup {
			byTitle[prod.Title] = prod
		}
	}

	var (
		items []models.LineItem
		total int64
	)
	for _, line := range lines {
		prod, ok := byTitle[line.Title]
		if !ok || line.Quantity <= 0 {
			p.logger.Debug("Dropping cart line",
				zap.String("title", line.Title),
				zap.Int("quantity", line.Quantity))
			continue
		}
		items = append(items, models.LineItem{
			Title:    prod.Title,
			Price:    prod.Price,
			Quantity: line.Quantity,
			Image:    prod.FirstImage(),
		})
		total += prod.Price * int64(line.Quantity)
	}

	if len(items) == 0 {
		return nil, 0, ErrNoValidItems
	}
	return items, total, nil
}

func (p *Pipeline) verifyPayment(ctx context.Context, data PaymentData) error {
	if !data.complete() {
		return ErrPaymentDataMissing
	}

	creds, ok, err := p.creds.GetCredentials(ctx)
	if err != nil {
		return fmt.Errorf("load payment credentials: %w", err)
	}
	if !ok || creds.KeySecret == "" {
		return ErrPaymentUnavailable
	}

	if !payment.Verify(data.GatewayOrderID, data.GatewayPaymentID, data.Signature, creds.KeySecret) {
		return ErrPaymentInvalid
	}
	return nil
}

// appendToLedger assigns order.ID and writes the order, drawing a new id when
// the ledger already holds the drawn one.
func (p *Pipeline) appendToLedger(ctx context.Context, order *models.Order) error {
	for attempt := 1; attempt <= p.idAttempts; attempt++ {
		id, err := p.ids.Next()
		if err != nil {
			return fmt.Errorf("generate order id: %w", err)
		}
		order.ID = id

		err = p.ledger.AppendOrder(ctx, order.Clone())
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrder) {
			return fmt.Errorf("append order: %w", err)
		}
		p.logger.Warn("Order id collision, retrying",
			zap.String("order_id", id),
			zap.Int("attempt", attempt))
	}
	return fmt.Errorf("append order: %w after %d attempts", repository.ErrDuplicateOrder, p.idAttempts)
}

// copyToUser appends the order to the user's history and empties the cart.
// The ledger already holds the order, so failures here are logged only.
func (p *Pipeline) copyToUser(ctx context.Context, order models.Order) {
	err := p.users.UpdateUser(ctx, order.UserID, func(u *models.User) error {
		u.Orders = append(u.Orders, order.Clone())
		u.Cart = []models.CartLine{}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrUserNotFound):
		p.logger.Warn("No user record for order owner, skipping history copy",
			zap.String("order_id", order.ID),
			zap.String("user_id", order.UserID))
	default:
		p.logger.Error("Failed to copy order to user history",
			zap.String("order_id", order.ID),
			zap.String("user_id", order.UserID),
			zap.Error(err))
	}
}

func (p *Pipeline) announce(ctx context.Context, order models.Order) {
	if p.recorder != nil {
		p.recorder.Record(models.Activity{
			Timestamp:   order.Date,
			Action:      models.ActionOrderPlaced,
			Description: fmt.Sprintf("Order %s placed (%s, total %d)", order.ID, order.OrderType, order.Total),
			User:        order.UserID,
		})
	}
	if p.publisher != nil {
		if err := p.publisher.PublishOrderPlaced(context.WithoutCancel(ctx), order); err != nil {
			p.logger.Warn("Failed to publish order event",
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}
}
