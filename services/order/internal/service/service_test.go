package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/Skotchmaster/checkout/pkg/catalog"
	"github.com/Skotchmaster/checkout/pkg/db/dbtest"
	"github.com/Skotchmaster/checkout/pkg/outbox"
	"github.com/Skotchmaster/checkout/services/order/internal/coupon"
	"github.com/Skotchmaster/checkout/services/order/internal/events"
	"github.com/Skotchmaster/checkout/services/order/internal/models"
	"github.com/Skotchmaster/checkout/services/order/internal/payment"
	"github.com/Skotchmaster/checkout/services/order/internal/repo"
	"github.com/Skotchmaster/checkout/services/order/internal/transport"
	"github.com/Skotchmaster/checkout/services/order/internal/webhook"
)

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testAddress = models.AddressSnapshot{
	Street:     "1 Market St",
	City:       "Springfield",
	State:      "IL",
	PostalCode: "62701",
	Country:    "US",
	Lat:        ptr(39.78),
	Lon:        ptr(-89.65),
	Mobile:     "+15550100",
}

type fakeCoupons struct {
	res  coupon.Result
	err  error
	last coupon.Request
}

func (f *fakeCoupons) Verify(_ context.Context, req coupon.Request) (coupon.Result, error) {
	f.last = req
	return f.res, f.err
}

type fakeGateway struct {
	payments map[string]payment.Payment
}

func (f *fakeGateway) Retrieve(_ context.Context, ref string) (payment.Payment, error) {
	p, ok := f.payments[ref]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	return p, nil
}

type fakeGate struct {
	mu      sync.Mutex
	claimed map[string]bool
	err     error
}

func (g *fakeGate) Acquire(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.claimed[id] {
		return false, nil
	}
	g.claimed[id] = true
	return true, nil
}

func (g *fakeGate) Release(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, id)
	return nil
}

type OrderServiceSuite struct {
	suite.Suite

	ctx     context.Context
	db      *gorm.DB
	svc     *OrderService
	coupons *fakeCoupons
	gateway *fakeGateway
	gate    *fakeGate
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

func (s *OrderServiceSuite) SetupTest() {
	tables := append(catalog.Models(), repo.Models()...)
	tables = append(tables, &models.Cart{}, &models.CartItem{})
	s.db = dbtest.Open(s.T(), tables...)
	s.ctx = context.Background()
	s.coupons = &fakeCoupons{}
	s.gateway = &fakeGateway{payments: map[string]payment.Payment{}}
	s.gate = &fakeGate{claimed: map[string]bool{}}
	s.svc = &OrderService{
		Repo:          &repo.GormRepo{DB: s.db},
		Coupons:       s.coupons,
		Gateway:       s.gateway,
		Dedup:         s.gate,
		WebhookSecret: []byte("whsec_test"),
		NumberPrefix:  "ORD",
	}
}

func (s *OrderServiceSuite) seedVariant(price string, stock *int) *catalog.ProductVariant {
	cat := &catalog.Category{Slug: "bags", Name: "Bags"}
	s.Require().NoError(s.db.Create(cat).Error)
	p := &catalog.Product{CategoryID: &cat.ID, Name: "Weekender", Slug: "weekender-" + uuid.NewString()[:6]}
	s.Require().NoError(s.db.Create(p).Error)
	v := &catalog.ProductVariant{ProductID: p.ID, SKU: "WK-" + uuid.NewString()[:6], Price: dec(price), Stock: stock}
	s.Require().NoError(s.db.Create(v).Error)
	return v
}

func (s *OrderServiceSuite) stockOf(id uuid.UUID) *int {
	var v catalog.ProductVariant
	s.Require().NoError(s.db.Unscoped().Where("id = ?", id).Take(&v).Error)
	return v.Stock
}

func (s *OrderServiceSuite) line(v *catalog.ProductVariant, qty int) LineItem {
	return LineItem{VariantID: v.ID, ProductID: v.ProductID, ProductName: "Weekender", SKU: v.SKU, Price: v.Price, Quantity: qty}
}

func (s *OrderServiceSuite) newOrder(userID uuid.UUID, items ...LineItem) *models.Order {
	var order *models.Order
	err := s.svc.Repo.Transaction(s.ctx, func(tx *repo.GormRepo) error {
		var err error
		order, err = s.svc.CreateOrder(s.ctx, tx, OrderDraft{UserID: userID, Items: items, Shipping: &testAddress})
		return err
	})
	s.Require().NoError(err)
	return order
}

func (s *OrderServiceSuite) reload(id uuid.UUID) *models.Order {
	var o models.Order
	s.Require().NoError(s.db.Unscoped().Where("id = ?", id).Take(&o).Error)
	return &o
}

func (s *OrderServiceSuite) ledger(orderID uuid.UUID) []models.InventoryTransaction {
	rows, err := s.svc.Repo.InventoryForOrder(s.ctx, orderID)
	s.Require().NoError(err)
	return rows
}

func (s *OrderServiceSuite) outboxKinds(orderID uuid.UUID) []string {
	var rows []outbox.Event
	s.Require().NoError(s.db.Where("aggregate_id = ?", orderID).Order("created_at ASC").Find(&rows).Error)
	kinds := make([]string, 0, len(rows))
	for _, r := range rows {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}

func (s *OrderServiceSuite) seedCart(userID uuid.UUID, lines map[uuid.UUID]int) {
	cart := &models.Cart{ID: uuid.New(), UserID: userID}
	s.Require().NoError(s.db.Create(cart).Error)
	for variantID, qty := range lines {
		s.Require().NoError(s.db.Create(&models.CartItem{ID: uuid.New(), CartID: cart.ID, VariantID: variantID, Quantity: qty}).Error)
	}
}

func (s *OrderServiceSuite) cartSize(userID uuid.UUID) int {
	lines, err := s.svc.Repo.CartLines(s.ctx, userID)
	s.Require().NoError(err)
	return len(lines)
}

func (s *OrderServiceSuite) TestCreateOrder_TotalsAndSnapshots() {
	a := s.seedVariant("19.99", ptr(5))
	b := s.seedVariant("5.00", nil)
	sale := s.line(b, 3)
	sale.SalePrice = decimal.NewNullDecimal(dec("4.50"))

	order := s.newOrder(uuid.New(), s.line(a, 2), sale)

	s.Regexp(`^ORD\d{8}[A-Z0-9]{6}$`, order.OrderNumber)
	s.Equal("53.48", order.TotalAmount.StringFixed(2))
	s.Equal("53.48", order.AmountDue.StringFixed(2))
	s.Equal(models.PaymentPending, order.PaymentStatus)
	s.Equal(models.StatusCreated, order.OrderStatus)

	stored := s.reload(order.ID)
	s.Equal(testAddress, stored.ShippingAddress)
	s.Equal(testAddress, stored.BillingAddress, "billing defaults to shipping")

	items, err := s.svc.Repo.OrderItems(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		s.Regexp(`^/bags/weekender-`, it.ProductLink)
	}
	s.True(sum.Equal(stored.TotalAmount), "total equals the item snapshots")
}

func (s *OrderServiceSuite) TestCreateOrder_SubCentPriceMatchesItems() {
	v := s.seedVariant("5.00", nil)
	third := s.line(v, 3)
	third.SalePrice = decimal.NewNullDecimal(dec("3.333"))

	order := s.newOrder(uuid.New(), third)

	items, err := s.svc.Repo.OrderItems(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal("3.33", items[0].Price.StringFixed(2))
	s.Equal("9.99", s.reload(order.ID).TotalAmount.StringFixed(2))
	s.True(items[0].Price.Mul(decimal.NewFromInt(3)).Equal(s.reload(order.ID).TotalAmount))
}

func (s *OrderServiceSuite) TestCreateOrder_Validation() {
	v := s.seedVariant("1.00", nil)
	negative := s.line(v, 1)
	negative.Price = dec("-1")
	noVariant := s.line(v, 1)
	noVariant.VariantID = uuid.Nil

	drafts := map[string]OrderDraft{
		"no items":       {UserID: uuid.New(), Shipping: &testAddress},
		"no address":     {UserID: uuid.New(), Items: []LineItem{s.line(v, 1)}},
		"zero quantity":  {UserID: uuid.New(), Items: []LineItem{s.line(v, 0)}, Shipping: &testAddress},
		"negative price": {UserID: uuid.New(), Items: []LineItem{negative}, Shipping: &testAddress},
		"no variant":     {UserID: uuid.New(), Items: []LineItem{noVariant}, Shipping: &testAddress},
	}
	for name, d := range drafts {
		err := s.svc.Repo.Transaction(s.ctx, func(tx *repo.GormRepo) error {
			_, err := s.svc.CreateOrder(s.ctx, tx, d)
			return err
		})
		s.ErrorIs(err, ErrValidation, name)
	}
}

func (s *OrderServiceSuite) TestCreateOrder_RetriesDuplicateNumber() {
	v := s.seedVariant("2.00", nil)
	numbers := []string{"ORD20260101AAAAAA", "ORD20260101AAAAAA", "ORD20260101AAAAAA", "ORD20260101BBBBBB"}
	calls := 0
	s.svc.NewNumber = func(string, time.Time) (string, error) {
		n := numbers[calls]
		calls++
		return n, nil
	}

	first := s.newOrder(uuid.New(), s.line(v, 1))
	s.Equal("ORD20260101AAAAAA", first.OrderNumber)

	second := s.newOrder(uuid.New(), s.line(v, 1))
	s.Equal("ORD20260101BBBBBB", second.OrderNumber)
	s.Equal(4, calls)

	var count int64
	s.Require().NoError(s.db.Model(&models.Order{}).Count(&count).Error)
	s.EqualValues(2, count)
}

func (s *OrderServiceSuite) TestCreateOrder_GivesUpAfterRetries() {
	v := s.seedVariant("2.00", nil)
	calls := 0
	s.svc.NewNumber = func(string, time.Time) (string, error) {
		calls++
		return "ORD20260101SAMEXX", nil
	}
	s.newOrder(uuid.New(), s.line(v, 1))
	calls = 0

	err := s.svc.Repo.Transaction(s.ctx, func(tx *repo.GormRepo) error {
		_, err := s.svc.CreateOrder(s.ctx, tx, OrderDraft{UserID: uuid.New(), Items: []LineItem{s.line(v, 1)}, Shipping: &testAddress})
		return err
	})
	s.Require().Error(err)
	s.Equal(numberRetries+1, calls)
}

func (s *OrderServiceSuite) TestFinalizePaidOrder() {
	userID := uuid.New()
	tracked := s.seedVariant("10.00", ptr(5))
	untracked := s.seedVariant("4.00", nil)
	s.seedCart(userID, map[uuid.UUID]int{tracked.ID: 2})
	order := s.newOrder(userID, s.line(tracked, 2), s.line(untracked, 1))

	res, err := s.svc.FinalizePaidOrder(s.ctx, order.ID, "txn_1")
	s.Require().NoError(err)
	s.False(res.AlreadyProcessed)
	s.Equal(models.PaymentPaid, res.Order.PaymentStatus)

	stored := s.reload(order.ID)
	s.Equal(models.PaymentPaid, stored.PaymentStatus)
	s.Equal(models.StatusProcessing, stored.OrderStatus)
	s.Require().NotNil(stored.PaymentReference)
	s.Equal("txn_1", *stored.PaymentReference)
	s.NotNil(stored.PaidAt)

	s.Equal(3, *s.stockOf(tracked.ID))
	s.Nil(s.stockOf(untracked.ID))

	rows := s.ledger(order.ID)
	s.Require().Len(rows, 2)
	for _, r := range rows {
		s.Equal(models.ReasonOrderPaid, r.Reason)
		s.Negative(r.Delta)
	}

	s.Equal([]string{events.OrderPaid}, s.outboxKinds(order.ID))
	s.Equal(0, s.cartSize(userID), "cart is cleared after payment")

	again, err := s.svc.FinalizePaidOrder(s.ctx, order.ID, "txn_1")
	s.Require().NoError(err)
	s.True(again.AlreadyProcessed)
	s.Equal(3, *s.stockOf(tracked.ID))
	s.Len(s.ledger(order.ID), 2)
	s.Len(s.outboxKinds(order.ID), 1)
}

func (s *OrderServiceSuite) TestFinalizePaidOrder_OutboxPayload() {
	v := s.seedVariant("12.00", nil)
	order := s.newOrder(uuid.New(), s.line(v, 1))

	_, err := s.svc.FinalizePaidOrder(s.ctx, order.ID, "txn_payload")
	s.Require().NoError(err)

	var ev outbox.Event
	s.Require().NoError(s.db.Where("aggregate_id = ?", order.ID).Take(&ev).Error)
	var snap events.OrderSnapshot
	s.Require().NoError(json.Unmarshal(ev.Payload, &snap))
	s.Equal(order.OrderNumber, snap.OrderNumber)
	s.Equal(models.PaymentPaid, snap.PaymentStatus)
	s.Equal("12.00", snap.AmountDue)
	s.Equal("txn_payload", snap.PaymentReference)
	s.Require().Len(snap.Items, 1)
	s.Equal(v.SKU, snap.Items[0].SKU)
}

func (s *OrderServiceSuite) TestFinalizePaidOrder_ConcurrentCallsTakeStockOnce() {
	v := s.seedVariant("3.00", ptr(10))
	order := s.newOrder(uuid.New(), s.line(v, 4))

	const n = 6
	var wg sync.WaitGroup
	results := make([]*FinalizeResult, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.svc.FinalizePaidOrder(s.ctx, order.ID, "txn_race")
		}()
	}
	wg.Wait()

	fresh := 0
	for i := range n {
		s.Require().NoError(errs[i])
		if !results[i].AlreadyProcessed {
			fresh++
		}
	}
	s.Equal(1, fresh)
	s.Equal(6, *s.stockOf(v.ID))
	s.Len(s.ledger(order.ID), 1)
	s.Len(s.outboxKinds(order.ID), 1)
}

func (s *OrderServiceSuite) TestFinalizePaidOrder_ClampsStockAtZero() {
	v := s.seedVariant("3.00", ptr(1))
	order := s.newOrder(uuid.New(), s.line(v, 3))

	_, err := s.svc.FinalizePaidOrder(s.ctx, order.ID, "txn_short")
	s.Require().NoError(err)
	s.Equal(0, *s.stockOf(v.ID))
	s.Equal(-3, s.ledger(order.ID)[0].Delta)
}

func (s *OrderServiceSuite) TestFinalizePaidOrder_SoftDeletedPendingOrder() {
	v := s.seedVariant("3.00", nil)
	order := s.newOrder(uuid.New(), s.line(v, 1))
	s.Require().NoError(s.db.Delete(&models.Order{}, "id = ?", order.ID).Error)

	res, err := s.svc.FinalizePaidOrder(s.ctx, order.ID, "txn_late")
	s.Require().NoError(err)
	s.False(res.AlreadyProcessed)

	var restored models.Order
	s.Require().NoError(s.db.Where("id = ?", order.ID).Take(&restored).Error, "finalize undeletes the order")
}

func (s *OrderServiceSuite) TestFinalizePaidOrder_Errors() {
	_, err := s.svc.FinalizePaidOrder(s.ctx, uuid.New(), "txn")
	s.ErrorIs(err, ErrNotFound)

	v := s.seedVariant("3.00", ptr(2))
	userID := uuid.New()
	order := s.newOrder(userID, s.line(v, 1))
	_, err = s.svc.CancelOrder(s.ctx, order.ID, Actor{ID: userID})
	s.Require().NoError(err)

	_, err = s.svc.FinalizePaidOrder(s.ctx, order.ID, "txn")
	s.ErrorIs(err, ErrInvalidTransition, "cancelled orders are not payable")
	s.Equal(2, *s.stockOf(v.ID))
	s.Equal(models.PaymentPending, s.reload(order.ID).PaymentStatus)
}

func (s *OrderServiceSuite) TestMarkPaymentFailed() {
	v := s.seedVariant("3.00", nil)
	pending := s.newOrder(uuid.New(), s.line(v, 1))

	res, err := s.svc.MarkPaymentFailed(s.ctx, pending.ID, "txn_declined")
	s.Require().NoError(err)
	s.False(res.AlreadyProcessed)
	s.Equal(models.PaymentFailed, s.reload(pending.ID).PaymentStatus)
	s.Equal([]string{events.OrderPaymentFailed}, s.outboxKinds(pending.ID))

	paid := s.newOrder(uuid.New(), s.line(v, 1))
	_, err = s.svc.FinalizePaidOrder(s.ctx, paid.ID, "txn_ok")
	s.Require().NoError(err)

	res, err = s.svc.MarkPaymentFailed(s.ctx, paid.ID, "txn_late_failure")
	s.Require().NoError(err)
	s.True(res.AlreadyProcessed)
	s.Equal(models.PaymentPaid, s.reload(paid.ID).PaymentStatus)
}

func (s *OrderServiceSuite) TestCancelOrder_ShippedRestoresStock() {
	userID := uuid.New()
	adminID := uuid.New()
	a := s.seedVariant("8.00", ptr(5))
	b := s.seedVariant("9.00", ptr(7))
	order := s.newOrder(userID, s.line(a, 1), s.line(b, 3))

	_, err := s.svc.FinalizePaidOrder(s.ctx, order.ID, "txn_ship")
	s.Require().NoError(err)
	s.Equal(4, *s.stockOf(a.ID))
	s.Equal(4, *s.stockOf(b.ID))

	_, err = s.svc.UpdateOrderStatus(s.ctx, order.ID, adminID, models.StatusShipped)
	s.Require().NoError(err)

	cancelled, err := s.svc.CancelOrder(s.ctx, order.ID, Actor{ID: adminID, Admin: true})
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, cancelled.OrderStatus)
	s.NotNil(cancelled.CancelledAt)

	s.Equal(5, *s.stockOf(a.ID))
	s.Equal(7, *s.stockOf(b.ID))

	restored := map[uuid.UUID]int{}
	for _, r := range s.ledger(order.ID) {
		if r.Reason == models.ReasonOrderCancelled {
			restored[r.VariantID] = r.Delta
		}
	}
	s.Equal(map[uuid.UUID]int{a.ID: 1, b.ID: 3}, restored)

	_, err = s.svc.CancelOrder(s.ctx, order.ID, Actor{ID: adminID, Admin: true})
	s.ErrorIs(err, ErrAlreadyCancelled)
	s.Equal(5, *s.stockOf(a.ID), "second cancel restores nothing")
}

func (s *OrderServiceSuite) TestCancelOrder_UnpaidKeepsStock() {
	userID := uuid.New()
	v := s.seedVariant("8.00", ptr(5))
	order := s.newOrder(userID, s.line(v, 2))

	_, err := s.svc.CancelOrder(s.ctx, order.ID, Actor{ID: uuid.New()})
	s.ErrorIs(err, ErrNotFound, "other users cannot see the order")

	_, err = s.svc.CancelOrder(s.ctx, order.ID, Actor{ID: userID})
	s.Require().NoError(err)
	s.Equal(5, *s.stockOf(v.ID))
	s.Empty(s.ledger(order.ID))
	s.Equal([]string{events.OrderCancelled}, s.outboxKinds(order.ID))
}

func (s *OrderServiceSuite) TestCancelOrder_UnpaidShippedKeepsStock() {
	adminID := uuid.New()
	a := s.seedVariant("8.00", ptr(5))
	b := s.seedVariant("9.00", ptr(5))
	order := s.newOrder(uuid.New(), s.line(a, 1), s.line(b, 3))

	for _, st := range []models.OrderStatus{models.StatusProcessing, models.StatusShipped} {
		_, err := s.svc.UpdateOrderStatus(s.ctx, order.ID, adminID, st)
		s.Require().NoError(err)
	}

	_, err := s.svc.CancelOrder(s.ctx, order.ID, Actor{ID: adminID, Admin: true})
	s.Require().NoError(err)
	s.Equal(5, *s.stockOf(a.ID), "stock was never taken")
	s.Equal(5, *s.stockOf(b.ID))
	s.Empty(s.ledger(order.ID))
}

func (s *OrderServiceSuite) TestCancelOrder_DeliveredRejected() {
	adminID := uuid.New()
	v := s.seedVariant("8.00", nil)
	order := s.newOrder(uuid.New(), s.line(v, 1))
	_, err := s.svc.FinalizePaidOrder(s.ctx, order.ID, "txn")
	s.Require().NoError(err)
	for _, st := range []models.OrderStatus{models.StatusShipped, models.StatusDelivered} {
		_, err = s.svc.UpdateOrderStatus(s.ctx, order.ID, adminID, st)
		s.Require().NoError(err)
	}

	_, err = s.svc.CancelOrder(s.ctx, order.ID, Actor{ID: adminID, Admin: true})
	s.ErrorIs(err, ErrInvalidTransition)
}

func (s *OrderServiceSuite) TestUpdatePaymentStatusAfterCancel() {
	userID := uuid.New()
	v := s.seedVariant("8.00", nil)
	order := s.newOrder(userID, s.line(v, 1))

	_, err := s.svc.UpdatePaymentStatusAfterCancel(s.ctx, order.ID, models.PaymentPaid)
	s.ErrorIs(err, ErrValidation)

	_, err = s.svc.FinalizePaidOrder(s.ctx, order.ID, "txn")
	s.Require().NoError(err)

	_, err = s.svc.UpdatePaymentStatusAfterCancel(s.ctx, order.ID, models.PaymentRefundInitiated)
	s.ErrorIs(err, ErrInvalidTransition, "refunds wait for cancellation")

	_, err = s.svc.CancelOrder(s.ctx, order.ID, Actor{ID: userID})
	s.Require().NoError(err)

	updated, err := s.svc.UpdatePaymentStatusAfterCancel(s.ctx, order.ID, models.PaymentRefundInitiated)
	s.Require().NoError(err)
	s.Equal(models.PaymentRefundInitiated, updated.PaymentStatus)

	updated, err = s.svc.UpdatePaymentStatusAfterCancel(s.ctx, order.ID, models.PaymentRefundCompleted)
	s.Require().NoError(err)
	s.Equal(models.PaymentRefundCompleted, updated.PaymentStatus)

	_, err = s.svc.UpdatePaymentStatusAfterCancel(s.ctx, order.ID, models.PaymentRefundInitiated)
	s.ErrorIs(err, ErrInvalidTransition)
	s.Equal(models.PaymentRefundCompleted, s.reload(order.ID).PaymentStatus)

	s.Equal([]string{events.OrderPaid, events.OrderCancelled, events.OrderRefundUpdated, events.OrderRefundUpdated}, s.outboxKinds(order.ID))
}

func (s *OrderServiceSuite) TestUpdatePaymentStatusAfterCancel_UnpaidOrder() {
	userID := uuid.New()
	v := s.seedVariant("8.00", nil)

	pending := s.newOrder(userID, s.line(v, 1))
	failed := s.newOrder(userID, s.line(v, 1))
	_, err := s.svc.MarkPaymentFailed(s.ctx, failed.ID, "txn-failed")
	s.Require().NoError(err)

	for _, order := range []*models.Order{pending, failed} {
		_, err := s.svc.CancelOrder(s.ctx, order.ID, Actor{ID: userID})
		s.Require().NoError(err)

		updated, err := s.svc.UpdatePaymentStatusAfterCancel(s.ctx, order.ID, models.PaymentRefundInitiated)
		s.Require().NoError(err)
		s.Equal(models.PaymentRefundInitiated, updated.PaymentStatus)

		updated, err = s.svc.UpdatePaymentStatusAfterCancel(s.ctx, order.ID, models.PaymentRefundCompleted)
		s.Require().NoError(err)
		s.Equal(models.PaymentRefundCompleted, updated.PaymentStatus)

		_, err = s.svc.UpdatePaymentStatusAfterCancel(s.ctx, order.ID, models.PaymentRefundInitiated)
		s.ErrorIs(err, ErrInvalidTransition)
	}
}

func (s *OrderServiceSuite) TestUpdateOrderStatus() {
	adminID := uuid.New()
	v := s.seedVariant("8.00", nil)
	order := s.newOrder(uuid.New(), s.line(v, 1))

	_, err := s.svc.UpdateOrderStatus(s.ctx, order.ID, adminID, "teleported")
	s.ErrorIs(err, ErrValidation)

	_, err = s.svc.UpdateOrderStatus(s.ctx, order.ID, adminID, models.StatusShipped)
	s.ErrorIs(err, ErrInvalidTransition, "created cannot jump to shipped")

	_, err = s.svc.UpdateOrderStatus(s.ctx, order.ID, adminID, models.StatusCancelled)
	s.ErrorIs(err, ErrInvalidTransition, "cancellation has its own operation")

	updated, err := s.svc.UpdateOrderStatus(s.ctx, order.ID, adminID, models.StatusProcessing)
	s.Require().NoError(err)
	s.Equal(models.StatusProcessing, updated.OrderStatus)

	var logs []models.OrderStatusLog
	s.Require().NoError(s.db.Where("order_id = ?", order.ID).Find(&logs).Error)
	s.Require().Len(logs, 1)
	s.Equal(adminID, logs[0].ActorID)
	s.Equal(models.StatusCreated, logs[0].FromStatus)
	s.Equal(models.StatusProcessing, logs[0].ToStatus)

	var ev outbox.Event
	s.Require().NoError(s.db.Where("aggregate_id = ? AND kind = ?", order.ID, events.OrderStatusChanged).Take(&ev).Error)
	var snap events.OrderSnapshot
	s.Require().NoError(json.Unmarshal(ev.Payload, &snap))
	s.Equal(models.StatusCreated, snap.PreviousStatus)
	s.Equal(models.StatusProcessing, snap.OrderStatus)
}

func (s *OrderServiceSuite) TestUpdateOrderStatus_AuditFailureIsSwallowed() {
	v := s.seedVariant("8.00", nil)
	order := s.newOrder(uuid.New(), s.line(v, 1))
	s.Require().NoError(s.db.Migrator().DropTable(&models.OrderStatusLog{}))

	updated, err := s.svc.UpdateOrderStatus(s.ctx, order.ID, uuid.New(), models.StatusProcessing)
	s.Require().NoError(err)
	s.Equal(models.StatusProcessing, updated.OrderStatus)
}

func (s *OrderServiceSuite) TestQueries() {
	userID := uuid.New()
	v := s.seedVariant("8.00", nil)
	mine := s.newOrder(userID, s.line(v, 1))
	s.newOrder(userID, s.line(v, 2))
	s.newOrder(uuid.New(), s.line(v, 3))

	orders, total, err := s.svc.ListOrders(s.ctx, userID, 10, 0)
	s.Require().NoError(err)
	s.EqualValues(2, total)
	s.Len(orders, 2)

	got, err := s.svc.GetOrder(s.ctx, Actor{ID: userID}, mine.ID)
	s.Require().NoError(err)
	s.Len(got.Items, 1)

	_, err = s.svc.GetOrder(s.ctx, Actor{ID: uuid.New()}, mine.ID)
	s.ErrorIs(err, ErrNotFound)

	_, err = s.svc.GetOrder(s.ctx, Actor{ID: uuid.New(), Admin: true}, mine.ID)
	s.NoError(err)

	all, total, err := s.svc.ListByStatus(s.ctx, models.StatusCreated, 10, 0)
	s.Require().NoError(err)
	s.EqualValues(3, total)
	s.Len(all, 3)

	_, _, err = s.svc.ListByStatus(s.ctx, "bogus", 10, 0)
	s.ErrorIs(err, ErrValidation)
}

func (s *OrderServiceSuite) TestCheckout_FromCartWithCoupon() {
	userID := uuid.New()
	a := s.seedVariant("30.00", ptr(5))
	b := s.seedVariant("10.00", ptr(5))
	s.seedCart(userID, map[uuid.UUID]int{a.ID: 1, b.ID: 1})
	s.svc.ShippingCost = dec("4.99")
	couponID := uuid.New()
	s.coupons.res = coupon.Result{Success: true, CouponID: couponID, Code: "SAVE10", Discount: dec("10.00")}

	res, err := s.svc.Checkout(s.ctx, userID, checkoutRequest(ptr("save10"), &couponID))
	s.Require().NoError(err)

	o := res.Order
	s.Equal("40.00", o.TotalAmount.StringFixed(2))
	s.Equal("10.00", o.DiscountAmount.StringFixed(2))
	s.Equal("4.99", o.ShippingAmount.StringFixed(2))
	s.Equal("34.99", o.AmountDue.StringFixed(2))
	s.Require().NotNil(o.CouponID)
	s.Equal(couponID, *o.CouponID)
	s.Equal("SAVE10", *o.CouponCode)

	sum := decimal.Zero
	for _, l := range res.Lines {
		sum = sum.Add(l.Amount)
	}
	s.True(sum.Equal(o.AmountDue), "payment lines %s add up to amount due", sum)
	s.Equal(ShippingLabel, res.Lines[len(res.Lines)-1].Label)

	s.Equal("save10", s.coupons.last.Code)
	s.Equal(coupon.ChannelWeb, s.coupons.last.Channel)
	s.Equal("40.00", s.coupons.last.Subtotal.StringFixed(2))
	s.Len(s.coupons.last.Items, 2)

	s.Equal(2, s.cartSize(userID), "the cart stays until payment")
	s.Equal(5, *s.stockOf(a.ID), "stock is taken at payment")
}

func (s *OrderServiceSuite) TestCheckout_FreeShippingAndCappedDiscount() {
	userID := uuid.New()
	v := s.seedVariant("15.00", nil)
	s.svc.ShippingCost = dec("5.00")
	s.coupons.res = coupon.Result{Success: true, CouponID: uuid.New(), Discount: dec("100.00"), FreeShipping: true}

	req := checkoutRequest(ptr("FREEBIE"), nil)
	req.BuyNow = &transport.BuyNowItem{VariantID: v.ID, Quantity: 2}
	res, err := s.svc.Checkout(s.ctx, userID, req)
	s.Require().NoError(err)

	s.Equal("30.00", res.Order.DiscountAmount.StringFixed(2))
	s.Equal("0.00", res.Order.ShippingAmount.StringFixed(2))
	s.Equal("0.00", res.Order.AmountDue.StringFixed(2))
	s.Len(res.Lines, 1, "no shipping line when shipping is free")
}

func (s *OrderServiceSuite) TestCheckout_AppliesSalePrice() {
	userID := uuid.New()
	v := s.seedVariant("50.00", nil)
	s.Require().NoError(s.db.Create(&catalog.Sale{ProductID: v.ProductID, DiscountPercent: dec("20"), Active: true}).Error)

	req := checkoutRequest(nil, nil)
	req.BuyNow = &transport.BuyNowItem{VariantID: v.ID, Quantity: 1}
	res, err := s.svc.Checkout(s.ctx, userID, req)
	s.Require().NoError(err)
	s.Equal("40.00", res.Order.TotalAmount.StringFixed(2))
	s.Equal("40.00", res.Order.Items[0].Price.StringFixed(2))
}

func (s *OrderServiceSuite) TestCheckout_Errors() {
	userID := uuid.New()
	scarce := s.seedVariant("10.00", ptr(1))

	_, err := s.svc.Checkout(s.ctx, userID, checkoutRequest(nil, nil))
	s.ErrorIs(err, ErrValidation, "empty cart")

	req := checkoutRequest(nil, nil)
	req.BuyNow = &transport.BuyNowItem{VariantID: scarce.ID, Quantity: 2}
	_, err = s.svc.Checkout(s.ctx, userID, req)
	s.ErrorIs(err, ErrInsufficientStock)

	req.BuyNow = &transport.BuyNowItem{VariantID: uuid.New(), Quantity: 1}
	_, err = s.svc.Checkout(s.ctx, userID, req)
	s.ErrorIs(err, ErrNotFound)

	req.BuyNow = &transport.BuyNowItem{VariantID: scarce.ID, Quantity: 1}
	req.ShippingAddress = nil
	_, err = s.svc.Checkout(s.ctx, userID, req)
	s.ErrorIs(err, ErrValidation, "shipping address required")

	foreign := &models.Address{UserID: uuid.New(), Street: "2 Elm", City: "Shelbyville", Country: "US"}
	s.Require().NoError(s.db.Create(foreign).Error)
	req.ShippingAddressID = &foreign.ID
	_, err = s.svc.Checkout(s.ctx, userID, req)
	s.ErrorIs(err, ErrNotFound, "address of another user")

	req = checkoutRequest(ptr("NOPE"), nil)
	req.BuyNow = &transport.BuyNowItem{VariantID: scarce.ID, Quantity: 1}
	s.coupons.res = coupon.Result{Success: false, Message: "expired"}
	_, err = s.svc.Checkout(s.ctx, userID, req)
	s.ErrorIs(err, ErrCouponRejected)

	s.coupons.res = coupon.Result{Success: true, CouponID: uuid.New(), Discount: dec("1.00")}
	req.CouponID = ptr(uuid.New())
	_, err = s.svc.Checkout(s.ctx, userID, req)
	s.ErrorIs(err, ErrConflict)

	s.coupons.err = errors.New("promotions down")
	req.CouponID = nil
	_, err = s.svc.Checkout(s.ctx, userID, req)
	s.Require().Error(err)
	s.NotErrorIs(err, ErrCouponRejected)

	var count int64
	s.Require().NoError(s.db.Model(&models.Order{}).Count(&count).Error)
	s.Zero(count)
}

func (s *OrderServiceSuite) TestCheckout_SavedAddress() {
	userID := uuid.New()
	v := s.seedVariant("10.00", nil)
	saved := &models.Address{UserID: userID, Street: "9 Oak", City: "Capital City", Country: "US", Mobile: "+15550111"}
	s.Require().NoError(s.db.Create(saved).Error)

	req := checkoutRequest(nil, nil)
	req.BuyNow = &transport.BuyNowItem{VariantID: v.ID, Quantity: 1}
	req.ShippingAddress = nil
	req.ShippingAddressID = &saved.ID
	req.BillingAddress = &testAddress

	res, err := s.svc.Checkout(s.ctx, userID, req)
	s.Require().NoError(err)

	stored := s.reload(res.Order.ID)
	s.Equal("9 Oak", stored.ShippingAddress.Street)
	s.Equal(testAddress, stored.BillingAddress)

	s.Require().NoError(s.db.Model(saved).Update("street", "10 Oak").Error)
	s.Equal("9 Oak", s.reload(res.Order.ID).ShippingAddress.Street, "the snapshot ignores later edits")
}

func (s *OrderServiceSuite) TestVerifyPayment() {
	userID := uuid.New()
	v := s.seedVariant("25.00", ptr(3))
	order := s.newOrder(userID, s.line(v, 2))

	s.gateway.payments["txn_pending"] = payment.Payment{Reference: "txn_pending", OrderID: order.ID.String(), Status: payment.StatusPending, Amount: dec("50.00")}
	s.gateway.payments["txn_other"] = payment.Payment{Reference: "txn_other", OrderID: uuid.NewString(), Status: payment.StatusSucceeded, Amount: dec("50.00")}
	s.gateway.payments["txn_short"] = payment.Payment{Reference: "txn_short", OrderID: order.ID.String(), Status: payment.StatusSucceeded, Amount: dec("49.99")}
	s.gateway.payments["txn_ok"] = payment.Payment{Reference: "txn_ok", OrderID: order.OrderNumber, Status: payment.StatusSucceeded, Amount: dec("50.00")}

	_, err := s.svc.VerifyPayment(s.ctx, uuid.New(), order.ID, "txn_ok")
	s.ErrorIs(err, ErrNotFound)

	for _, ref := range []string{"txn_missing", "txn_pending", "txn_other", "txn_short"} {
		_, err := s.svc.VerifyPayment(s.ctx, userID, order.ID, ref)
		s.ErrorIs(err, ErrPaymentNotConfirmed, ref)
	}
	s.Equal(models.PaymentPending, s.reload(order.ID).PaymentStatus)

	res, err := s.svc.VerifyPayment(s.ctx, userID, order.ID, "txn_ok")
	s.Require().NoError(err)
	s.False(res.AlreadyProcessed)
	s.Equal(1, *s.stockOf(v.ID))

	res, err = s.svc.VerifyPayment(s.ctx, userID, order.ID, "txn_ok")
	s.Require().NoError(err)
	s.True(res.AlreadyProcessed)
}

func checkoutRequest(code *string, couponID *uuid.UUID) transport.CheckoutRequest {
	addr := testAddress
	return transport.CheckoutRequest{ShippingAddress: &addr, CouponCode: code, CouponID: couponID}
}

func (s *OrderServiceSuite) webhookBody(id, typ string, orderID uuid.UUID, ref string) ([]byte, string) {
	var p transport.WebhookPayload
	p.ID, p.Type = id, typ
	p.Data.OrderID = orderID.String()
	p.Data.PaymentReference = ref
	body, err := json.Marshal(p)
	s.Require().NoError(err)
	return body, webhook.Sign(s.svc.WebhookSecret, body)
}

func (s *OrderServiceSuite) TestHandleWebhook_BadSignatureChangesNothing() {
	v := s.seedVariant("5.00", ptr(4))
	order := s.newOrder(uuid.New(), s.line(v, 1))
	body, _ := s.webhookBody("evt_forged", EventPaymentSucceeded, order.ID, "txn_forged")

	for _, sig := range []string{"", "deadbeef", webhook.Sign([]byte("other secret"), body)} {
		_, err := s.svc.HandleWebhook(s.ctx, body, sig)
		s.ErrorIs(err, webhook.ErrInvalidSignature)
	}

	s.Equal(models.PaymentPending, s.reload(order.ID).PaymentStatus)
	s.Equal(4, *s.stockOf(v.ID))
	s.Empty(s.outboxKinds(order.ID))
	seen, err := s.svc.Repo.WebhookProcessed(s.ctx, "evt_forged")
	s.Require().NoError(err)
	s.False(seen)
}

func (s *OrderServiceSuite) TestHandleWebhook_SucceededIsProcessedOnce() {
	v := s.seedVariant("5.00", ptr(4))
	order := s.newOrder(uuid.New(), s.line(v, 2))
	body, sig := s.webhookBody("evt_1", EventPaymentSucceeded, order.ID, "txn_hook")

	res, err := s.svc.HandleWebhook(s.ctx, body, sig)
	s.Require().NoError(err)
	s.False(res.Duplicate)
	s.Equal(models.PaymentPaid, s.reload(order.ID).PaymentStatus)
	s.Equal(2, *s.stockOf(v.ID))

	res, err = s.svc.HandleWebhook(s.ctx, body, sig)
	s.Require().NoError(err)
	s.True(res.Duplicate)

	s.svc.Dedup = nil
	res, err = s.svc.HandleWebhook(s.ctx, body, sig)
	s.Require().NoError(err)
	s.True(res.Duplicate, "the webhook_events table filters without the gate")

	s.Equal(2, *s.stockOf(v.ID))
	s.Len(s.outboxKinds(order.ID), 1)
}

func (s *OrderServiceSuite) TestHandleWebhook_GateOutageFallsBackToTable() {
	v := s.seedVariant("5.00", nil)
	order := s.newOrder(uuid.New(), s.line(v, 1))
	s.gate.err = errors.New("redis down")
	body, sig := s.webhookBody("evt_gate", EventPaymentSucceeded, order.ID, "txn_gate")

	res, err := s.svc.HandleWebhook(s.ctx, body, sig)
	s.Require().NoError(err)
	s.False(res.Duplicate)
	s.Equal(models.PaymentPaid, s.reload(order.ID).PaymentStatus)

	res, err = s.svc.HandleWebhook(s.ctx, body, sig)
	s.Require().NoError(err)
	s.True(res.Duplicate)
}

func (s *OrderServiceSuite) TestHandleWebhook_FailedAndIgnored() {
	v := s.seedVariant("5.00", nil)
	order := s.newOrder(uuid.New(), s.line(v, 1))

	body, sig := s.webhookBody("evt_fail", EventPaymentFailed, order.ID, "txn_declined")
	res, err := s.svc.HandleWebhook(s.ctx, body, sig)
	s.Require().NoError(err)
	s.False(res.Ignored)
	s.Equal(models.PaymentFailed, s.reload(order.ID).PaymentStatus)

	body, sig = s.webhookBody("evt_other", "payment.disputed", order.ID, "")
	res, err = s.svc.HandleWebhook(s.ctx, body, sig)
	s.Require().NoError(err)
	s.True(res.Ignored)
	s.Equal(models.PaymentFailed, s.reload(order.ID).PaymentStatus)
}

func (s *OrderServiceSuite) TestHandleWebhook_CancelledOrderIsRecordedNotRetried() {
	userID := uuid.New()
	v := s.seedVariant("5.00", ptr(4))
	order := s.newOrder(userID, s.line(v, 1))
	_, err := s.svc.CancelOrder(s.ctx, order.ID, Actor{ID: userID})
	s.Require().NoError(err)

	body, sig := s.webhookBody("evt_late", EventPaymentSucceeded, order.ID, "txn_late")
	res, err := s.svc.HandleWebhook(s.ctx, body, sig)
	s.Require().NoError(err)
	s.True(res.Rejected)
	s.True(s.gate.claimed["evt_late"], "the gate stays claimed")

	seen, err := s.svc.Repo.WebhookProcessed(s.ctx, "evt_late")
	s.Require().NoError(err)
	s.True(seen)

	stored := s.reload(order.ID)
	s.Equal(models.StatusCancelled, stored.OrderStatus)
	s.Equal(models.PaymentPending, stored.PaymentStatus)
	s.Equal(4, *s.stockOf(v.ID))

	res, err = s.svc.HandleWebhook(s.ctx, body, sig)
	s.Require().NoError(err)
	s.True(res.Duplicate)
}

func (s *OrderServiceSuite) TestHandleWebhook_ReleasesGateOnFailure() {
	body, sig := s.webhookBody("evt_missing", EventPaymentSucceeded, uuid.New(), "txn")

	_, err := s.svc.HandleWebhook(s.ctx, body, sig)
	s.ErrorIs(err, ErrNotFound)
	s.False(s.gate.claimed["evt_missing"], "a failed event can be redelivered")

	seen, err := s.svc.Repo.WebhookProcessed(s.ctx, "evt_missing")
	s.Require().NoError(err)
	s.False(seen)

	_, err = s.svc.HandleWebhook(s.ctx, []byte("{not json"), webhook.Sign(s.svc.WebhookSecret, []byte("{not json")))
	s.ErrorIs(err, ErrValidation)
}
