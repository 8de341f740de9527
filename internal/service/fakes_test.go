package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	stripego "github.com/stripe/stripe-go/v78"
	"go.uber.org/goleak"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/internal/integration/stripe"
	"github.com/Dhoini/job-tracker/internal/kafka"
	"github.com/Dhoini/job-tracker/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testMapper() *stripe.Mapper {
	return stripe.NewMapper(stripe.Prices{Pro: "price_pro_1", Team: "price_team_1"}, fixedClock)
}

// fakeStripe - Stripe API в памяти.
type fakeStripe struct {
	mu        sync.Mutex
	subs      map[string][]*stripego.Subscription // customerID -> подписки
	customers map[string]string                   // userID -> customerID
	listErr   error
	listCalls int
	mutations int
	checkouts []stripe.CheckoutInput
}

func newFakeStripe() *fakeStripe {
	return &fakeStripe{
		subs:      make(map[string][]*stripego.Subscription),
		customers: make(map[string]string),
	}
}

func (f *fakeStripe) addSubscription(sub *stripego.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub.Customer.ID] = append(f.subs[sub.Customer.ID], sub)
}

func (f *fakeStripe) FindOrCreateCustomer(ctx context.Context, in stripe.CustomerInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.customers[in.UserID]; ok {
		return id, nil
	}
	id := "cus_" + in.UserID
	f.customers[in.UserID] = id
	return id, nil
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, in stripe.CheckoutInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, in)
	return fmt.Sprintf("https://checkout.stripe.test/%s/%d", in.CustomerID, len(f.checkouts)), nil
}

func (f *fakeStripe) ListSubscriptions(ctx context.Context, customerID string) ([]*stripego.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*stripego.Subscription, 0, len(f.subs[customerID]))
	for _, s := range f.subs[customerID] {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStripe) CancelSubscription(ctx context.Context, subscriptionID string) (*stripego.Subscription, error) {
	return f.update(subscriptionID, func(s *stripego.Subscription) {
		s.Status = stripego.SubscriptionStatusCanceled
		s.CanceledAt = testNow.Unix()
	})
}

func (f *fakeStripe) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*stripego.Subscription, error) {
	return f.update(subscriptionID, func(s *stripego.Subscription) {
		s.CancelAtPeriodEnd = cancel
	})
}

func (f *fakeStripe) update(id string, fn func(*stripego.Subscription)) (*stripego.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, subs := range f.subs {
		for _, s := range subs {
			if s.ID == id {
				f.mutations++
				fn(s)
				cp := *s
				return &cp, nil
			}
		}
	}
	return nil, errors.New("no such subscription: " + id)
}

func subscription(id, customerID string, status stripego.SubscriptionStatus, priceID string, created int64) *stripego.Subscription {
	return &stripego.Subscription{
		ID:               id,
		Customer:         &stripego.Customer{ID: customerID},
		Status:           status,
		Created:          created,
		CurrentPeriodEnd: created + 30*24*3600,
		Items: &stripego.SubscriptionItemList{
			Data: []*stripego.SubscriptionItem{{ID: "si_" + id, Price: &stripego.Price{ID: priceID}}},
		},
	}
}

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu      sync.Mutex
	billing []kafka.BillingUpdated
	synced  []kafka.CollectionSynced
}

func (p *recordingPublisher) PublishBillingUpdated(ctx context.Context, e kafka.BillingUpdated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.billing = append(p.billing, e)
	return nil
}

func (p *recordingPublisher) PublishCollectionSynced(ctx context.Context, e kafka.CollectionSynced) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.synced = append(p.synced, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// mapCache - WorkspaceCache в памяти.
type mapCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	hits        int
	invalidated []string
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(ctx context.Context, userID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[userID]
	if ok {
		c.hits++
	}
	return v, nil
}

func (c *mapCache) Set(ctx context.Context, userID string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[userID] = data
	return nil
}

func (c *mapCache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

// countingItems считает пакеты и может уронить пакет с заданным номером (с 1).
type countingItems struct {
	repository.ItemRepository
	attempts  int
	committed []int
	failOn    int
}

func (c *countingItems) ApplyBatch(ctx context.Context, collection domain.Collection, userID string, ops []repository.Op) error {
	c.attempts++
	if c.attempts == c.failOn {
		return errors.New("commit failed")
	}
	if err := c.ItemRepository.ApplyBatch(ctx, collection, userID, ops); err != nil {
		return err
	}
	c.committed = append(c.committed, len(ops))
	return nil
}

func stripeMapperWithoutPrices() *stripe.Mapper {
	return stripe.NewMapper(stripe.Prices{}, fixedClock)
}
