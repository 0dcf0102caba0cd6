package stripewebhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"
)

func TestService_CheckoutCompletedActivatesSubscription(t *testing.T) {
	subs := &stubSubscriptions{}
	svc := newTestService(t, subs, &stubCredits{}, newStubStore())

	event := &stripe.Event{
		ID:   "evt_1",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: []byte(`{"id":"cs_1","customer":"cus_1","subscription":"sub_1","metadata":{"userId":"user-1"}}`)},
	}
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if subs.activated != "user-1|cus_1|sub_1" {
		t.Fatalf("unexpected activation %q", subs.activated)
	}
}

func TestService_CheckoutCompletedGrantsHQCredit(t *testing.T) {
	subs := &stubSubscriptions{}
	grants := &stubCredits{}
	svc := newTestService(t, subs, grants, newStubStore())

	event := &stripe.Event{
		ID:   "evt_hq",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: []byte(`{"id":"cs_hq","payment_intent":"pi_1","metadata":{"userId":"user-2","type":"hq_purchase"}}`)},
	}
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(grants.granted) != 1 || grants.granted[0] != "user-2|cs_hq|pi_1" {
		t.Fatalf("unexpected grants %v", grants.granted)
	}
	if subs.activated != "" {
		t.Fatalf("hq purchase must not activate a subscription")
	}
}

func TestService_DuplicateEventIsAppliedOnce(t *testing.T) {
	grants := &stubCredits{}
	svc := newTestService(t, &stubSubscriptions{}, grants, newStubStore())

	event := &stripe.Event{
		ID:   "evt_dup",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: []byte(`{"id":"cs_dup","metadata":{"userId":"user-3","type":"hq_purchase"}}`)},
	}
	for i := 0; i < 3; i++ {
		if err := svc.Process(context.Background(), event); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}
	if len(grants.granted) != 1 {
		t.Fatalf("expected one grant, got %d", len(grants.granted))
	}
}

func TestService_FailedEventReleasesGuard(t *testing.T) {
	subs := &stubSubscriptions{err: errors.New("db down")}
	store := newStubStore()
	svc := newTestService(t, subs, &stubCredits{}, store)

	event := &stripe.Event{
		ID:   "evt_fail",
		Type: stripe.EventTypeCustomerSubscriptionDeleted,
		Data: &stripe.EventData{Raw: []byte(`{"id":"sub_1","customer":"cus_9"}`)},
	}
	if err := svc.Process(context.Background(), event); err == nil {
		t.Fatalf("expected error")
	}
	if len(store.keys) != 0 {
		t.Fatalf("guard should be released, got %v", store.keys)
	}

	subs.err = nil
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if subs.canceled != "cus_9" {
		t.Fatalf("expected cancel for cus_9, got %q", subs.canceled)
	}
}

func TestService_InvoicePaymentFailedMarksPastDue(t *testing.T) {
	subs := &stubSubscriptions{}
	svc := newTestService(t, subs, &stubCredits{}, newStubStore())

	event := &stripe.Event{
		ID:   "evt_inv",
		Type: stripe.EventTypeInvoicePaymentFailed,
		Data: &stripe.EventData{Raw: []byte(`{"id":"in_1","customer":"cus_5"}`)},
	}
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if subs.pastDue != "cus_5" {
		t.Fatalf("expected past due for cus_5, got %q", subs.pastDue)
	}
}

func TestService_SubscriptionUpdatedSyncs(t *testing.T) {
	subs := &stubSubscriptions{}
	svc := newTestService(t, subs, &stubCredits{}, newStubStore())

	event := &stripe.Event{
		ID:   "evt_upd",
		Type: stripe.EventTypeCustomerSubscriptionUpdated,
		Data: &stripe.EventData{Raw: []byte(`{"id":"sub_7","status":"active","customer":"cus_7","cancel_at_period_end":true}`)},
	}
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if subs.synced == nil || subs.synced.ID != "sub_7" || !subs.synced.CancelAtPeriodEnd {
		t.Fatalf("unexpected synced subscription %+v", subs.synced)
	}
}

func TestService_IgnoresUnknownEvents(t *testing.T) {
	svc := newTestService(t, &stubSubscriptions{}, &stubCredits{}, newStubStore())
	event := &stripe.Event{ID: "evt_x", Type: "customer.created", Data: &stripe.EventData{Raw: []byte(`{}`)}}
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
}

func TestService_GuardOutageStillApplies(t *testing.T) {
	subs := &stubSubscriptions{}
	store := newStubStore()
	store.err = errors.New("redis down")
	svc := newTestService(t, subs, &stubCredits{}, store)

	event := &stripe.Event{
		ID:   "evt_outage",
		Type: stripe.EventTypeInvoicePaymentFailed,
		Data: &stripe.EventData{Raw: []byte(`{"id":"in_2","customer":"cus_6"}`)},
	}
	if err := svc.Process(context.Background(), event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if subs.pastDue != "cus_6" {
		t.Fatalf("expected event applied during guard outage")
	}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatalf("expected error without dependencies")
	}
	if _, err := NewService(ServiceParams{Subscriptions: &stubSubscriptions{}, Credits: &stubCredits{}}); err == nil {
		t.Fatalf("expected error without guard store")
	}
}

func newTestService(t *testing.T, subs *stubSubscriptions, grants *stubCredits, store *stubStore) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Subscriptions: subs, Credits: grants, Guard: store})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

type stubSubscriptions struct {
	activated string
	synced    *stripe.Subscription
	canceled  string
	pastDue   string
	err       error
}

func (s *stubSubscriptions) ActivateFromCheckout(_ context.Context, userID, customerID, subscriptionID string) error {
	if s.err != nil {
		return s.err
	}
	s.activated = userID + "|" + customerID + "|" + subscriptionID
	return nil
}

func (s *stubSubscriptions) SyncFromStripe(_ context.Context, sub *stripe.Subscription) error {
	if s.err != nil {
		return s.err
	}
	s.synced = sub
	return nil
}

func (s *stubSubscriptions) MarkCanceled(_ context.Context, customerID string) error {
	if s.err != nil {
		return s.err
	}
	s.canceled = customerID
	return nil
}

func (s *stubSubscriptions) MarkPastDue(_ context.Context, customerID string) error {
	if s.err != nil {
		return s.err
	}
	s.pastDue = customerID
	return nil
}

type stubCredits struct {
	granted []string
}

func (s *stubCredits) Grant(_ context.Context, userID, sessionID, paymentIntentID string) error {
	s.granted = append(s.granted, userID+"|"+sessionID+"|"+paymentIntentID)
	return nil
}

type stubStore struct {
	mu   sync.Mutex
	keys map[string]string
	err  error
}

func newStubStore() *stubStore { return &stubStore{keys: map[string]string{}} }

func (s *stubStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *stubStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = value.(string)
	return true, nil
}

func (s *stubStore) IdempotencyKey(scope, id string) string {
	return "cm:idempotency:" + scope + ":" + id
}

func (s *stubStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.keys, k)
	}
	return nil
}
