package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
)

const (
	signatureTolerance = 5 * time.Minute

	eventCheckoutCompleted     = "checkout.session.completed"
	eventSubscriptionUpdated   = "customer.subscription.updated"
	eventSubscriptionDeleted   = "customer.subscription.deleted"
	subscriptionStatusCanceled = "canceled"
)

type billingEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

// HandleBillingEvent verifies and applies a signed billing event.
// It reports whether the event type was handled; unknown types are ignored.
func (a *App) HandleBillingEvent(ctx context.Context, payload []byte, signatureHeader string) (bool, error) {
	if a.billingSecret == "" {
		return false, ErrBillingDisabled
	}
	if err := verifySignature(a.billingSecret, signatureHeader, payload, a.now(), signatureTolerance); err != nil {
		return false, err
	}
	var event billingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return false, invalid("invalid billing event payload")
	}
	switch event.Type {
	case eventCheckoutCompleted:
		var session checkoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return false, invalid("invalid checkout session")
		}
		return true, a.applyCheckout(session)
	case eventSubscriptionUpdated, eventSubscriptionDeleted:
		var sub subscription
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return false, invalid("invalid subscription")
		}
		return true, a.applySubscriptionChange(event.Type, sub)
	default:
		a.logger.Info("billing_event_ignored", "type", event.Type, "event_id", event.ID)
		return false, nil
	}
}

func (a *App) applyCheckout(session checkoutSession) error {
	ownerID := strings.TrimSpace(session.Metadata["userId"])
	if ownerID == "" {
		return invalid("missing userId in checkout metadata")
	}
	plan := domain.PlanID(strings.TrimSpace(session.Metadata["plan"]))
	if plan == "" {
		plan = domain.PlanPro
	}
	limit := domain.PlanLimit(plan)
	if limit == 0 {
		return invalid(fmt.Sprintf("unknown plan %q", plan))
	}
	credits, err := a.store.GetOrCreateCredits(ownerID)
	if err != nil {
		return fmt.Errorf("load credits: %w", err)
	}
	credits.Plan = plan
	credits.SummariesLeft = limit
	credits.SubscriptionStatus = domain.SubscriptionActive
	credits.CustomerID = session.Customer
	credits.SubscriptionID = session.Subscription
	credits.UpdatedAt = a.now()
	if err := a.store.SaveCredits(credits); err != nil {
		return fmt.Errorf("save credits: %w", err)
	}
	a.logger.Info("billing_plan_activated", "owner_id", ownerID, "plan", plan)
	return nil
}

// applySubscriptionChange keeps the current plan while an updated subscription
// stays active and falls back to the free plan otherwise.
func (a *App) applySubscriptionChange(eventType string, sub subscription) error {
	customerID := strings.TrimSpace(sub.Customer)
	if customerID == "" {
		return invalid("missing customer in subscription")
	}
	credits, ok, err := a.store.GetCreditsByCustomer(customerID)
	if err != nil {
		return fmt.Errorf("lookup customer: %w", err)
	}
	if !ok {
		return invalid("no user for billing customer")
	}
	status := strings.TrimSpace(sub.Status)
	if status == "" && eventType == eventSubscriptionDeleted {
		status = subscriptionStatusCanceled
	}
	credits.SubscriptionStatus = domain.SubscriptionStatus(status)
	if sub.ID != "" {
		credits.SubscriptionID = sub.ID
	}
	active := eventType == eventSubscriptionUpdated && credits.SubscriptionStatus == domain.SubscriptionActive
	if !active {
		credits.Plan = domain.PlanFree
		credits.SummariesLeft = domain.PlanLimit(domain.PlanFree)
	}
	credits.UpdatedAt = a.now()
	if err := a.store.SaveCredits(credits); err != nil {
		return fmt.Errorf("save credits: %w", err)
	}
	a.logger.Info("billing_subscription_changed", "owner_id", credits.OwnerID, "status", status, "plan", credits.Plan)
	return nil
}

// verifySignature checks a "t=<unix>,v1=<hex>" header where v1 is
// HMAC-SHA256 over "<t>.<payload>".
func verifySignature(secret, header string, payload []byte, now time.Time, tolerance time.Duration) error {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if age := now.Sub(time.Unix(ts, 0)); age > tolerance || age < -tolerance {
		return ErrInvalidSignature
	}
	expected := signPayload(secret, timestamp, payload)
	for _, sig := range signatures {
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func signPayload(secret, timestamp string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
