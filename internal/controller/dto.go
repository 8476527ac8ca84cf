package controller

import (
	"time"

	"github.com/genovahq/insurance/internal/domain/insurance"
	"github.com/genovahq/insurance/internal/genova"
)

// --- Request DTOs ---
// DTOs handle HTTP/JSON concerns (float64 for money on the wire, validation
// tags); controllers convert them before calling business logic.

// SelectPlanRequest attaches an insurance plan to an order.
type SelectPlanRequest struct {
	PlanID string `json:"plan_id" validate:"required"`
}

// CheckoutEventRequest is the order-lifecycle event intake.
type CheckoutEventRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Event   string `json:"event" validate:"required,oneof=order_processed payment_complete"`
}

// ClaimRequest files a claim against a purchased policy.
type ClaimRequest struct {
	PolicyID string `json:"policy_id" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
}

// RetryFailedRequest re-enqueues terminally failed purchases.
type RetryFailedRequest struct {
	Limit int `json:"limit" validate:"gte=0,lte=500"`
}

// UpdateSettingsRequest replaces the runtime integration settings. APIKey is
// accepted in plaintext and stored encrypted; an empty value clears the key.
type UpdateSettingsRequest struct {
	APIBase         string `json:"api_base" validate:"omitempty,url"`
	APIKey          string `json:"api_key"`
	PurchaseTrigger string `json:"purchase_trigger" validate:"omitempty,oneof=order_processed payment_complete"`
	MaxRetries      int    `json:"max_retries" validate:"gte=0,lte=100"`
}

// --- Response DTOs ---

// PlanResponse is one insurance plan offering.
type PlanResponse struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// InsuranceResponse is the per-order insurance state.
type InsuranceResponse struct {
	OrderID    string    `json:"order_id"`
	Status     string    `json:"status"`
	PlanID     string    `json:"plan_id,omitempty"`
	Fee        float64   `json:"fee"`
	PolicyID   string    `json:"policy_id,omitempty"`
	RetryCount *int      `json:"retry_count,omitempty"`
	LastError  *string   `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ClaimResponse acknowledges a filed claim.
type ClaimResponse struct {
	ClaimID  string `json:"claim_id,omitempty"`
	PolicyID string `json:"policy_id"`
	Status   string `json:"status"`
}

// RetryFailedResponse reports how many orders were re-enqueued.
type RetryFailedResponse struct {
	Retried int `json:"retried"`
}

// SettingsResponse is the admin view of the runtime settings. The API key is
// never returned, only whether one is configured.
type SettingsResponse struct {
	APIBase         string `json:"api_base"`
	APIKeySet       bool   `json:"api_key_set"`
	PurchaseTrigger string `json:"purchase_trigger"`
	MaxRetries      int    `json:"max_retries"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromRecord converts a domain insurance record to an API response.
func FromRecord(rec *insurance.Record) *InsuranceResponse {
	return &InsuranceResponse{
		OrderID:    rec.OrderID,
		Status:     string(rec.Status),
		PlanID:     rec.PlanID,
		Fee:        centsToFloat(rec.FeeCents),
		PolicyID:   rec.PolicyID,
		RetryCount: rec.RetryCount,
		LastError:  rec.LastError,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

// FromPlans converts provider plans to API responses.
func FromPlans(plans []genova.Plan) []PlanResponse {
	out := make([]PlanResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, PlanResponse{ID: p.ID, Name: p.Name, Price: p.Price})
	}
	return out
}

// centsToFloat converts cents to a float amount for the wire.
func centsToFloat(cents int64) float64 {
	return float64(cents) / 100.0
}
