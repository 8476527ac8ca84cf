package controller

import (
	"net/http"

	domainErrors "github.com/genovahq/insurance/internal/domain/errors"
	"github.com/genovahq/insurance/internal/domain/settings"
	"github.com/genovahq/insurance/internal/service"
	"github.com/go-chi/chi/v5"
)

// InsuranceController exposes the checkout add-on surface: plan listing and
// selection, per-order status, checkout event intake, claims and the bulk
// retry endpoint.
type InsuranceController struct {
	plans     *service.PlanService
	purchases *service.PurchaseService
	claims    *service.ClaimService
	settings  settings.Source
}

func NewInsuranceController(
	plans *service.PlanService,
	purchases *service.PurchaseService,
	claims *service.ClaimService,
	src settings.Source,
) *InsuranceController {
	return &InsuranceController{
		plans:     plans,
		purchases: purchases,
		claims:    claims,
		settings:  src,
	}
}

// ListPlans handles GET /api/v1/plans.
func (c *InsuranceController) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := c.plans.ListPlans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromPlans(plans))
}

// SelectPlan handles POST /api/v1/orders/{id}/insurance.
func (c *InsuranceController) SelectPlan(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, domainErrors.NewValidationError("id", "order id required"))
		return
	}

	var req SelectPlanRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rec, err := c.plans.SelectPlan(r.Context(), orderID, req.PlanID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FromRecord(rec))
}

// GetStatus handles GET /api/v1/orders/{id}/insurance.
func (c *InsuranceController) GetStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, domainErrors.NewValidationError("id", "order id required"))
		return
	}

	rec, err := c.purchases.Status(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromRecord(rec))
}

// CheckoutEvent handles POST /api/v1/events/checkout. The purchase engine
// only runs when the event matches the configured trigger; the engine itself
// never sees event types.
func (c *InsuranceController) CheckoutEvent(w http.ResponseWriter, r *http.Request) {
	var req CheckoutEventRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cfg, err := c.settings.Load(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if settings.Trigger(req.Event) != cfg.PurchaseTrigger {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}

	if err := c.purchases.Enqueue(r.Context(), req.OrderID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "processed"})
}

// SubmitClaim handles POST /api/v1/claims.
func (c *InsuranceController) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	claimID, err := c.claims.SubmitClaim(r.Context(), req.PolicyID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ClaimResponse{
		ClaimID:  claimID,
		PolicyID: req.PolicyID,
		Status:   "submitted",
	})
}

// RetryFailed handles POST /api/v1/insurance/retry-failed.
func (c *InsuranceController) RetryFailed(w http.ResponseWriter, r *http.Request) {
	var req RetryFailedRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = 50
	}

	retried, err := c.purchases.RetryFailed(r.Context(), req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RetryFailedResponse{Retried: retried})
}
