package insurance

import (
	"context"
	"time"

	"github.com/genovahq/insurance/internal/domain/errors"
)

// Status represents the purchase state of an order's insurance in the state machine.
type Status string

const (
	// StatusNoPlan means the order has no insurance plan selected; it is
	// permanently skipped by the purchase engine.
	StatusNoPlan Status = "no_plan"
	// StatusPending means a plan is selected and no attempt has concluded yet.
	StatusPending Status = "pending"
	// StatusScheduled means the last attempt failed and a retry is queued.
	StatusScheduled Status = "scheduled"
	// StatusPurchased is terminal: the policy exists.
	StatusPurchased Status = "purchased"
	// StatusFailedNoRetry is terminal: the first attempt failed and no
	// scheduler was available to retry it.
	StatusFailedNoRetry Status = "failed_no_retry"
	// StatusExhausted is terminal: all retries were consumed.
	StatusExhausted Status = "exhausted"
)

// ExhaustedPrefix prefixes the persisted error message when retries run out,
// so admin tooling can tell "gave up" from "never configured".
const ExhaustedPrefix = "Max retries reached: "

// Record is the per-order insurance state the purchase engine operates on.
// OrderID is a foreign key into the host order store and is never generated here.
type Record struct {
	OrderID       string
	PlanID        string
	FeeCents      int64
	PolicyID      string
	RetryCount    *int
	LastError     *string
	PolicyPayload []byte
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewRecord creates an empty record for an order with no plan selected.
func NewRecord(orderID string) *Record {
	now := time.Now()
	return &Record{
		OrderID:   orderID,
		Status:    StatusNoPlan,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Purchased reports whether a policy was already bought for this order.
// This is the idempotency marker: once true, no further purchase attempt
// may be made.
func (r *Record) Purchased() bool {
	return r.PolicyID != ""
}

// HasPlan reports whether the order has an insurance plan selected.
func (r *Record) HasPlan() bool {
	return r.PlanID != ""
}

// Terminal reports whether the record can no longer change state.
func (r *Record) Terminal() bool {
	return r.Status == StatusPurchased || r.Status == StatusFailedNoRetry || r.Status == StatusExhausted
}

// CanTransitionTo checks whether the record may move to the given status.
func (r *Record) CanTransitionTo(next Status) bool {
	transitions := map[Status][]Status{
		StatusNoPlan:  {StatusPending},
		StatusPending: {StatusPurchased, StatusScheduled, StatusFailedNoRetry, StatusExhausted},
		StatusScheduled: {
			StatusPurchased,
			StatusScheduled, // next retry generation
			StatusExhausted,
			StatusFailedNoRetry, // scheduler lost, or configuration broke mid-chain
		},
		StatusPurchased:     {},
		StatusFailedNoRetry: {StatusPending}, // manual re-enqueue
		StatusExhausted:     {StatusPending}, // manual re-enqueue
	}

	allowed, ok := transitions[r.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == next {
			return true
		}
	}
	return false
}

func (r *Record) transitionTo(next Status) error {
	if !r.CanTransitionTo(next) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(r.Status)+" to "+string(next),
			errors.ErrInvalidStateTransition,
		)
	}
	r.Status = next
	r.UpdatedAt = time.Now()
	return nil
}

// SelectPlan sets the chosen plan and fee. Both are write-once.
func (r *Record) SelectPlan(planID string, feeCents int64) error {
	if r.HasPlan() {
		return errors.ErrPlanAlreadySelected
	}
	if planID == "" {
		return errors.NewValidationError("plan_id", "cannot be empty")
	}
	if feeCents < 0 {
		return errors.NewValidationError("fee", "must not be negative")
	}
	if err := r.transitionTo(StatusPending); err != nil {
		return err
	}
	r.PlanID = planID
	r.FeeCents = feeCents
	return nil
}

// MarkPurchased records a successful purchase. PolicyID is write-once; the
// retry bookkeeping is cleared so the terminal state is unambiguous.
func (r *Record) MarkPurchased(policyID string, rawPayload []byte) error {
	if r.Purchased() {
		return errors.ErrPolicyAlreadyPurchased
	}
	if policyID == "" {
		return errors.NewValidationError("policy_id", "cannot be empty")
	}
	if err := r.transitionTo(StatusPurchased); err != nil {
		return err
	}
	r.PolicyID = policyID
	r.PolicyPayload = rawPayload
	r.RetryCount = nil
	r.LastError = nil
	return nil
}

// MarkScheduled records a failed attempt with a retry queued behind it.
func (r *Record) MarkScheduled(retryCount int, lastError string) error {
	if err := r.transitionTo(StatusScheduled); err != nil {
		return err
	}
	r.RetryCount = &retryCount
	r.LastError = &lastError
	return nil
}

// MarkFailedNoRetry records a failure the retry chain will not pursue: the
// scheduler is gone, or the configuration broke. Unlike exhaustion the error
// message carries no prefix, and the retry bookkeeping is left as it was.
func (r *Record) MarkFailedNoRetry(lastError string) error {
	if err := r.transitionTo(StatusFailedNoRetry); err != nil {
		return err
	}
	r.LastError = &lastError
	return nil
}

// MarkExhausted records terminal failure after retries ran out. The message
// keeps the ExhaustedPrefix intact for downstream tooling.
func (r *Record) MarkExhausted(retryCount int, message string) error {
	if err := r.transitionTo(StatusExhausted); err != nil {
		return err
	}
	msg := ExhaustedPrefix + message
	r.RetryCount = &retryCount
	r.LastError = &msg
	return nil
}

// ResetForRetry re-arms a terminally failed record for a manual re-enqueue.
func (r *Record) ResetForRetry() error {
	if r.Purchased() {
		return errors.ErrPolicyAlreadyPurchased
	}
	if err := r.transitionTo(StatusPending); err != nil {
		return err
	}
	r.RetryCount = nil
	r.LastError = nil
	return nil
}

// Retries returns the persisted retry count, treating missing as zero.
func (r *Record) Retries() int {
	if r.RetryCount == nil {
		return 0
	}
	return *r.RetryCount
}

// Repository is the persistence boundary for insurance records.
// Implementations must persist each state transition as a single atomic write.
type Repository interface {
	// Get returns the record for an order, or ErrRecordNotFound.
	Get(ctx context.Context, orderID string) (*Record, error)
	// GetOrCreate returns the record for an order, creating an empty no_plan
	// record if none exists yet.
	GetOrCreate(ctx context.Context, orderID string) (*Record, error)
	// Save upserts the full record state.
	Save(ctx context.Context, rec *Record) error
	// ListFailed returns up to limit records carrying a purchase error
	// (failed_no_retry or exhausted), oldest first.
	ListFailed(ctx context.Context, limit int) ([]*Record, error)
}
