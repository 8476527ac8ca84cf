package genova

// Plan is an insurance product offering from the remote provider.
type Plan struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// FailureKind classifies a failed API call for retry decisions.
type FailureKind string

const (
	// FailConfiguration means the call was never sent (API base unset).
	// Never retried.
	FailConfiguration FailureKind = "configuration"
	// FailTransport covers DNS, connect and timeout errors.
	FailTransport FailureKind = "transport"
	// FailRemote covers any non-2xx response. 4xx and 5xx are treated
	// uniformly as retryable.
	FailRemote FailureKind = "remote_rejection"
	// FailMalformed covers non-JSON bodies or bodies missing required fields.
	FailMalformed FailureKind = "malformed_response"
	// FailInternal covers local hard failures (payload serialization and the
	// like), converted into a result so callers never need to recover a panic
	// or wrap the call in error handling.
	FailInternal FailureKind = "internal"
)

// Result is the uniform outcome of every API operation. Business-level
// failures never surface as Go errors; the purchase engine only ever
// branches on Success and Kind.
type Result struct {
	Success bool
	Message string
	Kind    FailureKind // empty on success

	// PolicyID is set on successful Purchase calls.
	PolicyID string
	// ClaimID is set on successful SubmitClaim calls when the provider
	// returned one; it is optional.
	ClaimID string
	// Raw holds the full response body of a successful Purchase, stored for
	// audit and admin display.
	Raw []byte
}

// Retryable reports whether a failed call may be attempted again.
// Configuration failures are terminal until an admin fixes the settings.
func (r Result) Retryable() bool {
	return !r.Success && r.Kind != FailConfiguration
}

func success() Result {
	return Result{Success: true, Message: "OK"}
}

func failure(kind FailureKind, message string) Result {
	return Result{Success: false, Kind: kind, Message: message}
}

// BuyerPayload is the buyer block of a purchase request.
type BuyerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ItemPayload is one order line item of a purchase request.
type ItemPayload struct {
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// PurchaseRequest is the payload of POST /purchase.
type PurchaseRequest struct {
	OrderID    string        `json:"order_id"`
	PlanID     string        `json:"plan_id"`
	Buyer      BuyerPayload  `json:"buyer"`
	Items      []ItemPayload `json:"items"`
	OrderTotal float64       `json:"order_total"`

	// IdempotencyKey travels as a header, not in the body, so replayed
	// attempts present the same token to the provider.
	IdempotencyKey string `json:"-"`
}

// ClaimRequest is the payload of POST /claim.
type ClaimRequest struct {
	PolicyID string `json:"policy_id"`
	Reason   string `json:"reason"`
}

type purchaseResponse struct {
	PolicyID string `json:"policy_id"`
}

type claimResponse struct {
	ClaimID string `json:"claim_id"`
}
