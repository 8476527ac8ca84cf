package settings

import (
	"context"
	"strings"
)

// Trigger selects which checkout event causes a purchase attempt.
type Trigger string

const (
	TriggerOrderProcessed  Trigger = "order_processed"
	TriggerPaymentComplete Trigger = "payment_complete"
)

// Well-known keys in the settings store.
const (
	KeyAPIBase         = "api_base"
	KeyAPIKey          = "api_key"
	KeyPurchaseTrigger = "purchase_trigger"
	KeyMaxRetries      = "max_retries"
)

// Settings is the runtime configuration for the insurance integration.
// It is re-read from the store on every purchase attempt, so admin changes
// apply to retries already in flight.
type Settings struct {
	// APIBase is the remote insurance API base URL, without trailing slash.
	APIBase string
	// APIKeyEncrypted is the vault-encrypted API key; empty means no key.
	APIKeyEncrypted string
	PurchaseTrigger Trigger
	MaxRetries      int
}

// Source provides read access to the settings store.
type Source interface {
	Load(ctx context.Context) (Settings, error)
}

// Store is a Source that can also persist changes, for the admin surface.
type Store interface {
	Source
	Save(ctx context.Context, s Settings) error
}

// Normalize clamps and defaults raw stored values.
func (s Settings) Normalize() Settings {
	s.APIBase = strings.TrimRight(strings.TrimSpace(s.APIBase), "/")
	if s.PurchaseTrigger != TriggerOrderProcessed && s.PurchaseTrigger != TriggerPaymentComplete {
		s.PurchaseTrigger = TriggerOrderProcessed
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	return s
}
