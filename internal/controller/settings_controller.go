package controller

import (
	"context"
	"net/http"

	"github.com/genovahq/insurance/internal/domain/settings"
	"github.com/genovahq/insurance/internal/vault"
	"github.com/rs/zerolog/log"
)

// PlanCacheInvalidator drops cached provider data when the configuration it
// was fetched under changes.
type PlanCacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// SettingsController is the admin surface for the runtime integration
// settings. The API key is write-only: it arrives in plaintext, is encrypted
// with the vault before storage, and is never echoed back.
type SettingsController struct {
	store     settings.Store
	vault     *vault.Vault
	planCache PlanCacheInvalidator
}

func NewSettingsController(store settings.Store, v *vault.Vault, planCache PlanCacheInvalidator) *SettingsController {
	return &SettingsController{store: store, vault: v, planCache: planCache}
}

// Get handles GET /api/v1/admin/settings.
func (c *SettingsController) Get(w http.ResponseWriter, r *http.Request) {
	s, err := c.store.Load(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{
		APIBase:         s.APIBase,
		APIKeySet:       s.APIKeyEncrypted != "",
		PurchaseTrigger: string(s.PurchaseTrigger),
		MaxRetries:      s.MaxRetries,
	})
}

// Update handles PUT /api/v1/admin/settings.
func (c *SettingsController) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	encrypted, err := c.vault.Encrypt(req.APIKey)
	if err != nil {
		writeError(w, err)
		return
	}

	s := settings.Settings{
		APIBase:         req.APIBase,
		APIKeyEncrypted: encrypted,
		PurchaseTrigger: settings.Trigger(req.PurchaseTrigger),
		MaxRetries:      req.MaxRetries,
	}.Normalize()

	if err := c.store.Save(r.Context(), s); err != nil {
		writeError(w, err)
		return
	}

	// A new API base or key can point at a different provider; cached plans
	// from the old one must not survive the switch.
	if c.planCache != nil {
		if err := c.planCache.Invalidate(r.Context()); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate plan cache after settings update")
		}
	}

	writeJSON(w, http.StatusOK, SettingsResponse{
		APIBase:         s.APIBase,
		APIKeySet:       s.APIKeyEncrypted != "",
		PurchaseTrigger: string(s.PurchaseTrigger),
		MaxRetries:      s.MaxRetries,
	})
}
