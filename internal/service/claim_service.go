package service

import (
	"context"

	domainErrors "github.com/genovahq/insurance/internal/domain/errors"
	"github.com/genovahq/insurance/internal/genova"
	"github.com/genovahq/insurance/internal/infrastructure/observability"
)

// ClaimAPI is the slice of the provider client the claim surface needs.
type ClaimAPI interface {
	SubmitClaim(ctx context.Context, req genova.ClaimRequest) genova.Result
}

// ClaimService forwards policy claims to the provider.
type ClaimService struct {
	api     ClaimAPI
	metrics *observability.Metrics
}

func NewClaimService(api ClaimAPI, metrics *observability.Metrics) *ClaimService {
	return &ClaimService{api: api, metrics: metrics}
}

// SubmitClaim files a claim for a policy. The returned claim id is empty when
// the provider acknowledged without assigning one.
func (s *ClaimService) SubmitClaim(ctx context.Context, policyID, reason string) (string, error) {
	res := s.api.SubmitClaim(ctx, genova.ClaimRequest{PolicyID: policyID, Reason: reason})
	if !res.Success {
		s.metrics.ClaimsTotal.WithLabelValues("failure").Inc()
		if res.Kind == genova.FailConfiguration {
			return "", domainErrors.ErrAPIBaseNotConfigured
		}
		return "", domainErrors.NewDomainError("claim_rejected", res.Message, domainErrors.ErrProviderUnavailable)
	}

	s.metrics.ClaimsTotal.WithLabelValues("success").Inc()
	return res.ClaimID, nil
}
