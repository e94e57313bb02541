package credential

import (
	"context"
	"crypto/subtle"

	"leadintake/internal/config"
	"leadintake/internal/logger"
	"leadintake/pkg/errors"
	"leadintake/pkg/metrics"
)

const (
	MissingCredsMessage = "Missing creds"
	BadCredsMessage     = "Bad creds"
)

// Validator resolves a vendor credential pair to a tenant. It only reads.
type Validator struct {
	repo   Repository
	legacy config.LegacyConfig
	logger logger.Logger
}

func NewValidator(repo Repository, legacy config.LegacyConfig, log logger.Logger) *Validator {
	return &Validator{repo: repo, legacy: legacy, logger: log}
}

// Validate returns the tenant of the pair. Any non-match is an
// ErrAuthentication; a store failure is ErrInternal so that an outage is
// never reported to a vendor as bad credentials.
func (v *Validator) Validate(ctx context.Context, sid, apiKey string) (string, error) {
	if sid == "" || apiKey == "" {
		metrics.CredentialChecksTotal.WithLabelValues("missing").Inc()
		return "", errors.ErrAuthentication.WithMessage(MissingCredsMessage)
	}

	if v.repo != nil {
		c, err := v.repo.FindActive(ctx, sid, apiKey)
		switch {
		case err == nil:
			metrics.CredentialChecksTotal.WithLabelValues("store").Inc()
			return c.TenantID, nil
		case !errors.IsNotFound(err):
			if tenant, ok := v.matchLegacy(sid, apiKey); ok {
				v.logger.WarnwCtx(ctx, "Credential store unavailable, accepted legacy credential",
					"error", err,
					"sid", logger.MaskSecret(sid),
				)
				metrics.CredentialChecksTotal.WithLabelValues("legacy").Inc()
				return tenant, nil
			}
			metrics.CredentialChecksTotal.WithLabelValues("error").Inc()
			return "", errors.ErrInternal.WithCause(err)
		}
	}

	if tenant, ok := v.matchLegacy(sid, apiKey); ok {
		metrics.CredentialChecksTotal.WithLabelValues("legacy").Inc()
		return tenant, nil
	}

	metrics.CredentialChecksTotal.WithLabelValues("rejected").Inc()
	return "", errors.ErrAuthentication.WithMessage(BadCredsMessage)
}

func (v *Validator) matchLegacy(sid, apiKey string) (string, bool) {
	if !v.legacy.Enabled() {
		return "", false
	}
	sidOK := subtle.ConstantTimeCompare([]byte(sid), []byte(v.legacy.SID)) == 1
	keyOK := subtle.ConstantTimeCompare([]byte(apiKey), []byte(v.legacy.APIKey)) == 1
	if sidOK && keyOK {
		return v.legacy.TenantID, true
	}
	return "", false
}
