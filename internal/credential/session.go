package credential

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"leadintake/internal/config"
	"leadintake/pkg/errors"
)

// SessionClaims is the CRM session token of a signed-in user.
type SessionClaims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	jwt.RegisteredClaims
}

// SessionVerifier checks HMAC-signed session tokens issued by the CRM.
type SessionVerifier struct {
	secret []byte
	issuer string
}

func NewSessionVerifier(cfg config.SessionConfig) *SessionVerifier {
	return &SessionVerifier{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

func (v *SessionVerifier) Verify(token string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.ErrAuthentication.WithMessage("invalid session").WithCause(err)
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, errors.ErrAuthentication.WithMessage("invalid session")
	}
	if claims.TenantID == "" {
		return nil, errors.ErrAuthentication.WithMessage("session has no tenant")
	}
	return claims, nil
}

// Issue signs a session token. The CRM owns sign-in; this is used by tools
// and tests.
func (v *SessionVerifier) Issue(tenantID, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		TenantID: tenantID,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}
