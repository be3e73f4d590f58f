// Package auth resolves bearer credentials to tenant identities.
//
// Requests carry an HS256-signed JWT whose sub claim names the tenant.
// The middleware verifies the token and stores the tenant id in the Echo
// context; handlers read it back with TenantID. All downstream data
// access is scoped by that tenant id, so extraction fails closed: no
// authenticated tenant, no data.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docchatd/internal/logging"
)

var (
	// ErrInvalidConfig indicates the verifier configuration is invalid.
	ErrInvalidConfig = errors.New("auth: invalid configuration")

	// ErrMissingToken indicates a request without a bearer token.
	ErrMissingToken = errors.New("auth: missing bearer token")

	// ErrInvalidToken indicates a token that failed verification.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnauthenticated indicates no authenticated tenant in the
	// request context.
	ErrUnauthenticated = errors.New("auth: no authenticated tenant")
)

// tenantIDKey is the Echo context key holding the authenticated tenant
// id. Only the middleware writes it; handlers read it via TenantID.
const tenantIDKey = "authenticated_tenant_id"

// tenantPattern constrains tenant ids to path-safe opaque identifiers.
// Tenant ids name storage directories and filter values, so separators
// and leading dots are rejected outright.
var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Config holds bearer verification settings.
type Config struct {
	// Enabled turns bearer verification on. When false every request
	// runs as DevTenant.
	Enabled bool

	// Secret is the shared HS256 signing secret. Required when Enabled.
	Secret string

	// DevTenant is the tenant assigned to requests while verification
	// is disabled. Default: "dev-tenant".
	DevTenant string
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Enabled && c.Secret == "" {
		return fmt.Errorf("%w: secret is required when auth is enabled", ErrInvalidConfig)
	}
	if c.DevTenant != "" && !tenantPattern.MatchString(c.DevTenant) {
		return fmt.Errorf("%w: dev tenant %q is not a valid tenant id", ErrInvalidConfig, c.DevTenant)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DevTenant == "" {
		c.DevTenant = "dev-tenant"
	}
}

// Verifier checks bearer tokens and produces the Echo middleware.
type Verifier struct {
	config Config
	logger *logging.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(cfg Config, logger *logging.Logger) (*Verifier, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if !cfg.Enabled {
		logger.Warn(context.Background(), "bearer auth disabled, all requests run as the dev tenant",
			zap.String("tenant_id", cfg.DevTenant))
	}
	return &Verifier{config: cfg, logger: logger}, nil
}

// VerifyToken parses an HS256 bearer token and returns the tenant id
// from its sub claim. Expiry and not-before claims are enforced by the
// parser.
func (v *Verifier) VerifyToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(v.config.Secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	tenantID, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("%w: reading sub claim: %v", ErrInvalidToken, err)
	}
	if !tenantPattern.MatchString(tenantID) {
		return "", fmt.Errorf("%w: sub claim is not a valid tenant id", ErrInvalidToken)
	}
	return tenantID, nil
}

// TenantID extracts the authenticated tenant id from the request
// context. The value is only ever set by the middleware after token
// verification; never accept tenant ids from headers, path, or query
// parameters.
func TenantID(c echo.Context) (string, error) {
	tenantID, ok := c.Get(tenantIDKey).(string)
	if !ok || tenantID == "" {
		return "", ErrUnauthenticated
	}
	if !tenantPattern.MatchString(tenantID) {
		return "", fmt.Errorf("%w: malformed tenant id in context", ErrUnauthenticated)
	}
	return tenantID, nil
}
