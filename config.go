package claimsx

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultHTTPTimeout  = 5 * time.Second
	defaultStoreTimeout = 3 * time.Second
	defaultRetryDelay   = 200 * time.Millisecond
	defaultRetries      = 2
	defaultRegion       = "us-east-1"
	cognitoIssuerFormat = "https://cognito-idp.%s.amazonaws.com/%s"
)

// VerifierConfig describes the Cognito user pool tokens are checked against.
type VerifierConfig struct {
	Region        string
	UserPoolID    string
	ClientID      string
	APIGatewayARN string
	// LoadJWKS fetches the key set when the KeyProvider is constructed
	// instead of on first use.
	LoadJWKS    bool
	JWKSURL     string
	HTTPTimeout time.Duration
}

// normalize sets default values for optional fields.
func (c *VerifierConfig) normalize() {
	if c.Region == "" {
		c.Region = defaultRegion
	}
	if c.JWKSURL == "" && c.UserPoolID != "" {
		c.JWKSURL = c.Issuer() + "/.well-known/jwks.json"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
}

// validate ensures the verifier configuration is usable.
func (c VerifierConfig) validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("app client id is required")
	case c.JWKSURL == "" && c.UserPoolID == "":
		return errors.New("user pool id or jwks url is required")
	}
	return nil
}

// Issuer returns the user pool issuer URL.
func (c VerifierConfig) Issuer() string {
	region := c.Region
	if region == "" {
		region = defaultRegion
	}
	return fmt.Sprintf(cognitoIssuerFormat, region, c.UserPoolID)
}

// Normalized validates c and returns a copy with defaults applied. Errors
// are configuration errors and are meant to stop the process at startup.
func (c VerifierConfig) Normalized() (VerifierConfig, error) {
	clone := c
	clone.normalize()
	if err := clone.validate(); err != nil {
		return VerifierConfig{}, newError(ErrCodeConfiguration, err)
	}
	return clone, nil
}

// RepositoryConfig tunes store access.
type RepositoryConfig struct {
	// Timeout bounds every individual store call.
	Timeout time.Duration
	// Retries is the number of extra attempts on transient store failures.
	// A negative value disables retries.
	Retries    int
	RetryDelay time.Duration
	// MaxAge rejects stored blobs older than this; zero disables the check.
	MaxAge time.Duration
}

func (c *RepositoryConfig) normalize() {
	if c.Timeout <= 0 {
		c.Timeout = defaultStoreTimeout
	}
	switch {
	case c.Retries < 0:
		c.Retries = 0
	case c.Retries == 0:
		c.Retries = defaultRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
}
