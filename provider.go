package claimsx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenFactory allows callers to override how access tokens are minted.
type TokenFactory func(context.Context, ProviderParams) (oauth2.TokenSource, error)

// ProviderConfig defines the app client used to mint machine tokens.
type ProviderConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	TokenFactory TokenFactory
}

// Provider issues Cognito client-credentials access tokens for
// service-to-service calls. It caches a reusing token source per
// (token URL, client, secret, scope set) combination.
type Provider struct {
	mu       sync.RWMutex
	factory  TokenFactory
	entries  map[providerKey]*tokenSourceEntry
	defaults ProviderParams
}

type providerKey struct {
	TokenURL string
	ClientID string
	// Secret is a digest; the raw secret is never held in the key.
	Secret string
	Scopes string
}

type tokenSourceEntry struct {
	source oauth2.TokenSource
}

// ProviderParams are the inputs for one token source.
type ProviderParams struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// TokenOption customizes the behaviour for a single Token call.
type TokenOption func(*ProviderParams)

// WithScopes overrides the requested scopes.
func WithScopes(scopes ...string) TokenOption {
	return func(p *ProviderParams) {
		p.Scopes = append([]string(nil), scopes...)
	}
}

// WithClientCredentials overrides the app client.
func WithClientCredentials(clientID, clientSecret string) TokenOption {
	return func(p *ProviderParams) {
		p.ClientID = clientID
		p.ClientSecret = clientSecret
	}
}

// CognitoTokenURL returns the token endpoint of a user pool domain prefix.
func CognitoTokenURL(domainPrefix, region string) string {
	if region == "" {
		region = defaultRegion
	}
	return fmt.Sprintf("https://%s.auth.%s.amazoncognito.com/oauth2/token", domainPrefix, region)
}

// NewProvider constructs a Provider using the supplied defaults.
func NewProvider(cfg ProviderConfig) *Provider {
	factory := cfg.TokenFactory
	if factory == nil {
		factory = defaultFactory
	}
	return &Provider{
		factory: factory,
		entries: make(map[providerKey]*tokenSourceEntry),
		defaults: ProviderParams{
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       append([]string(nil), cfg.Scopes...),
		},
	}
}

// Token returns an access token for the configured app client.
func (p *Provider) Token(ctx context.Context, opts ...TokenOption) (string, error) {
	params := cloneParams(p.defaults)
	for _, opt := range opts {
		opt(&params)
	}
	if strings.TrimSpace(params.TokenURL) == "" || strings.TrimSpace(params.ClientID) == "" {
		return "", newError(ErrCodeConfiguration, errors.New("token url and client id are required"))
	}

	scopes := append([]string(nil), params.Scopes...)
	sort.Strings(scopes)
	key := providerKey{
		TokenURL: params.TokenURL,
		ClientID: params.ClientID,
		Secret:   secretDigest(params.ClientSecret),
		Scopes:   strings.Join(scopes, " "),
	}

	entry, err := p.getOrCreate(ctx, key, params)
	if err != nil {
		return "", err
	}

	tok, err := entry.source.Token()
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access token returned")
	}
	return tok.AccessToken, nil
}

func secretDigest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func (p *Provider) getOrCreate(ctx context.Context, key providerKey, params ProviderParams) (*tokenSourceEntry, error) {
	p.mu.RLock()
	entry, ok := p.entries[key]
	p.mu.RUnlock()
	if ok {
		return entry, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok = p.entries[key]; ok {
		return entry, nil
	}

	ts, err := p.factory(persistentContext(ctx), params)
	if err != nil {
		return nil, err
	}
	entry = &tokenSourceEntry{source: oauth2.ReuseTokenSource(nil, ts)}
	p.entries[key] = entry
	return entry, nil
}

func defaultFactory(ctx context.Context, params ProviderParams) (oauth2.TokenSource, error) {
	cfg := clientcredentials.Config{
		ClientID:     params.ClientID,
		ClientSecret: params.ClientSecret,
		TokenURL:     params.TokenURL,
		Scopes:       params.Scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return cfg.TokenSource(ctx), nil
}

func cloneParams(in ProviderParams) ProviderParams {
	out := in
	if len(in.Scopes) > 0 {
		out.Scopes = append([]string(nil), in.Scopes...)
	}
	return out
}

// persistentContext keeps request values but drops the deadline, since the
// cached token source outlives the call that created it.
func persistentContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	if _, ok := ctx.(*detachedContext); ok {
		return ctx
	}
	return &detachedContext{parent: ctx}
}

type detachedContext struct {
	parent context.Context
}

func (d *detachedContext) Deadline() (time.Time, bool) {
	return time.Time{}, false
}

func (d *detachedContext) Done() <-chan struct{} {
	return nil
}

func (d *detachedContext) Err() error {
	return nil
}

func (d *detachedContext) Value(key any) any {
	if d.parent == nil {
		return nil
	}
	return d.parent.Value(key)
}
