package claimsx

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"
)

// KeyProvider holds the user pool's JSON Web Key Set. The set is fetched
// once and treated as immutable for the life of the process.
type KeyProvider struct {
	mu       sync.RWMutex
	url      string
	timeout  time.Duration
	client   *http.Client
	now      func() time.Time
	logger   *zap.Logger
	set      jwk.Set
	loadedAt time.Time
}

// KeyProviderOption customizes a KeyProvider.
type KeyProviderOption func(*KeyProvider)

// WithHTTPClient overrides the client used to fetch the key set.
func WithHTTPClient(client *http.Client) KeyProviderOption {
	return func(p *KeyProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithKeyProviderClock overrides the clock used to stamp the load time.
func WithKeyProviderClock(now func() time.Time) KeyProviderOption {
	return func(p *KeyProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithKeyProviderLogger sets the logger.
func WithKeyProviderLogger(l *zap.Logger) KeyProviderOption {
	return func(p *KeyProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewKeyProvider builds a provider for cfg's key set URL. When cfg.LoadJWKS
// is set the set is fetched immediately and a failure is returned.
func NewKeyProvider(cfg VerifierConfig, opts ...KeyProviderOption) (*KeyProvider, error) {
	cfg, err := cfg.Normalized()
	if err != nil {
		return nil, err
	}
	p := &KeyProvider{
		url:     cfg.JWKSURL,
		timeout: cfg.HTTPTimeout,
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		},
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if cfg.LoadJWKS {
		if err := p.Init(context.Background()); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewStaticKeyProvider wraps a fixed key set.
func NewStaticKeyProvider(set jwk.Set) *KeyProvider {
	return &KeyProvider{
		set:      set,
		now:      time.Now,
		logger:   zap.NewNop(),
		loadedAt: time.Now(),
	}
}

// Init fetches the key set if it has not been loaded yet.
func (p *KeyProvider) Init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.set != nil {
		return nil
	}
	if p.url == "" {
		return newError(ErrCodeConfiguration, errors.New("jwks url is not configured"))
	}

	fetchCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	set, err := jwk.Fetch(fetchCtx, p.url, jwk.WithHTTPClient(p.client))
	if err != nil {
		return newError(ErrCodeJWKSUnavailable, err)
	}
	if set.Len() == 0 {
		return newError(ErrCodeJWKSUnavailable, errors.New("key set is empty"))
	}
	p.set = set
	p.loadedAt = p.now()
	p.logger.Info("jwks loaded", zap.String("url", p.url), zap.Int("keys", set.Len()))
	return nil
}

// Keys returns the key set, loading it on first use.
func (p *KeyProvider) Keys(ctx context.Context) (jwk.Set, error) {
	p.mu.RLock()
	set := p.set
	p.mu.RUnlock()
	if set != nil {
		return set, nil
	}
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.set, nil
}

// LookupKey returns the key with the given key id.
func (p *KeyProvider) LookupKey(ctx context.Context, kid string) (jwk.Key, error) {
	set, err := p.Keys(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, newError(ErrCodeKeyNotFound, errors.New("no key for kid "+kid))
	}
	return key, nil
}

// LoadedAt reports when the set was loaded; zero if it has not been.
func (p *KeyProvider) LoadedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loadedAt
}
