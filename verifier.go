package claimsx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"
)

// Stage is a step of token verification.
type Stage int

const (
	StageUnverified Stage = iota
	StageHeader
	StageKeyLookup
	StageSignature
	StageExpiry
	StageAudience
	StageValid
)

var stageNames = map[Stage]string{
	StageUnverified: "unverified",
	StageHeader:     "header",
	StageKeyLookup:  "key_lookup",
	StageSignature:  "signature",
	StageExpiry:     "expiry",
	StageAudience:   "audience",
	StageValid:      "valid",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// TokenClaims is the decoded payload of a verified token.
type TokenClaims map[string]any

// Verification is the outcome of Verify. On failure the claims are empty and
// Stage names the step that rejected the token; the reason is only logged.
type Verification struct {
	Result[TokenClaims]
	Stage Stage
}

// Verifier checks Cognito tokens against the user pool key set.
type Verifier struct {
	clientID string
	keys     *KeyProvider
	now      func() time.Time
	logger   *zap.Logger
	metrics  *Metrics
	steps    []verifyStep
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides the clock used for the expiry check.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithVerifierLogger sets the logger that receives failure reasons.
func WithVerifierLogger(l *zap.Logger) VerifierOption {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithVerifierMetrics counts verification outcomes.
func WithVerifierMetrics(m *Metrics) VerifierOption {
	return func(v *Verifier) {
		v.metrics = m
	}
}

type verifyState struct {
	raw    []byte
	kid    string
	alg    jwa.SignatureAlgorithm
	key    jwk.Key
	parsed jwt.Token
}

type verifyStep struct {
	stage Stage
	run   func(context.Context, *verifyState) error
}

// NewVerifier builds a Verifier. A nil keys builds a KeyProvider from cfg.
func NewVerifier(cfg VerifierConfig, keys *KeyProvider, opts ...VerifierOption) (*Verifier, error) {
	if keys == nil {
		var err error
		if keys, err = NewKeyProvider(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.ClientID == "" {
		return nil, newError(ErrCodeConfiguration, errors.New("app client id is required"))
	}
	v := &Verifier{
		clientID: cfg.ClientID,
		keys:     keys,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	v.steps = []verifyStep{
		{StageHeader, v.parseHeader},
		{StageKeyLookup, v.lookupKey},
		{StageSignature, v.checkSignature},
		{StageExpiry, v.checkExpiry},
		{StageAudience, v.checkAudience},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify runs the checks in order: header, key lookup, signature, expiry,
// audience. The first failing check ends verification.
func (v *Verifier) Verify(ctx context.Context, token string) Verification {
	state := &verifyState{raw: []byte(strings.TrimSpace(token))}
	for _, step := range v.steps {
		if err := step.run(ctx, state); err != nil {
			v.logger.Info("token rejected", zap.Stringer("stage", step.stage), zap.Error(err))
			v.metrics.observeVerification(step.stage, false)
			return Verification{
				Result: Result[TokenClaims]{value: TokenClaims{}, code: CodeOf(err)},
				Stage:  step.stage,
			}
		}
	}

	claims, err := state.parsed.AsMap(ctx)
	if err != nil {
		v.logger.Info("token rejected", zap.Stringer("stage", StageValid), zap.Error(err))
		v.metrics.observeVerification(StageValid, false)
		return Verification{
			Result: Result[TokenClaims]{value: TokenClaims{}, code: ErrCodeInvalidToken},
			Stage:  StageValid,
		}
	}
	v.metrics.observeVerification(StageValid, true)
	return Verification{Result: Ok(TokenClaims(claims)), Stage: StageValid}
}

func (v *Verifier) parseHeader(_ context.Context, s *verifyState) error {
	if len(s.raw) == 0 {
		return newError(ErrCodeInvalidToken, errors.New("token is empty"))
	}
	msg, err := jws.Parse(s.raw)
	if err != nil {
		return newError(ErrCodeInvalidToken, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return newError(ErrCodeInvalidToken, fmt.Errorf("expected one signature, got %d", len(sigs)))
	}
	headers := sigs[0].ProtectedHeaders()
	s.kid = headers.KeyID()
	if s.kid == "" {
		return newError(ErrCodeInvalidToken, errors.New("header has no kid"))
	}
	s.alg = headers.Algorithm()
	if s.alg == "" || s.alg == jwa.NoSignature {
		return newError(ErrCodeInvalidToken, fmt.Errorf("unsupported alg %q", s.alg))
	}
	return nil
}

func (v *Verifier) lookupKey(ctx context.Context, s *verifyState) error {
	key, err := v.keys.LookupKey(ctx, s.kid)
	if err != nil {
		return err
	}
	s.key = key
	return nil
}

func (v *Verifier) checkSignature(_ context.Context, s *verifyState) error {
	if keyAlg := s.key.Algorithm().String(); keyAlg != "" && keyAlg != s.alg.String() {
		return newError(ErrCodeInvalidSignature, fmt.Errorf("token alg %s does not match key alg %s", s.alg, keyAlg))
	}
	if _, err := jws.Verify(s.raw, jws.WithKey(s.alg, s.key)); err != nil {
		return newError(ErrCodeInvalidSignature, err)
	}
	return nil
}

// checkExpiry decodes the payload without verifying it again; the signature
// step has already passed.
func (v *Verifier) checkExpiry(_ context.Context, s *verifyState) error {
	parsed, err := jwt.Parse(s.raw, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return newError(ErrCodeInvalidToken, err)
	}
	exp := parsed.Expiration()
	if exp.IsZero() {
		return newError(ErrCodeExpired, errors.New("token has no exp"))
	}
	if now := v.now(); !now.Before(exp) {
		return newError(ErrCodeExpired, fmt.Errorf("expired at %s", exp.UTC().Format(time.RFC3339)))
	}
	s.parsed = parsed
	return nil
}

// checkAudience compares the aud claim with the app client. Cognito access
// tokens carry client_id instead of aud.
func (v *Verifier) checkAudience(_ context.Context, s *verifyState) error {
	audience := s.parsed.Audience()
	if len(audience) == 0 {
		if cid, ok := s.parsed.Get("client_id"); ok {
			if str, ok := cid.(string); ok {
				audience = []string{str}
			}
		}
	}
	for _, aud := range audience {
		if aud == v.clientID {
			return nil
		}
	}
	return newError(ErrCodeInvalidAudience, fmt.Errorf("audience %v does not include the app client", audience))
}
