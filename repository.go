package claimsx

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Record is the persisted form of a user's claims. Claims holds the Fernet
// ciphertext; the ids are duplicated in plaintext for queryability.
type Record struct {
	UserID      string
	Claims      string
	CognitoUUID string
	DatabaseID  string
	WorkgroupID string
}

// Store is the key-value table holding claims records.
//
// GetRecord must fail with ErrCodeNotFound when no record exists and
// DeleteRecord must succeed when no record exists. I/O failures, including
// timeouts, are reported as ErrCodeStoreUnavailable.
type Store interface {
	GetRecord(ctx context.Context, userID string) (Record, error)
	PutRecord(ctx context.Context, rec Record) error
	DeleteRecord(ctx context.Context, userID string) error
}

// Repository reads and writes encrypted claims. It is the only writer of
// claims records.
type Repository struct {
	store   Store
	codec   *Codec
	cfg     RepositoryConfig
	logger  *zap.Logger
	metrics *Metrics
	auditor Auditor
	sleep   func(context.Context, time.Duration) error
}

// RepositoryOption customizes a Repository.
type RepositoryOption func(*Repository)

// WithRepositoryLogger sets the logger.
func WithRepositoryLogger(l *zap.Logger) RepositoryOption {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRepositoryMetrics records operation counts and latency.
func WithRepositoryMetrics(m *Metrics) RepositoryOption {
	return func(r *Repository) {
		r.metrics = m
	}
}

// WithAuditor publishes a ClaimsEvent after every successful write.
func WithAuditor(a Auditor) RepositoryOption {
	return func(r *Repository) {
		r.auditor = a
	}
}

// NewRepository composes a store with a codec.
func NewRepository(store Store, codec *Codec, cfg RepositoryConfig, opts ...RepositoryOption) (*Repository, error) {
	if store == nil {
		return nil, newError(ErrCodeConfiguration, errors.New("claims store is required"))
	}
	if codec == nil || codec.keys == nil {
		return nil, newError(ErrCodeConfiguration, errors.New("claims codec is required"))
	}
	cfg.normalize()
	if cfg.MaxAge > 0 {
		codec = &Codec{keys: codec.keys, maxAge: cfg.MaxAge}
	}
	r := &Repository{
		store:  store,
		codec:  codec,
		cfg:    cfg,
		logger: zap.NewNop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NormalizeIdentifier lower-cases and trims a record key.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Put encrypts doc and overwrites the record for identifier.
func (r *Repository) Put(ctx context.Context, identifier string, doc ClaimsDocument, cognitoUUID string, databaseID, workgroupID int) (err error) {
	defer r.observe("put", time.Now(), &err)

	id := NormalizeIdentifier(identifier)
	if id == "" {
		return newError(ErrCodeInternal, errors.New("identifier is required"))
	}
	var ciphertext string
	err = r.retry(ctx, "encrypt", func(ctx context.Context) error {
		var err error
		ciphertext, err = r.codec.EncryptDocument(ctx, doc)
		return err
	})
	if err != nil {
		return err
	}
	rec := Record{
		UserID:      id,
		Claims:      ciphertext,
		CognitoUUID: cognitoUUID,
		DatabaseID:  strconv.Itoa(databaseID),
		WorkgroupID: strconv.Itoa(workgroupID),
	}
	err = r.retry(ctx, "put", func(ctx context.Context) error {
		return r.store.PutRecord(ctx, rec)
	})
	if err != nil {
		return err
	}
	r.logger.Info("claims stored", zap.String("user_id", id), zap.Strings("roles", doc.AllowedRoles))
	r.audit(ctx, ClaimsPut, id)
	return nil
}

// Get fetches and decrypts the claims for identifier. The returned document's
// user id is the stored Cognito UUID.
func (r *Repository) Get(ctx context.Context, identifier string) (doc ClaimsDocument, err error) {
	defer r.observe("get", time.Now(), &err)

	rec, err := r.getRecord(ctx, identifier)
	if err != nil {
		return ClaimsDocument{}, err
	}
	err = r.retry(ctx, "decrypt", func(ctx context.Context) error {
		var err error
		doc, err = r.codec.DecryptDocument(ctx, rec.Claims)
		return err
	})
	if err != nil {
		if IsDecryption(err) {
			r.logger.Warn("stored claims rejected by codec", zap.String("user_id", rec.UserID))
		}
		return ClaimsDocument{}, err
	}
	if rec.CognitoUUID != "" {
		doc.UserID = rec.CognitoUUID
	}
	return doc, nil
}

// Exists reports whether a record is stored for identifier without decrypting it.
func (r *Repository) Exists(ctx context.Context, identifier string) (bool, error) {
	_, err := r.getRecord(ctx, identifier)
	switch {
	case err == nil:
		return true, nil
	case IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Delete removes the record for identifier. Deleting a missing record is a no-op.
func (r *Repository) Delete(ctx context.Context, identifier string) (err error) {
	defer r.observe("delete", time.Now(), &err)

	id := NormalizeIdentifier(identifier)
	if id == "" {
		return nil
	}
	err = r.retry(ctx, "delete", func(ctx context.Context) error {
		return r.store.DeleteRecord(ctx, id)
	})
	if err != nil {
		return err
	}
	r.logger.Info("claims deleted", zap.String("user_id", id))
	r.audit(ctx, ClaimsDelete, id)
	return nil
}

func (r *Repository) getRecord(ctx context.Context, identifier string) (Record, error) {
	id := NormalizeIdentifier(identifier)
	if id == "" {
		return Record{}, newError(ErrCodeNotFound, errors.New("identifier is empty"))
	}
	var rec Record
	err := r.retry(ctx, "get", func(ctx context.Context) error {
		var err error
		rec, err = r.store.GetRecord(ctx, id)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// retry runs fn under the per-call timeout, repeating transient failures.
// Key fetches go through it as well as store calls.
func (r *Repository) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("retrying claims call", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			if serr := r.sleep(ctx, r.cfg.RetryDelay); serr != nil {
				return err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		var e *Error
		if !errors.As(err, &e) {
			err = newError(ErrCodeStoreUnavailable, err)
		}
		if !isRetryable(err) {
			return err
		}
	}
	return err
}

func (r *Repository) audit(ctx context.Context, op ClaimsOp, id string) {
	if r.auditor == nil {
		return
	}
	if err := r.auditor.Record(ctx, NewClaimsEvent(op, id)); err != nil {
		r.logger.Warn("claims audit event not recorded", zap.String("op", string(op)), zap.String("user_id", id), zap.Error(err))
	}
}

func (r *Repository) observe(op string, start time.Time, err *error) {
	r.metrics.observeClaimsOp(op, CodeOf(*err), time.Since(start))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
