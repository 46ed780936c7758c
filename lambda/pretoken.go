package lambda

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/cityofaustin/moped-claimsx"
)

// ClaimsReader is implemented by *claimsx.Repository.
type ClaimsReader interface {
	Get(ctx context.Context, identifier string) (claimsx.ClaimsDocument, error)
}

// PreTokenHook injects stored claims into Cognito tokens.
type PreTokenHook struct {
	claims ClaimsReader
	logger *zap.Logger
}

// NewPreTokenHook builds a PreTokenHook.
func NewPreTokenHook(claims ClaimsReader, logger *zap.Logger) *PreTokenHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreTokenHook{claims: claims, logger: logger}
}

// Handle looks the user up by Cognito UUID, then by email. Users without
// stored claims get an unmodified token; undecryptable claims fail the hook.
func (h *PreTokenHook) Handle(ctx context.Context, event events.CognitoEventUserPoolsPreTokenGen) (events.CognitoEventUserPoolsPreTokenGen, error) {
	attrs := event.Request.UserAttributes
	var (
		doc   claimsx.ClaimsDocument
		err   error
		found bool
	)
	for _, identifier := range []string{attrs["sub"], attrs["email"]} {
		if identifier == "" {
			continue
		}
		doc, err = h.claims.Get(ctx, identifier)
		if err == nil {
			found = true
			break
		}
		if !claimsx.IsNotFound(err) {
			h.logger.Error("claims lookup failed", zap.String("user", event.UserName), zap.Error(err))
			return event, err
		}
	}
	if !found {
		h.logger.Info("no claims stored for user", zap.String("user", event.UserName))
		return event, nil
	}

	raw, err := doc.JSON()
	if err != nil {
		return event, fmt.Errorf("encode claims: %w", err)
	}
	overrides := event.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride
	if overrides == nil {
		overrides = make(map[string]string, 1)
	}
	overrides[claimsx.HasuraClaimsKey] = raw
	event.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride = overrides
	return event, nil
}
