// Package lambda adapts the claimsx core to AWS Lambda events.
package lambda

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/cityofaustin/moped-claimsx"
)

// TokenVerifier is implemented by *claimsx.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) claimsx.Verification
}

// Authorizer is an API Gateway token authorizer.
type Authorizer struct {
	verifier TokenVerifier
	table    *claimsx.PolicyTable
	logger   *zap.Logger
}

// NewAuthorizer builds an Authorizer.
func NewAuthorizer(verifier TokenVerifier, table *claimsx.PolicyTable, logger *zap.Logger) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{verifier: verifier, table: table, logger: logger}
}

// Handle answers with an IAM policy. A bad token produces a deny policy,
// never an error.
func (a *Authorizer) Handle(ctx context.Context, req events.APIGatewayCustomAuthorizerRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	token := strings.TrimSpace(req.AuthorizationToken)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	verification := a.verifier.Verify(ctx, token)
	policy := a.table.Generate(verification)
	a.logger.Debug("authorizer decision",
		zap.String("principal", policy.PrincipalID),
		zap.Bool("verified", verification.OK()),
		zap.Int("statements", len(policy.PolicyDocument.Statement)),
	)
	return toResponse(policy), nil
}

func toResponse(p claimsx.AuthPolicy) events.APIGatewayCustomAuthorizerResponse {
	statements := make([]events.IAMPolicyStatement, 0, len(p.PolicyDocument.Statement))
	for _, s := range p.PolicyDocument.Statement {
		statements = append(statements, events.IAMPolicyStatement{
			Action:   []string{s.Action},
			Effect:   s.Effect,
			Resource: []string{s.Resource},
		})
	}
	return events.APIGatewayCustomAuthorizerResponse{
		PrincipalID: p.PrincipalID,
		PolicyDocument: events.APIGatewayCustomAuthorizerPolicy{
			Version:   p.PolicyDocument.Version,
			Statement: statements,
		},
	}
}
