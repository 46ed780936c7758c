// Command authorizer runs the API Gateway token authorizer Lambda.
package main

import (
	"log"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cityofaustin/moped-claimsx"
	"github.com/cityofaustin/moped-claimsx/internal/bootstrap"
	"github.com/cityofaustin/moped-claimsx/internal/logging"
	"github.com/cityofaustin/moped-claimsx/internal/settings"
	"github.com/cityofaustin/moped-claimsx/lambda"
)

func main() {
	s, err := settings.Load(os.Getenv("MOPED_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}
	logger := logging.New(s.Log.Level, s.Log.Format)
	defer func() { _ = logger.Sync() }()

	if err := s.ValidateAuthorizer(); err != nil {
		logger.Fatal("invalid settings", zap.Error(err))
	}
	metrics, err := claimsx.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("register metrics", zap.Error(err))
	}
	verifier, err := bootstrap.Verifier(s, logger, metrics)
	if err != nil {
		logger.Fatal("create verifier", zap.Error(err))
	}

	var table *claimsx.PolicyTable
	if s.Authorizer.PolicyFile != "" {
		table, err = claimsx.LoadPolicyTable(s.Authorizer.PolicyFile, s.Authorizer.APIGatewayARN)
		if err != nil {
			logger.Fatal("load policy table", zap.Error(err))
		}
	}

	auth := lambda.NewAuthorizer(verifier, table, logger.Named("authorizer"))
	logger.Info("authorizer ready",
		zap.String("issuer", s.VerifierConfig().Issuer()),
		zap.Bool("load_jwks", s.Authorizer.LoadJWKS),
	)
	awslambda.Start(auth.Handle)
}
