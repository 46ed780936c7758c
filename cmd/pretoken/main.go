// Command pretoken runs the Cognito pre-token-generation Lambda that injects
// stored Hasura claims into issued tokens.
package main

import (
	"context"
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

	metrics, err := claimsx.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("register metrics", zap.Error(err))
	}
	repo, closeRepo, err := bootstrap.Repository(context.Background(), s, logger, metrics)
	if err != nil {
		logger.Fatal("create repository", zap.Error(err))
	}
	defer func() { _ = closeRepo() }()

	hook := lambda.NewPreTokenHook(repo, logger.Named("pretoken"))
	logger.Info("pre-token hook ready", zap.String("store", s.Store.Backend))
	awslambda.Start(hook.Handle)
}
