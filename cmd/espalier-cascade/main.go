// Command espalier-cascade is the Lambda that trashes owned records after
// their owner is trashed. Subscribe it to the stream of every kind table.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/espalier/internal/cli"
	"github.com/jacentio/espalier/store"
	"github.com/jacentio/espalier/stream"
)

func main() {
	logger := cli.NewLogger(os.Getenv("LOG_LEVEL"), "json", os.Stderr)

	storeCfg, err := cli.StoreConfigFromEnv(os.Getenv)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	st := store.New(dynamodb.NewFromConfig(awsCfg), storeCfg)
	h := stream.NewHandler(st, logger)

	lambda.Start(h.HandleCascadeTrash)
}
