// stash-function serves uploads as an API Gateway proxy function. It is
// configured from the environment only.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/charmbracelet/log"

	"stash/internal/app"
	"stash/internal/config"
)

func main() {
	app.SetupLogging(os.Stderr, log.InfoLevel)

	cfg, err := config.LoadWith(nil, os.Getenv)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	server, err := app.NewServer(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	lambda.Start(server.HandleEvent)
}
