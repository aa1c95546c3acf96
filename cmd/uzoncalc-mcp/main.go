// Package main provides the uzoncalc-mcp binary: an MCP server for AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/uyoufu/uzoncalc/pkg/api"
	"github.com/uyoufu/uzoncalc/pkg/config"
	"github.com/uyoufu/uzoncalc/pkg/execution"
	"github.com/uyoufu/uzoncalc/pkg/logging"
	umcp "github.com/uyoufu/uzoncalc/pkg/mcp"
	"github.com/uyoufu/uzoncalc/pkg/notify"
)

var version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("UZONCALC_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the protocol; logs go to stderr only.
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: true, OutputPaths: []string{"stderr"}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	notes := &notify.Recorder{}
	client := api.New(api.Options{
		BaseURL:   cfg.Server,
		APIPrefix: cfg.APIPrefix,
		Token:     cfg.Token,
		Timeout:   cfg.Timeout.Duration,
		Notifier:  notes,
		Logger:    logger,
		Endpoints: cfg.Endpoints,
		Validate:  cfg.ValidateResponses,
	})
	exec := execution.New(client,
		execution.WithNotifier(notes),
		execution.WithLogger(logger),
		execution.WithSource(execution.Source{IsSilent: cfg.Silent}))

	s := umcp.NewServer(version, &umcp.Handlers{Executor: exec, Notes: notes})
	logger.Info("serving MCP on stdio", zap.String("server", cfg.Server))
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp server stopped", zap.Error(err))
		os.Exit(1)
	}
}
