package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"markov-go/internal/config"
	"markov-go/internal/service"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

type MarkovServer struct {
	server        *mcp.Server
	markovService *service.MarkovService
	config        *config.Config
	logger        *zap.Logger
	handler       *mcp.StreamableHTTPHandler
}

type GenerateTextParams struct {
	MaxWords int    `json:"max_words,omitempty" jsonschema:"maximum number of words to generate; 0 uses the server default"`
	Seed     *int64 `json:"seed,omitempty" jsonschema:"random seed for a reproducible walk; -1 picks one at random"`
	Prompt   string `json:"prompt,omitempty" jsonschema:"words to continue from; the last four must have appeared together in the corpus"`
}

type ModelStatsParams struct{}

func NewMarkovServer(markovService *service.MarkovService, cfg *config.Config, logger *zap.Logger) *MarkovServer {
	server := &MarkovServer{
		markovService: markovService,
		config:        cfg,
		logger:        logger,
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "MarkovText",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "generateText",
		Description: "Generate text by a random walk over an order-4 word Markov chain trained on the server's corpus. Returns the generated words joined by spaces, followed by the seed that reproduces them",
	}, server.handleGenerateText)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "modelStats",
		Description: "Report statistics about the trained Markov chain: states, successors, vocabulary size and hash table occupancy",
	}, server.handleModelStats)

	server.server = mcpServer
	server.handler = mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	return server
}

func (s *MarkovServer) handleGenerateText(ctx context.Context, req *mcp.CallToolRequest, args GenerateTextParams) (*mcp.CallToolResult, any, error) {
	s.logger.Info("Handling generateText request",
		zap.Int("max_words", args.MaxWords),
		zap.Bool("prompted", args.Prompt != ""))

	result, err := s.markovService.Generate(ctx, service.GenerateRequest{
		MaxWords: args.MaxWords,
		Seed:     args.Seed,
		Prompt:   args.Prompt,
	})
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Failed to generate text: %v", err)}},
			IsError: true,
		}, nil, nil
	}

	var text strings.Builder
	text.WriteString(strings.Join(result.Tokens, " "))
	fmt.Fprintf(&text, "\n\n<run id=%q seed=\"%d\" words=\"%d\" stop=%q/>\n",
		result.RunID, result.Seed, result.Count, result.StopReason)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text.String()}},
	}, nil, nil
}

func (s *MarkovServer) handleModelStats(ctx context.Context, req *mcp.CallToolRequest, args ModelStatsParams) (*mcp.CallToolResult, any, error) {
	stats, err := s.markovService.Stats()
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Failed to get model stats: %v", err)}},
			IsError: true,
		}, nil, nil
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode stats: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// Handler returns the streamable HTTP handler serving the MCP endpoint
func (s *MarkovServer) Handler() http.Handler {
	return s.handler
}

// Server returns the MCP server with its tools registered
func (s *MarkovServer) Server() *mcp.Server {
	return s.server
}

// NewHTTPServer returns an http.Server bound to the configured MCP address.
// The caller owns its lifecycle.
func (s *MarkovServer) NewHTTPServer() *http.Server {
	address := s.config.Mcp.GetAddress()
	s.logger.Info("MCP server configured", zap.String("address", address))
	return &http.Server{
		Addr:    address,
		Handler: s.handler,
	}
}
