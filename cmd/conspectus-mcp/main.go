package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/services/embed"
	"github.com/ternarybob/conspectus/internal/services/index"
	"github.com/ternarybob/conspectus/internal/services/llm"
	"github.com/ternarybob/conspectus/internal/services/query"
	"github.com/ternarybob/conspectus/internal/services/retrieval"
	"github.com/ternarybob/conspectus/internal/storage"
	"github.com/ternarybob/conspectus/internal/storage/postgrest"
)

func main() {
	// Load .env before config so API keys land in the environment overrides
	_ = godotenv.Load()

	// Load configuration
	configPath := os.Getenv("CONSPECTUS_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("conspectus.toml"); err == nil {
			configPath = "conspectus.toml"
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize minimal logger for MCP server (console only, no file output)
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn") // Minimal logging to avoid cluttering MCP stdio

	// Initialize the portfolio entity store
	client := postgrest.NewClient(config, logger)
	entityStore := postgrest.NewEntityStore(config, client, logger)

	// Initialize the retrieval pipeline
	embedder, err := embed.NewGeminiEmbedder(&config.Gemini, &config.Embeddings, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize embedder")
	}

	vectorStore, err := storage.NewVectorStore(context.Background(), config, client, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize vector store")
	}

	// Adopt an index built by the main service; without one, queries fall
	// back to structured retrieval
	indexService := index.NewService(config, entityStore, embedder, vectorStore, logger)
	indexService.Bootstrap(context.Background())

	structured := retrieval.NewStructuredService(entityStore, logger)
	semantic := retrieval.NewSemanticService(config, embedder, vectorStore, indexService, logger)

	// Initialize the answer-generation provider and query orchestrator
	provider, err := llm.NewProvider(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize LLM provider")
	}
	queryService := query.NewService(config, provider, structured, semantic, indexService, entityStore, logger)

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"conspectus",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register portfolio tools
	mcpServer.AddTool(createQueryPortfolioTool(), handleQueryPortfolio(queryService, logger))
	mcpServer.AddTool(createPortfolioSummaryTool(), handlePortfolioSummary(queryService, logger))
	mcpServer.AddTool(createListProgramsTool(), handleListPrograms(entityStore, logger))
	mcpServer.AddTool(createProgramStatusTool(), handleProgramStatus(entityStore, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
