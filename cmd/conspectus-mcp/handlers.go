package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

// handleQueryPortfolio implements the query_portfolio tool
func handleQueryPortfolio(queryService interfaces.QueryService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse question parameter (required)
		question, err := request.RequireString("question")
		if err != nil || question == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: question parameter is required"),
				},
			}, nil
		}

		// Optional program scope
		programID := request.GetString("program_id", "")

		result, err := queryService.ProcessQuery(ctx, question, programID, nil)
		if err != nil {
			logger.Error().Err(err).Msg("Query failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Query error: %v", err)),
				},
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(formatQueryResult(result)),
			},
		}, nil
	}
}

// handlePortfolioSummary implements the portfolio_summary tool
func handlePortfolioSummary(queryService interfaces.QueryService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := queryService.GeneratePortfolioSummary(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Summary generation failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Summary error: %v", err)),
				},
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(formatQueryResult(result)),
			},
		}, nil
	}
}

// handleListPrograms implements the list_programs tool
func handleListPrograms(entities interfaces.EntityStore, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := request.GetString("status", "")
		productLine := request.GetString("product_line", "")

		programs, err := entities.ListPrograms(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("List programs failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("List error: %v", err)),
				},
			}, nil
		}

		filtered := make([]models.Program, 0, len(programs))
		for _, p := range programs {
			if status != "" && p.Status != status {
				continue
			}
			if productLine != "" && p.ProductLine != productLine {
				continue
			}
			filtered = append(filtered, p)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(formatProgramList(filtered)),
			},
		}, nil
	}
}

// handleProgramStatus implements the program_status tool
func handleProgramStatus(entities interfaces.EntityStore, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse program_id parameter (required)
		programID, err := request.RequireString("program_id")
		if err != nil || programID == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: program_id parameter is required"),
				},
			}, nil
		}

		program, err := entities.GetProgram(ctx, programID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return &mcp.CallToolResult{
					Content: []mcp.Content{
						mcp.NewTextContent(fmt.Sprintf("Program %s not found", programID)),
					},
				}, nil
			}
			logger.Error().Err(err).Str("program_id", programID).Msg("GetProgram failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Lookup error: %v", err)),
				},
			}, nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(formatProgramStatus(program)),
			},
		}, nil
	}
}
