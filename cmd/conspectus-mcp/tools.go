package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createQueryPortfolioTool returns the query_portfolio tool definition
func createQueryPortfolioTool() mcp.Tool {
	return mcp.NewTool("query_portfolio",
		mcp.WithDescription("Ask a natural-language question about the product portfolio (programs, risks, milestones, strategic objectives)"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer, e.g. \"Which programs are at risk?\""),
		),
		mcp.WithString("program_id",
			mcp.Description("Scope the question to a single program"),
		),
	)
}

// createPortfolioSummaryTool returns the portfolio_summary tool definition
func createPortfolioSummaryTool() mcp.Tool {
	return mcp.NewTool("portfolio_summary",
		mcp.WithDescription("Generate an executive summary of the whole portfolio: overall health, programs needing attention, upcoming launches"),
	)
}

// createListProgramsTool returns the list_programs tool definition
func createListProgramsTool() mcp.Tool {
	return mcp.NewTool("list_programs",
		mcp.WithDescription("List portfolio programs with status, stage, and progress"),
		mcp.WithString("status",
			mcp.Description("Filter by status: On Track, At Risk, Off Track, Completed"),
		),
		mcp.WithString("product_line",
			mcp.Description("Filter by product line: Smart Home, Mobile, Platform, Video"),
		),
	)
}

// createProgramStatusTool returns the program_status tool definition
func createProgramStatusTool() mcp.Tool {
	return mcp.NewTool("program_status",
		mcp.WithDescription("Full status report for one program: health, progress, risks, and milestones"),
		mcp.WithString("program_id",
			mcp.Required(),
			mcp.Description("Program ID (as returned by list_programs)"),
		),
	)
}
