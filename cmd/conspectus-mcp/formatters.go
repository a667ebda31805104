package main

import (
	"fmt"
	"strings"

	"github.com/ternarybob/conspectus/internal/models"
)

// formatQueryResult formats a query answer with its sources as markdown
func formatQueryResult(result models.QueryResult) string {
	var sb strings.Builder
	sb.WriteString(result.Answer)
	sb.WriteString("\n")

	if len(result.Sources) > 0 {
		sb.WriteString("\n**Sources:**\n")
		for _, src := range result.Sources {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", src.Title, src.Type))
		}
	}

	sb.WriteString(fmt.Sprintf("\n**Confidence:** %s\n", result.Confidence))
	return sb.String()
}

// formatProgramList formats a program list as markdown
func formatProgramList(programs []models.Program) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Portfolio Programs (%d)\n\n", len(programs)))

	if len(programs) == 0 {
		sb.WriteString("No programs found.\n")
		return sb.String()
	}

	for i, p := range programs {
		sb.WriteString(fmt.Sprintf("%d. **%s** [%s]\n", i+1, p.Name, p.Status))
		sb.WriteString(fmt.Sprintf("   %s | %s | %d%% complete | Owner: %s\n", p.ProductLine, p.PipelineStage, p.Progress, p.Owner))
		if p.LaunchDate != "" {
			sb.WriteString(fmt.Sprintf("   Launch: %s\n", p.LaunchDate))
		}
		sb.WriteString(fmt.Sprintf("   ID: %s\n\n", p.ID))
	}

	return sb.String()
}

// formatProgramStatus formats a full program status report as markdown
func formatProgramStatus(p *models.Program) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", p.Name))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", p.Status))
	sb.WriteString(fmt.Sprintf("**Stage:** %s\n", p.PipelineStage))
	sb.WriteString(fmt.Sprintf("**Product Line:** %s\n", p.ProductLine))
	sb.WriteString(fmt.Sprintf("**Owner:** %s (%s)\n", p.Owner, p.Team))
	sb.WriteString(fmt.Sprintf("**Progress:** %d%%\n", p.Progress))
	if p.LaunchDate != "" {
		sb.WriteString(fmt.Sprintf("**Launch Date:** %s\n", p.LaunchDate))
	}
	if len(p.StrategicObjectives) > 0 {
		sb.WriteString(fmt.Sprintf("**Strategic Objectives:** %s\n", strings.Join(p.StrategicObjectives, ", ")))
	}
	if p.Description != "" {
		sb.WriteString(fmt.Sprintf("\n%s\n", p.Description))
	}

	if len(p.Risks) > 0 {
		sb.WriteString(fmt.Sprintf("\n## Risks (%d)\n\n", len(p.Risks)))
		for _, r := range p.Risks {
			sb.WriteString(fmt.Sprintf("- [%s] **%s** (%s)\n", r.Severity, r.Title, r.Status))
			if r.Mitigation != "" {
				sb.WriteString(fmt.Sprintf("  Mitigation: %s\n", r.Mitigation))
			}
		}
	}

	if len(p.Milestones) > 0 {
		sb.WriteString(fmt.Sprintf("\n## Milestones (%d)\n\n", len(p.Milestones)))
		for _, m := range p.Milestones {
			if m.Status == models.MilestoneStatusCompleted && m.CompletedDate != "" {
				sb.WriteString(fmt.Sprintf("- %s: completed %s\n", m.Name, m.CompletedDate))
			} else {
				sb.WriteString(fmt.Sprintf("- %s: due %s (%s)\n", m.Name, m.DueDate, m.Status))
			}
		}
	}

	if p.LastUpdate != "" {
		sb.WriteString(fmt.Sprintf("\n**Last Update:** %s\n", p.LastUpdate))
	}

	return sb.String()
}
