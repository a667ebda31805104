package index

import (
	"fmt"
	"strings"

	"github.com/ternarybob/conspectus/internal/models"
)

// Document is one indexable text with the metadata semantic retrieval needs
// to filter results and cite sources without a secondary lookup.
type Document struct {
	Content  string
	Metadata map[string]interface{}
}

// BuildPortfolioDocuments flattens programs into indexable documents: one
// per program, one per risk, one per milestone, in portfolio order.
func BuildPortfolioDocuments(programs []models.Program) []Document {
	var documents []Document
	for _, program := range programs {
		documents = append(documents, BuildProgramDocument(program))
		for _, risk := range program.Risks {
			documents = append(documents, BuildRiskDocument(program, risk))
		}
		for _, milestone := range program.Milestones {
			documents = append(documents, BuildMilestoneDocument(program, milestone))
		}
	}
	return documents
}

// BuildProgramDocument renders a program as one retrievable text block.
func BuildProgramDocument(p models.Program) Document {
	content := fmt.Sprintf(`Program: %s
Description: %s
Status: %s
Product Line: %s
Pipeline Stage: %s
Owner: %s
Team: %s
Launch Date: %s
Progress: %d%%
Strategic Objectives: %s
Last Update: %s`,
		p.Name, p.Description, p.Status, p.ProductLine, p.PipelineStage,
		p.Owner, p.Team, p.LaunchDate, p.Progress,
		strings.Join(p.StrategicObjectives, ", "), p.LastUpdate)

	return Document{
		Content: content,
		Metadata: map[string]interface{}{
			"type":           models.DocTypeProgram,
			"program_id":     p.ID,
			"program_name":   p.Name,
			"status":         p.Status,
			"product_line":   p.ProductLine,
			"pipeline_stage": p.PipelineStage,
		},
	}
}

// BuildRiskDocument renders one risk, prefixed with its program name so the
// text stands alone in search results.
func BuildRiskDocument(p models.Program, r models.Risk) Document {
	content := fmt.Sprintf(`Risk for %s: %s
Severity: %s
Description: %s
Mitigation: %s
Status: %s`,
		p.Name, r.Title, r.Severity, r.Description, r.Mitigation, r.Status)

	return Document{
		Content: content,
		Metadata: map[string]interface{}{
			"type":         models.DocTypeRisk,
			"program_id":   p.ID,
			"program_name": p.Name,
			"risk_id":      r.ID,
			"severity":     r.Severity,
			"risk_status":  r.Status,
		},
	}
}

// BuildMilestoneDocument renders one milestone with its completion state.
func BuildMilestoneDocument(p models.Program, m models.Milestone) Document {
	completed := m.CompletedDate
	if completed == "" {
		completed = "Not completed"
	}

	content := fmt.Sprintf(`Milestone for %s: %s
Due Date: %s
Completed: %s
Status: %s`,
		p.Name, m.Name, m.DueDate, completed, m.Status)

	return Document{
		Content: content,
		Metadata: map[string]interface{}{
			"type":             models.DocTypeMilestone,
			"program_id":       p.ID,
			"program_name":     p.Name,
			"milestone_id":     m.ID,
			"milestone_status": m.Status,
		},
	}
}
