package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
	"gopkg.in/yaml.v3"
)

// Fixture mirrors the portfolio seed file layout: an objective catalog plus
// programs with nested risks, milestones, and objective names.
type Fixture struct {
	Objectives []ObjectiveFixture `yaml:"objectives"`
	Programs   []ProgramFixture   `yaml:"programs"`
}

type ObjectiveFixture struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Priority    int    `yaml:"priority"`
	Owner       string `yaml:"owner"`
}

type ProgramFixture struct {
	Name                string             `yaml:"name"`
	Description         string             `yaml:"description"`
	Status              string             `yaml:"status"`
	Owner               string             `yaml:"owner"`
	Team                string             `yaml:"team"`
	ProductLine         string             `yaml:"product_line"`
	PipelineStage       string             `yaml:"pipeline_stage"`
	LaunchDate          string             `yaml:"launch_date"`
	Progress            int                `yaml:"progress"`
	LastUpdate          string             `yaml:"last_update"`
	StrategicObjectives []string           `yaml:"strategic_objectives"`
	Risks               []RiskFixture      `yaml:"risks"`
	Milestones          []MilestoneFixture `yaml:"milestones"`
}

type RiskFixture struct {
	Title       string `yaml:"title"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description"`
	Mitigation  string `yaml:"mitigation"`
	Status      string `yaml:"status"`
}

type MilestoneFixture struct {
	Name          string `yaml:"name"`
	DueDate       string `yaml:"due_date"`
	CompletedDate string `yaml:"completed_date"`
	Status        string `yaml:"status"`
}

// Loader inserts fixture data through the entity store.
type Loader struct {
	entities interfaces.EntityStore
	logger   arbor.ILogger
}

// NewLoader creates a seed loader.
func NewLoader(entities interfaces.EntityStore, logger arbor.ILogger) *Loader {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Loader{entities: entities, logger: logger}
}

// LoadFile reads a fixture file and loads its contents.
func (l *Loader) LoadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.logger.Info().Str("file", path).Msg("Loading seed data")
	return l.Load(ctx, &fixture)
}

// Load inserts objectives first, then programs with their children,
// resolving objective names through the stored catalog. Unknown objective
// names are logged and skipped; programs load either way.
func (l *Loader) Load(ctx context.Context, fixture *Fixture) error {
	objectiveIDs, err := l.ensureObjectives(ctx, fixture.Objectives)
	if err != nil {
		return err
	}

	var programs, risks, milestones, mappings int
	for _, pf := range fixture.Programs {
		var objIDs []string
		for _, name := range pf.StrategicObjectives {
			id, ok := objectiveIDs[name]
			if !ok {
				l.logger.Warn().
					Str("objective", name).
					Str("program", pf.Name).
					Msg("Objective not found")
				continue
			}
			objIDs = append(objIDs, id)
		}

		created, err := l.entities.CreateProgram(ctx, &models.Program{
			Name:                  pf.Name,
			Description:           pf.Description,
			Status:                pf.Status,
			Owner:                 pf.Owner,
			Team:                  pf.Team,
			ProductLine:           pf.ProductLine,
			PipelineStage:         pf.PipelineStage,
			LaunchDate:            pf.LaunchDate,
			Progress:              pf.Progress,
			LastUpdate:            pf.LastUpdate,
			StrategicObjectiveIDs: objIDs,
		})
		if err != nil {
			return fmt.Errorf("seed program %s: %w", pf.Name, err)
		}
		programs++
		mappings += len(objIDs)

		for _, rf := range pf.Risks {
			status := rf.Status
			if status == "" {
				status = models.RiskStatusOpen
			}
			if _, err := l.entities.CreateRisk(ctx, &models.Risk{
				ProgramID:   created.ID,
				Title:       rf.Title,
				Severity:    rf.Severity,
				Description: rf.Description,
				Mitigation:  rf.Mitigation,
				Status:      status,
			}); err != nil {
				return fmt.Errorf("seed risk %s: %w", rf.Title, err)
			}
			risks++
		}

		for _, mf := range pf.Milestones {
			status := mf.Status
			if status == "" {
				status = models.MilestoneStatusUpcoming
			}
			if _, err := l.entities.CreateMilestone(ctx, &models.Milestone{
				ProgramID:     created.ID,
				Name:          mf.Name,
				DueDate:       mf.DueDate,
				CompletedDate: mf.CompletedDate,
				Status:        status,
			}); err != nil {
				return fmt.Errorf("seed milestone %s: %w", mf.Name, err)
			}
			milestones++
		}
	}

	l.logger.Info().
		Int("objectives", len(objectiveIDs)).
		Int("programs", programs).
		Int("risks", risks).
		Int("milestones", milestones).
		Int("mappings", mappings).
		Msg("Seed data loaded")

	return nil
}

// ensureObjectives creates fixture objectives that are not already stored
// and returns the complete name to id catalog.
func (l *Loader) ensureObjectives(ctx context.Context, fixtures []ObjectiveFixture) (map[string]string, error) {
	existing, err := l.entities.ListStrategicObjectives(ctx)
	if err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}

	ids := make(map[string]string, len(existing)+len(fixtures))
	for _, obj := range existing {
		ids[obj.Name] = obj.ID
	}

	for _, of := range fixtures {
		if _, ok := ids[of.Name]; ok {
			continue
		}
		created, err := l.entities.CreateStrategicObjective(ctx, &models.StrategicObjective{
			Name:        of.Name,
			Description: of.Description,
			Priority:    of.Priority,
			Owner:       of.Owner,
		})
		if err != nil {
			return nil, fmt.Errorf("seed objective %s: %w", of.Name, err)
		}
		ids[created.Name] = created.ID
	}

	return ids, nil
}
