package retrieval

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/models"
)

var (
	monthNamePattern = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`)
	quarterPattern   = regexp.MustCompile(`\bq([1-4])\b`)
)

var monthIndex = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// StructuredService implements StructuredRetriever. It answers aggregate and
// lookup-shaped questions by filtering the portfolio directly, without any
// vector search. Triggers are independent: every keyword block that matches
// the question contributes its section, in a fixed declaration order.
type StructuredService struct {
	entities interfaces.EntityStore
	logger   arbor.ILogger
	now      func() time.Time
}

// NewStructuredService creates a new structured retrieval service.
func NewStructuredService(entities interfaces.EntityStore, logger arbor.ILogger) *StructuredService {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &StructuredService{
		entities: entities,
		logger:   logger,
		now:      time.Now,
	}
}

// BuildContext assembles context sections for every trigger the question
// fires. Returns the empty string when nothing matches; callers treat that
// as "no structured context available", not as an error. Entity store
// failures propagate.
func (s *StructuredService) BuildContext(ctx context.Context, question string, programID string) (string, error) {
	q := strings.ToLower(question)
	var parts []string

	if programID != "" {
		program, err := s.entities.GetProgram(ctx, programID)
		switch {
		case errors.Is(err, interfaces.ErrNotFound):
			// Unknown scope id: omit the focus block, keep going.
		case err != nil:
			return "", err
		default:
			parts = append(parts, fmt.Sprintf("Current Program Context: %s", program.Name))
			parts = append(parts, fmt.Sprintf("Status: %s", program.Status))
			parts = append(parts, fmt.Sprintf("Product Line: %s", program.ProductLine))
			parts = append(parts, fmt.Sprintf("Progress: %d%%", program.Progress))
			if len(program.Risks) > 0 {
				entries := make([]string, len(program.Risks))
				for i, r := range program.Risks {
					entries[i] = fmt.Sprintf("%s (%s)", r.Title, r.Severity)
				}
				parts = append(parts, fmt.Sprintf("Risks: %s", strings.Join(entries, ", ")))
			}
		}
	}

	programs, err := s.entities.ListPrograms(ctx)
	if err != nil {
		return "", err
	}

	if strings.Contains(q, "at risk") || strings.Contains(q, "at-risk") {
		parts = append(parts, statusSection(programs, models.StatusAtRisk, "At Risk Programs")...)
	}

	if strings.Contains(q, "off track") || strings.Contains(q, "off-track") {
		parts = append(parts, statusSection(programs, models.StatusOffTrack, "Off Track Programs")...)
	}

	if strings.Contains(q, "launch") {
		launching := selectLaunching(programs, q, s.now())
		if len(launching) > 0 {
			parts = append(parts, fmt.Sprintf("\nUpcoming Launches (%d):", len(launching)))
			for _, p := range launching {
				parts = append(parts, fmt.Sprintf("- %s: %s (%s)", p.Name, p.LaunchDate, p.Status))
			}
		}
	}

	for _, line := range models.ProductLines {
		keyword := strings.ToLower(line)
		if !strings.Contains(q, keyword) {
			continue
		}
		var matched []models.Program
		for _, p := range programs {
			if strings.ToLower(p.ProductLine) == keyword {
				matched = append(matched, p)
			}
		}
		parts = append(parts, fmt.Sprintf("\n%s Programs (%d):", line, len(matched)))
		for _, p := range matched {
			parts = append(parts, fmt.Sprintf("- %s: %s, %s", p.Name, p.Status, p.PipelineStage))
		}
	}

	if strings.Contains(q, "risk") {
		type programRisk struct {
			programName string
			risk        models.Risk
		}
		var allRisks []programRisk
		for _, p := range programs {
			for _, r := range p.Risks {
				allRisks = append(allRisks, programRisk{programName: p.Name, risk: r})
			}
		}
		if len(allRisks) > 0 {
			parts = append(parts, fmt.Sprintf("\nAll Open Risks (%d):", len(allRisks)))
			sort.SliceStable(allRisks, func(i, j int) bool {
				return models.SeverityRank(allRisks[i].risk.Severity) < models.SeverityRank(allRisks[j].risk.Severity)
			})
			for _, pr := range allRisks {
				parts = append(parts, fmt.Sprintf("- [%s] %s: %s", pr.risk.Severity, pr.programName, pr.risk.Title))
				parts = append(parts, fmt.Sprintf("  Mitigation: %s", pr.risk.Mitigation))
			}
		}
	}

	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, "\n"), nil
}

// statusSection renders the header and rows for one status filter. The
// header is emitted even when no program matches, so the model sees an
// explicit zero instead of silence.
func statusSection(programs []models.Program, status, label string) []string {
	var matched []models.Program
	for _, p := range programs {
		if p.Status == status {
			matched = append(matched, p)
		}
	}
	parts := []string{fmt.Sprintf("\n%s (%d):", label, len(matched))}
	for _, p := range matched {
		parts = append(parts, fmt.Sprintf("- %s (%s): %s", p.Name, p.ProductLine, p.LastUpdate))
	}
	return parts
}

// selectLaunching picks programs for a launch question. Date windows are
// resolved against now: a named month means its next occurrence, "this
// quarter" the current calendar quarter, "qN" that quarter's next
// occurrence, "next" the following month. Without a window phrase the five
// soonest-launching programs are returned.
func selectLaunching(programs []models.Program, q string, now time.Time) []models.Program {
	prefixes := launchDatePrefixes(q, now)

	var launching []models.Program
	if len(prefixes) > 0 {
		for _, p := range programs {
			if p.LaunchDate == "" {
				continue
			}
			for _, prefix := range prefixes {
				if strings.HasPrefix(p.LaunchDate, prefix) {
					launching = append(launching, p)
					break
				}
			}
		}
		return launching
	}

	for _, p := range programs {
		if p.LaunchDate != "" {
			launching = append(launching, p)
		}
	}
	sort.SliceStable(launching, func(i, j int) bool {
		return launching[i].LaunchDate < launching[j].LaunchDate
	})
	if len(launching) > 5 {
		launching = launching[:5]
	}
	return launching
}

// launchDatePrefixes maps window phrases in the question to YYYY-MM launch
// date prefixes. Returns nil when no window phrase is present.
func launchDatePrefixes(q string, now time.Time) []string {
	year, month := now.Year(), now.Month()

	if strings.Contains(q, "this month") {
		return []string{monthPrefix(year, month)}
	}
	if name := monthNamePattern.FindString(q); name != "" {
		named := monthIndex[name]
		namedYear := year
		if named < month {
			namedYear++
		}
		return []string{monthPrefix(namedYear, named)}
	}

	if strings.Contains(q, "this quarter") {
		start := time.Month((int(month)-1)/3*3 + 1)
		return quarterPrefixes(year, start)
	}
	if m := quarterPattern.FindStringSubmatch(q); m != nil {
		quarter := int(m[1][0] - '0')
		quarterYear := year
		if time.Month(quarter*3) < month {
			quarterYear++
		}
		return quarterPrefixes(quarterYear, time.Month((quarter-1)*3+1))
	}

	if strings.Contains(q, "next") {
		nextYear, nextMonth := year, month+1
		if nextMonth > time.December {
			nextMonth = time.January
			nextYear++
		}
		return []string{monthPrefix(nextYear, nextMonth)}
	}

	return nil
}

func monthPrefix(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}

func quarterPrefixes(year int, start time.Month) []string {
	return []string{
		monthPrefix(year, start),
		monthPrefix(year, start+1),
		monthPrefix(year, start+2),
	}
}
