package interfaces

import (
	"context"

	"github.com/ternarybob/conspectus/internal/models"
)

// Notifier delivers generated briefings to an external channel.
type Notifier interface {
	// SendBriefing posts the scheduled portfolio summary
	SendBriefing(ctx context.Context, briefing models.QueryResult) error

	// SendInsight posts a proactive observation
	SendInsight(ctx context.Context, insight models.QueryResult) error
}
