package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	linearGraphQLURL     = "https://api.linear.app/graphql"
	linearRequestTimeout = 30 * time.Second

	// Personal API keys go in the Authorization header bare; OAuth access
	// tokens (lin_oauth_ prefix) use the Bearer scheme.
	linearOAuthPrefix = "lin_oauth_"
)

const projectsQuery = `
query($cursor: String, $pageSize: Int!) {
	projects(first: $pageSize, after: $cursor) {
		nodes {
			id
			name
			description
			targetDate
			progress
			updatedAt
			status { name type }
			lead { name }
			creator { name }
			labels(first: 20) { nodes { name parent { name } } }
			projectMilestones { nodes { id name targetDate } }
			projectUpdates(first: 1) { nodes { health body createdAt } }
			teams(first: 10) { nodes { name } }
		}
		pageInfo { hasNextPage endCursor }
	}
}`

// LinearClient implements the TrackerAdapter interface for Linear's GraphQL
// API, paging through projects under a request rate limit.
type LinearClient struct {
	http     *resty.Client
	url      string
	limiter  *rate.Limiter
	pageSize int
	logger   arbor.ILogger
}

// NewLinearClient creates a new Linear adapter from config.
func NewLinearClient(cfg *common.Config, logger arbor.ILogger) *LinearClient {
	if logger == nil {
		logger = common.GetLogger()
	}

	apiKey := cfg.Sync.Linear.APIKey
	var client *resty.Client
	if strings.HasPrefix(apiKey, linearOAuthPrefix) {
		source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey})
		httpClient := oauth2.NewClient(context.Background(), source)
		httpClient.Timeout = linearRequestTimeout
		client = resty.NewWithClient(httpClient)
	} else {
		client = resty.New().
			SetTimeout(linearRequestTimeout).
			SetHeader("Authorization", apiKey)
	}
	client.SetHeader("Content-Type", "application/json")

	pageSize := cfg.Sync.Linear.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return &LinearClient{
		http:     client,
		url:      linearGraphQLURL,
		limiter:  rate.NewLimiter(rate.Every(cfg.LinearRateLimit()), 1),
		pageSize: pageSize,
		logger:   logger,
	}
}

// Source identifies this adapter on imported rows and sync runs.
func (c *LinearClient) Source() string {
	return models.SyncSourceLinear
}

// FetchProjects pages through every project visible to the credentials and
// normalizes them into tracker projects.
func (c *LinearClient) FetchProjects(ctx context.Context) ([]models.TrackerProject, error) {
	var all []models.TrackerProject
	cursor := ""

	for {
		variables := map[string]interface{}{"pageSize": c.pageSize}
		if cursor != "" {
			variables["cursor"] = cursor
		}

		var page projectsResponse
		if err := c.query(ctx, projectsQuery, variables, &page); err != nil {
			return nil, err
		}

		for _, node := range page.Data.Projects.Nodes {
			all = append(all, projectFromNode(node))
		}

		info := page.Data.Projects.PageInfo
		if !info.HasNextPage {
			break
		}
		cursor = info.EndCursor
	}

	c.logger.Info().Int("projects", len(all)).Msg("Fetched projects from Linear")
	return all, nil
}

// query executes one rate-limited GraphQL request and surfaces transport,
// HTTP, and GraphQL-level errors uniformly.
func (c *LinearClient) query(ctx context.Context, query string, variables map[string]interface{}, out *projectsResponse) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(graphQLRequest{Query: query, Variables: variables}).
		SetResult(out).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("linear request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("linear request: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Errors) > 0 {
		messages := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("linear graphql errors: %s", strings.Join(messages, "; "))
	}
	return nil
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type nameNode struct {
	Name string `json:"name"`
}

type labelNode struct {
	Name   string    `json:"name"`
	Parent *nameNode `json:"parent"`
}

type milestoneNode struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TargetDate string `json:"targetDate"`
}

type updateNode struct {
	Health    string    `json:"health"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type projectNode struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	TargetDate  string    `json:"targetDate"`
	Progress    float64   `json:"progress"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Status      struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"status"`
	Lead              *nameNode               `json:"lead"`
	Creator           *nameNode               `json:"creator"`
	Labels            nodeList[labelNode]     `json:"labels"`
	ProjectMilestones nodeList[milestoneNode] `json:"projectMilestones"`
	ProjectUpdates    nodeList[updateNode]    `json:"projectUpdates"`
	Teams             nodeList[nameNode]      `json:"teams"`
}

// nodeList matches the { nodes: [...] } wrapper on every GraphQL connection.
type nodeList[T any] struct {
	Nodes []T `json:"nodes"`
}

type projectsResponse struct {
	Data struct {
		Projects struct {
			Nodes    []projectNode `json:"nodes"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"projects"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// projectFromNode normalizes Linear's project shape: the product line comes
// from the label group named "Product Line" (flat label names matching a
// known product line are accepted as a fallback), the lead falls back to the
// project creator, and health plus narrative come from the latest update.
func projectFromNode(node projectNode) models.TrackerProject {
	p := models.TrackerProject{
		ExternalID:  node.ID,
		Name:        node.Name,
		Description: node.Description,
		State:       node.Status.Name,
		Lead:        ownerName(node),
		ProductLine: productLineFromLabels(node.Labels.Nodes),
		TargetDate:  node.TargetDate,
		Progress:    node.Progress,
		UpdatedAt:   node.UpdatedAt,
	}
	if len(node.ProjectUpdates.Nodes) > 0 {
		p.Health = node.ProjectUpdates.Nodes[0].Health
		p.LastUpdate = node.ProjectUpdates.Nodes[0].Body
	}
	for _, team := range node.Teams.Nodes {
		p.Teams = append(p.Teams, team.Name)
	}
	for _, ms := range node.ProjectMilestones.Nodes {
		p.Milestones = append(p.Milestones, models.TrackerMilestone{
			ExternalID: ms.ID,
			Name:       ms.Name,
			TargetDate: ms.TargetDate,
		})
	}
	return p
}

func ownerName(node projectNode) string {
	if node.Lead != nil && node.Lead.Name != "" {
		return node.Lead.Name
	}
	if node.Creator != nil && node.Creator.Name != "" {
		return node.Creator.Name
	}
	return ""
}

func productLineFromLabels(labels []labelNode) string {
	for _, label := range labels {
		if label.Parent != nil && strings.EqualFold(label.Parent.Name, "product line") {
			return label.Name
		}
		for _, line := range models.ProductLines {
			if label.Name == line {
				return label.Name
			}
		}
	}
	return ""
}
