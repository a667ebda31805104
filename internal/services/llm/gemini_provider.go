package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
)

// geminiContextTemplate injects retrieved context with labeled blocks.
// Gemini has no system-turn context convention, so the context rides in the
// most recent user turn where it sits closest to the question being asked.
const geminiContextTemplate = `Context:
%s

User Query:
%s

Please answer the user's query based on the provided context. If the context doesn't contain relevant information, say so clearly.`

// GeminiProvider implements the LLMProvider interface using the Google
// Gemini API.
type GeminiProvider struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
}

// convertMessagesToGemini converts []interfaces.Message to Gemini Content format.
// Maps Role values to Gemini expected values and maintains chronological ordering.
// Extracts system messages separately for use with SystemInstruction.
// When contextText is non-empty it is injected into the last user turn
// using the labeled-block template.
// Returns the user/model contents, the first system message content (if any), and an error.
func convertMessagesToGemini(messages []interfaces.Message, contextText string) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	// Check that at least one message has role "user"
	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	// Find the last user message so context lands next to the live question
	lastUserIdx := -1
	for i, msg := range messages {
		if msg.Role == "user" {
			lastUserIdx = i
		}
	}

	// Convert messages to Gemini format, excluding system messages
	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for i, msg := range messages {
		// Handle system messages separately
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue // Don't add system messages to contents
		}

		content := msg.Content
		if contextText != "" && i == lastUserIdx {
			content = fmt.Sprintf(geminiContextTemplate, contextText, content)
		}

		// Map Role values to Gemini expected values
		switch msg.Role {
		case "assistant":
			contents = append(contents, genai.NewContentFromText(content, genai.RoleModel))
		case "user":
			contents = append(contents, genai.NewContentFromText(content, genai.RoleUser))
		default:
			// Default to user for unknown roles
			contents = append(contents, genai.NewContentFromText(content, genai.RoleUser))
		}
	}

	return contents, systemText, nil
}

// NewGeminiProvider creates a new Gemini LLM provider instance.
//
// The provider initialization includes:
//  1. Validating that a Gemini API key is configured
//  2. Setting default model name if not specified
//  3. Parsing timeout duration from configuration
//  4. Initializing the genai client
//
// Parameters:
//   - geminiConfig: Gemini configuration with API key and model settings
//   - logger: Structured logger for provider operations
//
// Returns:
//   - *GeminiProvider: Initialized provider ready for use
//   - error: nil on success, error with details on failure
func NewGeminiProvider(geminiConfig *common.GeminiConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	if geminiConfig.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required for the Gemini provider (set via GEMINI_API_KEY, CONSPECTUS_GEMINI_API_KEY, or gemini.api_key in config)")
	}

	// Set default model name if not specified
	if geminiConfig.Model == "" {
		geminiConfig.Model = "gemini-3-flash-preview"
	}

	// Parse timeout duration
	timeout, err := time.ParseDuration(geminiConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", geminiConfig.Timeout, err)
	}

	// Initialize genai client
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	provider := &GeminiProvider{
		config:  geminiConfig,
		logger:  logger,
		client:  client,
		timeout: timeout,
	}

	logger.Debug().
		Str("model", geminiConfig.Model).
		Dur("timeout", timeout).
		Msg("Gemini provider initialized successfully")

	return provider, nil
}

// Name returns the provider identifier
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Generate produces a completion for the conversation with retrieved
// context injected into the last user turn. Rate limit errors are retried
// with backoff before failing.
func (p *GeminiProvider) Generate(ctx context.Context, messages []interfaces.Message, contextText string, temperature float64) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for chat completion")
	}

	// Create timeout context
	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	startTime := time.Now()
	p.logger.Debug().
		Int("message_count", len(messages)).
		Int("context_length", len(contextText)).
		Msg("Starting Gemini chat completion")

	contents, config, err := p.buildRequest(messages, contextText, temperature)
	if err != nil {
		return "", err
	}

	// Make API call with retry
	var resp *genai.GenerateContentResponse
	var apiErr error
	retryConfig := NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		resp, apiErr = p.client.Models.GenerateContent(timeoutCtx, p.config.Model, contents, config)
		if apiErr == nil {
			break
		}

		if attempt == retryConfig.MaxRetries {
			break
		}

		// Calculate backoff
		var backoff time.Duration
		if IsRateLimitError(apiErr) {
			apiDelay := ExtractRetryDelay(apiErr)
			backoff = retryConfig.CalculateBackoff(attempt, apiDelay)
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		p.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-timeoutCtx.Done():
			return "", timeoutCtx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		p.logger.Error().
			Err(apiErr).
			Int("message_count", len(messages)).
			Msg("Gemini chat completion failed")
		return "", fmt.Errorf("Gemini API call failed: %w", apiErr)
	}

	// Extract text from response
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}
	responseText := resp.Text()
	if responseText == "" {
		return "", fmt.Errorf("empty text in Gemini response")
	}

	p.logger.Debug().
		Int("response_length", len(responseText)).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini chat completion completed successfully")

	return responseText, nil
}

// Stream produces a completion token by token, invoking onToken for each
// chunk as it arrives. The same context injection rules as Generate apply.
func (p *GeminiProvider) Stream(ctx context.Context, messages []interfaces.Message, contextText string, temperature float64, onToken interfaces.TokenFunc) error {
	if len(messages) == 0 {
		return fmt.Errorf("messages cannot be empty for chat completion")
	}

	// Create timeout context
	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	contents, config, err := p.buildRequest(messages, contextText, temperature)
	if err != nil {
		return err
	}

	p.logger.Debug().
		Int("message_count", len(messages)).
		Msg("Starting Gemini streaming completion")

	for resp, err := range p.client.Models.GenerateContentStream(timeoutCtx, p.config.Model, contents, config) {
		if err != nil {
			p.logger.Error().Err(err).Msg("Gemini streaming completion failed")
			return fmt.Errorf("Gemini streaming failed: %w", err)
		}
		if chunk := resp.Text(); chunk != "" {
			onToken(chunk)
		}
	}

	return nil
}

// HealthCheck verifies the Gemini provider is operational with a minimal
// probe request.
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	p.logger.Debug().Msg("Running Gemini provider health check")

	healthCheckCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	testMessages := []interfaces.Message{
		{
			Role:    "user",
			Content: "ping",
		},
	}

	response, err := p.Generate(healthCheckCtx, testMessages, "", 0)
	if err != nil {
		return fmt.Errorf("Gemini health check failed: %w", err)
	}
	if len(strings.TrimSpace(response)) == 0 {
		return fmt.Errorf("Gemini probe returned empty response")
	}

	p.logger.Debug().
		Str("model", p.config.Model).
		Msg("Gemini provider health check passed")

	return nil
}

// buildRequest assembles the contents and config shared by Generate and
// Stream.
func (p *GeminiProvider) buildRequest(messages []interfaces.Message, contextText string, temperature float64) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	contents, systemText, err := convertMessagesToGemini(messages, contextText)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert messages to Gemini format: %w", err)
	}

	if systemText == "" {
		systemText = defaultSystemPrompt
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemText, genai.RoleUser),
	}
	if temperature > 0 {
		config.Temperature = genai.Ptr(float32(temperature))
	}

	return contents, config, nil
}
