package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/interfaces"
)

// claudeContextTemplate wraps retrieved context and the user's question in
// XML tags, which Claude treats as strong structural boundaries. The
// context rides inside the opening user turn rather than the system prompt
// so multi-turn conversations keep a stable system message.
const claudeContextTemplate = `<context>
%s
</context>

<user_query>
%s
</user_query>

Please answer the user's query based on the provided context. If the context doesn't contain relevant information, say so clearly.`

// ClaudeProvider implements the LLMProvider interface using the Anthropic
// Claude API.
type ClaudeProvider struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
}

// convertMessagesToClaude converts []interfaces.Message to Claude MessageParam format.
// Maps Role values to provider's expected values and maintains chronological ordering.
// Extracts system messages separately for use with System parameter.
// When contextText is non-empty it is injected into the opening user turn
// using the XML template.
// Returns the user/assistant messages, the first system message content (if any), and an error.
func convertMessagesToClaude(messages []interfaces.Message, contextText string) ([]anthropic.MessageParam, string, error) {
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

	// Convert messages to Claude format, excluding system messages
	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		// Handle system messages separately
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue // Don't add system messages to messages array
		}

		content := msg.Content
		// Inject context into the first turn when it opens with the user
		if contextText != "" && msg.Role == "user" && len(claudeMessages) == 0 {
			content = fmt.Sprintf(claudeContextTemplate, contextText, content)
		}

		// Create message based on role
		switch msg.Role {
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(content),
			))
		case "user":
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(content),
			))
		default:
			// Default to user for unknown roles
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(content),
			))
		}
	}

	return claudeMessages, systemText, nil
}

// NewClaudeProvider creates a new Claude LLM provider instance.
//
// The provider initialization includes:
//  1. Validating that an Anthropic API key is configured
//  2. Setting default model name if not specified
//  3. Parsing timeout duration from configuration
//  4. Initializing the Claude client
//
// Parameters:
//   - claudeConfig: Claude configuration with API key and model settings
//   - logger: Structured logger for provider operations
//
// Returns:
//   - *ClaudeProvider: Initialized provider ready for use
//   - error: nil on success, error with details on failure
func NewClaudeProvider(claudeConfig *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeProvider, error) {
	if claudeConfig.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for the Claude provider (set via ANTHROPIC_API_KEY, CONSPECTUS_CLAUDE_API_KEY, or claude.api_key in config)")
	}

	// Set default model name if not specified
	if claudeConfig.Model == "" {
		claudeConfig.Model = "claude-haiku-3-5-20241022"
	}

	// Parse timeout duration
	timeout, err := time.ParseDuration(claudeConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", claudeConfig.Timeout, err)
	}

	// Set default max tokens
	maxTokens := claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	// Initialize Claude client
	client := anthropic.NewClient(
		option.WithAPIKey(claudeConfig.APIKey),
	)

	provider := &ClaudeProvider{
		config:    claudeConfig,
		logger:    logger,
		client:    client,
		timeout:   timeout,
		maxTokens: maxTokens,
	}

	logger.Debug().
		Str("model", claudeConfig.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude provider initialized successfully")

	return provider, nil
}

// Name returns the provider identifier
func (p *ClaudeProvider) Name() string {
	return "claude"
}

// Generate produces a completion for the conversation with retrieved
// context injected into the opening user turn.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - messages: Conversation history in chronological order
//   - contextText: Retrieved context to ground the answer ("" for none)
//   - temperature: Sampling temperature for this call
//
// Returns:
//   - string: Generated assistant response
//   - error: nil on success, error with details on failure
func (p *ClaudeProvider) Generate(ctx context.Context, messages []interfaces.Message, contextText string, temperature float64) (string, error) {
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
		Msg("Starting Claude chat completion")

	params, err := p.buildParams(messages, contextText, temperature)
	if err != nil {
		return "", err
	}

	// Make the API call
	resp, err := p.client.Messages.New(timeoutCtx, params)
	if err != nil {
		p.logger.Error().
			Err(err).
			Int("message_count", len(messages)).
			Msg("Claude chat completion failed")
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	// Extract text from response
	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	p.logger.Debug().
		Int("response_length", response.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Claude chat completion completed successfully")

	return response.String(), nil
}

// Stream produces a completion token by token, invoking onToken for each
// text delta as it arrives. The same context injection rules as Generate
// apply.
func (p *ClaudeProvider) Stream(ctx context.Context, messages []interfaces.Message, contextText string, temperature float64, onToken interfaces.TokenFunc) error {
	if len(messages) == 0 {
		return fmt.Errorf("messages cannot be empty for chat completion")
	}

	// Create timeout context
	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params, err := p.buildParams(messages, contextText, temperature)
	if err != nil {
		return err
	}

	p.logger.Debug().
		Int("message_count", len(messages)).
		Msg("Starting Claude streaming completion")

	stream := p.client.Messages.NewStreaming(timeoutCtx, params)
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					onToken(deltaVariant.Text)
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		p.logger.Error().Err(err).Msg("Claude streaming completion failed")
		return fmt.Errorf("Claude streaming failed: %w", err)
	}

	return nil
}

// HealthCheck verifies the Claude provider is operational with a minimal
// probe request.
func (p *ClaudeProvider) HealthCheck(ctx context.Context) error {
	p.logger.Debug().Msg("Running Claude provider health check")

	// Perform lightweight connectivity probe with short timeout
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
		return fmt.Errorf("Claude health check failed: %w", err)
	}
	if len(strings.TrimSpace(response)) == 0 {
		return fmt.Errorf("Claude probe returned empty response")
	}

	p.logger.Debug().
		Str("model", p.config.Model).
		Msg("Claude provider health check passed")

	return nil
}

// buildParams assembles the request parameters shared by Generate and
// Stream.
func (p *ClaudeProvider) buildParams(messages []interfaces.Message, contextText string, temperature float64) (anthropic.MessageNewParams, error) {
	claudeMessages, systemText, err := convertMessagesToClaude(messages, contextText)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("failed to convert messages to Claude format: %w", err)
	}

	if systemText == "" {
		systemText = defaultSystemPrompt
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(p.maxTokens),
		Messages:  claudeMessages,
		System: []anthropic.TextBlockParam{
			{Text: systemText},
		},
	}

	if temperature > 0 {
		params.Temperature = anthropic.Float(temperature)
	}

	return params, nil
}
