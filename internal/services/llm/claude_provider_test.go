package llm

import (
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ternarybob/conspectus/internal/interfaces"
)

// claudeText extracts the text content from a converted message param.
func claudeText(t *testing.T, param anthropic.MessageParam) string {
	t.Helper()
	if len(param.Content) != 1 || param.Content[0].OfText == nil {
		t.Fatalf("Expected a single text block, got %+v", param.Content)
	}
	return param.Content[0].OfText.Text
}

func TestConvertMessagesToClaude_RolesAndSystem(t *testing.T) {
	messages := []interfaces.Message{
		{Role: "system", Content: "You are terse."},
		{Role: "user", Content: "Which programs are at risk?"},
		{Role: "assistant", Content: "Two programs are at risk."},
		{Role: "user", Content: "Which ones?"},
	}

	params, systemText, err := convertMessagesToClaude(messages, "")
	if err != nil {
		t.Fatalf("convertMessagesToClaude failed: %v", err)
	}

	if systemText != "You are terse." {
		t.Errorf("systemText = %q, want the system message content", systemText)
	}
	if len(params) != 3 {
		t.Fatalf("Expected 3 messages (system excluded), got %d", len(params))
	}

	wantRoles := []anthropic.MessageParamRole{
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleAssistant,
		anthropic.MessageParamRoleUser,
	}
	for i, want := range wantRoles {
		if params[i].Role != want {
			t.Errorf("params[%d].Role = %q, want %q", i, params[i].Role, want)
		}
	}
}

func TestConvertMessagesToClaude_ContextWrapsOpeningUserTurn(t *testing.T) {
	messages := []interfaces.Message{
		{Role: "user", Content: "Which programs are at risk?"},
		{Role: "assistant", Content: "Two programs."},
		{Role: "user", Content: "Which ones?"},
	}

	params, _, err := convertMessagesToClaude(messages, "Program: Aurora Smart Hub\nStatus: At Risk")
	if err != nil {
		t.Fatalf("convertMessagesToClaude failed: %v", err)
	}

	first := claudeText(t, params[0])
	if !strings.Contains(first, "<context>\nProgram: Aurora Smart Hub\nStatus: At Risk\n</context>") {
		t.Errorf("Opening turn missing context block:\n%s", first)
	}
	if !strings.Contains(first, "<user_query>\nWhich programs are at risk?\n</user_query>") {
		t.Errorf("Opening turn missing query block:\n%s", first)
	}

	// Later turns pass through untouched
	if got := claudeText(t, params[2]); got != "Which ones?" {
		t.Errorf("params[2] = %q, want the raw follow-up", got)
	}
}

func TestConvertMessagesToClaude_NoContextLeavesTurnsRaw(t *testing.T) {
	messages := []interfaces.Message{
		{Role: "user", Content: "Summarize the portfolio"},
	}

	params, _, err := convertMessagesToClaude(messages, "")
	if err != nil {
		t.Fatalf("convertMessagesToClaude failed: %v", err)
	}

	if got := claudeText(t, params[0]); got != "Summarize the portfolio" {
		t.Errorf("params[0] = %q, want the raw question", got)
	}
}

func TestConvertMessagesToClaude_UnknownRoleMapsToUser(t *testing.T) {
	messages := []interfaces.Message{
		{Role: "user", Content: "hi"},
		{Role: "tool", Content: "result"},
	}

	params, _, err := convertMessagesToClaude(messages, "")
	if err != nil {
		t.Fatalf("convertMessagesToClaude failed: %v", err)
	}
	if params[1].Role != anthropic.MessageParamRoleUser {
		t.Errorf("Unknown role mapped to %q, want user", params[1].Role)
	}
}

func TestConvertMessagesToClaude_Errors(t *testing.T) {
	if _, _, err := convertMessagesToClaude(nil, ""); err == nil {
		t.Error("Expected error for empty messages")
	}

	assistantOnly := []interfaces.Message{{Role: "assistant", Content: "hello"}}
	if _, _, err := convertMessagesToClaude(assistantOnly, ""); err == nil {
		t.Error("Expected error when no user message is present")
	}
}
