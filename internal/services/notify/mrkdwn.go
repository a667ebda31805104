package notify

import "regexp"

// Slack's mrkdwn dialect uses single asterisks for bold and has no header
// syntax, so markdown coming out of the LLM needs rewriting before posting.
var (
	boldPattern   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	headerPattern = regexp.MustCompile(`(?m)^#{1,6}\s*(.+)$`)
	bulletPattern = regexp.MustCompile(`(?m)^(\s*)[-*]\s+`)
)

// ToMrkdwn rewrites common markdown constructs into mrkdwn: double-asterisk
// bold becomes single-asterisk, header lines become bold lines, and list
// markers become bullet points.
func ToMrkdwn(text string) string {
	if text == "" {
		return text
	}
	text = boldPattern.ReplaceAllString(text, "*${1}*")
	text = headerPattern.ReplaceAllString(text, "*${1}*")
	text = bulletPattern.ReplaceAllString(text, "${1}• ")
	return text
}
