package sift

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// PromptMessage is one inbound conversation message as received on the
// HTTP surface. Content is the text-or-parts union.
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

var (
	thinkingRe = regexp.MustCompile(`(?is)<think>.*?</think>`)
	noticeRe   = regexp.MustCompile(`(?is)<details\b[^>]*>.*?</details>`)
	actionRe   = regexp.MustCompile(`(?is)<action>.*?</action>`)
)

// StripThinking removes <think> blocks from assistant content before it is
// stored back into the conversation.
func StripThinking(s string) string {
	return strings.TrimLeft(thinkingRe.ReplaceAllString(s, ""), " \t\n")
}

// StripToolNotices removes the tool-invocation notice markup that earlier
// turns streamed to the caller, so it never re-enters the model context.
func StripToolNotices(s string) string {
	s = noticeRe.ReplaceAllString(s, "")
	s = actionRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// LatestUserText returns the flattened text of the newest message. This is
// the single point where the content union is unfolded for retrieval.
func LatestUserText(msgs []PromptMessage) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content.Flatten()
}

// RefineHistory converts inbound messages into the model conversation:
// the system prompt (with a current-time note) is merged into an existing
// system message or inserted at the front, typed-part user content is
// flattened to text, and assistant turns are scrubbed of thinking blocks
// and tool notices.
func RefineHistory(msgs []PromptMessage, systemPrompt string, now time.Time) []ChatMessage {
	systemPrompt += "\nNote: Current time is " + now.UTC().Format("2006-01-02 15:04:05") +
		" UTC (only use this information when being asked or for searching purposes)"

	refined := make([]ChatMessage, 0, len(msgs)+1)
	hasSystem := false

	for _, m := range msgs {
		switch m.Role {
		case "system":
			hasSystem = true
			refined = append(refined, SystemMessage(m.Content.Flatten()+"\n"+systemPrompt))
		case "user":
			refined = append(refined, UserMessage(m.Content.Flatten()))
		default:
			role := m.Role
			if role == "" {
				role = "assistant"
			}
			refined = append(refined, ChatMessage{
				Role:    role,
				Content: StripToolNotices(StripThinking(m.Content.Flatten())),
			})
		}
	}

	if !hasSystem && systemPrompt != "" {
		refined = append([]ChatMessage{SystemMessage(systemPrompt)}, refined...)
	}
	return refined
}

// BuildSystemPrompt assembles the request's system prompt from the base
// prompt, the configured ignore list, and bio memory lines retrieved for
// the newest user message.
func BuildSystemPrompt(base string, ignoreList, bio []string) string {
	prompt := base
	if len(ignoreList) > 0 {
		var b strings.Builder
		b.WriteString(prompt)
		b.WriteString("\n\nIGNORE LIST (entities to refuse information about):\n")
		for _, item := range ignoreList {
			b.WriteString("- ")
			b.WriteString(item)
			b.WriteString("\n")
		}
		prompt = strings.TrimRight(b.String(), "\n")
	}
	if len(bio) > 0 {
		var b strings.Builder
		b.WriteString(prompt)
		b.WriteString("\n\nBio:\n")
		for _, line := range bio {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		prompt = strings.TrimRight(b.String(), "\n")
	}
	return prompt
}

// MatchIgnoreList returns the ignore-list entries present in the query.
// Both sides are NFKC-normalized and lowercased so visually equivalent
// spellings cannot slip past the list.
func MatchIgnoreList(query string, ignoreList []string) []string {
	q := strings.ToLower(norm.NFKC.String(query))
	var matched []string
	for _, entity := range ignoreList {
		if entity == "" {
			continue
		}
		if strings.Contains(q, strings.ToLower(norm.NFKC.String(entity))) {
			matched = append(matched, entity)
		}
	}
	return matched
}
