package agent

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

const maxResultDataChars = 4000

const operatingRules = `To use a tool, reply with one fenced block in exactly this form:

` + "```tool" + `
{"tool": "<tool name>", "args": {"<param>": <value>}}
` + "```" + `

Rules:
- Use at most one tool per reply. Only the first tool block is executed.
- After a tool block, stop and wait for the tool result.
- If a tool fails, read the error and try a different approach instead of repeating the same call.
- When you can answer the user, reply in plain prose with no tool block.
- Keep answers short and concrete.`

// systemPrompt builds the prompt sent before the conversation.
func (c *Controller) systemPrompt(ctx map[string]string) string {
	var sb strings.Builder
	sb.WriteString("You are NeuroOS, an assistant that operates a desktop workspace through tools: files, a shell, application windows, a browser and a long-term memory.\n\n")
	sb.WriteString("## Tools\n")
	sb.WriteString(c.dispatcher.Registry().Catalogue())
	sb.WriteString("\n## Calling tools\n")
	sb.WriteString(operatingRules)
	sb.WriteByte('\n')

	if len(ctx) > 0 {
		keys := make([]string, 0, len(ctx))
		for k := range ctx {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		sb.WriteString("\n## Session context\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, ctx[k])
		}
	}
	if c.cfg.Instructions != "" {
		sb.WriteString("\n## Instructions\n")
		sb.WriteString(c.cfg.Instructions)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// seed builds the initial transcript: system prompt, a bounded window of
// prior turns, then the new user message.
func (c *Controller) seed(in TurnInput) []domain.Message {
	prior := make([]domain.Message, 0, len(in.History))
	for _, m := range in.History {
		if m.Role == domain.RoleSystem || m.Streaming || strings.TrimSpace(m.Content) == "" {
			continue
		}
		prior = append(prior, m)
	}
	if len(prior) > c.cfg.HistoryWindow {
		prior = prior[len(prior)-c.cfg.HistoryWindow:]
	}

	transcript := make([]domain.Message, 0, len(prior)+2)
	transcript = append(transcript, domain.NewMessage(domain.RoleSystem, c.systemPrompt(in.Context)))
	transcript = append(transcript, prior...)
	transcript = append(transcript, domain.NewMessage(domain.RoleUser, in.UserMessage))
	return transcript
}

// toolResultMessage is fed back to the model after every tool call. It
// carries the latest result and the working memory of the turn.
func toolResultMessage(call domain.ToolCall, res domain.ToolResult, memory []domain.MemoryEntry) string {
	var sb strings.Builder
	status := "succeeded"
	if !res.Success {
		status = "failed"
	}
	fmt.Fprintf(&sb, "[tool result] %s %s\n", call.Tool, status)
	fmt.Fprintf(&sb, "Message: %s\n", res.Message)
	if res.Data != nil {
		if b, err := json.Marshal(res.Data); err == nil {
			fmt.Fprintf(&sb, "Data: %s\n", truncate(string(b), maxResultDataChars))
		}
	}

	sb.WriteString("\nSteps so far:\n")
	for i, m := range memory {
		mark := "ok"
		if !m.Success {
			mark = "failed"
		}
		fmt.Fprintf(&sb, "%d. %s %s -> %s: %s\n", i+1, m.Tool, argsJSON(m.Args), mark, truncate(m.Message, 200))
	}

	if res.Success {
		sb.WriteString("\nContinue with the next step, or answer the user if you are done.")
	} else {
		sb.WriteString("\nThat action failed. Try a different approach, or explain the problem to the user.")
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
