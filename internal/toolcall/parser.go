// Package toolcall extracts fenced tool invocations from model output.
//
// A tool block is a fenced code block whose info string is "tool",
// "tool_call" or "json" and whose body is a JSON object carrying a string
// "tool" field and an optional "args" (or "arguments") object:
//
//	```tool
//	{"tool": "list_files", "args": {"path": "/ws"}}
//	```
//
// Everything that is not a well-formed tool block is prose.
package toolcall

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

const fence = "```"

var toolInfoStrings = map[string]bool{
	"tool":      true,
	"tool_call": true,
	"json":      true,
}

// Block is one well-formed tool block found in the input.
type Block struct {
	Call domain.ToolCall
	// Raw is the exact block text, fences included.
	Raw string
	// Start and End are byte offsets of Raw in the parsed input.
	Start, End int
	// ProseOffset is the byte offset in Result.Prose where the block was cut.
	ProseOffset int
}

// Result is the outcome of parsing one pass of generated text.
type Result struct {
	Calls  []domain.ToolCall
	Blocks []Block
	Prose  string
}

// First returns the call to dispatch for this pass. Later calls are ignored.
func First(r Result) (domain.ToolCall, bool) {
	if len(r.Calls) == 0 {
		return domain.ToolCall{}, false
	}
	return r.Calls[0], true
}

type payload struct {
	Tool      *string        `json:"tool"`
	Args      map[string]any `json:"args"`
	Arguments map[string]any `json:"arguments"`
}

// fenceSpan describes one fenced region located by scan.
type fenceSpan struct {
	start, end int // end is -1 when the fence is not closed
	info       string
	body       string
	infoDone   bool
}

// scan walks text and returns every fenced region in order. Scanning stops
// at the first unterminated fence.
func scan(text string) []fenceSpan {
	var spans []fenceSpan
	pos := 0
	for pos < len(text) {
		i := strings.Index(text[pos:], fence)
		if i < 0 {
			break
		}
		start := pos + i
		afterOpen := start + len(fence)
		nl := strings.IndexByte(text[afterOpen:], '\n')
		if nl < 0 {
			spans = append(spans, fenceSpan{start: start, end: -1, info: text[afterOpen:]})
			break
		}
		info := strings.ToLower(strings.TrimSpace(text[afterOpen : afterOpen+nl]))
		bodyStart := afterOpen + nl + 1
		j := closingFence(text, bodyStart, info)
		if j < 0 {
			spans = append(spans, fenceSpan{start: start, end: -1, info: info, infoDone: true, body: text[bodyStart:]})
			break
		}
		end := j + len(fence)
		spans = append(spans, fenceSpan{
			start:    start,
			end:      end,
			info:     info,
			infoDone: true,
			body:     text[bodyStart:j],
		})
		pos = end
	}
	return spans
}

// closingFence returns the offset of the fence closing the body that
// starts at bodyStart, or -1. A tool block body holding a JSON object is
// read to the end of the object first, so fences inside string values do
// not close it; an object cut off by the end of text leaves it open.
func closingFence(text string, bodyStart int, info string) int {
	from := bodyStart
	if toolInfoStrings[info] {
		obj := bodyStart + len(text[bodyStart:]) - len(strings.TrimLeft(text[bodyStart:], " \t\r\n"))
		if strings.HasPrefix(text[obj:], "{") {
			dec := json.NewDecoder(strings.NewReader(text[obj:]))
			var raw json.RawMessage
			switch err := dec.Decode(&raw); {
			case err == nil:
				from = obj + int(dec.InputOffset())
			case errors.Is(err, io.ErrUnexpectedEOF):
				return -1
			}
		}
	}
	j := strings.Index(text[from:], fence)
	if j < 0 {
		return -1
	}
	return from + j
}

// decode returns the call carried by a closed span, if it is a tool block.
func decode(s fenceSpan) (domain.ToolCall, bool) {
	if s.end < 0 || !toolInfoStrings[s.info] {
		return domain.ToolCall{}, false
	}
	body := strings.TrimSpace(s.body)
	if !strings.HasPrefix(body, "{") {
		return domain.ToolCall{}, false
	}
	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		if s.info != "json" {
			slog.Debug("skipping malformed tool block", "error", err, "offset", s.start)
		}
		return domain.ToolCall{}, false
	}
	if p.Tool == nil || strings.TrimSpace(*p.Tool) == "" {
		return domain.ToolCall{}, false
	}
	args := p.Args
	if args == nil {
		args = p.Arguments
	}
	if args == nil {
		args = map[string]any{}
	}
	return domain.ToolCall{Tool: strings.TrimSpace(*p.Tool), Args: args}, true
}

// Parse returns the tool calls embedded in text, in order, together with
// the prose left after removing them.
func Parse(text string) Result {
	var (
		res    Result
		pieces []string
		last   int
	)
	for _, s := range scan(text) {
		call, ok := decode(s)
		if !ok {
			continue
		}
		if piece := strings.TrimSpace(text[last:s.start]); piece != "" {
			pieces = append(pieces, piece)
		}
		res.Calls = append(res.Calls, call)
		res.Blocks = append(res.Blocks, Block{
			Call:        call,
			Raw:         text[s.start:s.end],
			Start:       s.start,
			End:         s.end,
			ProseOffset: joinedLen(pieces),
		})
		last = s.end
	}
	if len(res.Blocks) == 0 {
		res.Prose = strings.TrimSpace(text)
		return res
	}
	if piece := strings.TrimSpace(text[last:]); piece != "" {
		pieces = append(pieces, piece)
	}
	res.Prose = strings.Join(pieces, "\n\n")
	return res
}

func joinedLen(pieces []string) int {
	n := 0
	for i, p := range pieces {
		if i > 0 {
			n += 2
		}
		n += len(p)
	}
	return n
}

// Reinsert puts the blocks back into prose at their recorded offsets.
// Parsing the output yields the same calls and the same prose.
func Reinsert(prose string, blocks []Block) string {
	out := prose
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		off := min(max(b.ProseOffset, 0), len(out))
		out = out[:off] + "\n" + b.Raw + "\n" + out[off:]
	}
	return out
}

// Live returns the prose to show while text is still being generated.
// A trailing fence that may still turn into a tool block is hidden.
func Live(text string) string {
	visible := text
	spans := scan(text)
	n := len(spans)
	switch {
	case n > 0 && spans[n-1].end < 0:
		tail := spans[n-1]
		if !tail.infoDone || toolInfoStrings[tail.info] {
			visible = text[:tail.start]
		}
	case n == 0 || spans[n-1].end != len(text):
		// one or two backticks may be the start of a fence
		visible = strings.TrimRight(text, "`")
	}
	return Parse(visible).Prose
}
