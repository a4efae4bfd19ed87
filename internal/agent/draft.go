package agent

import (
	"strings"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

// draft is the in-flight assistant message. It is owned by the running
// turn and only becomes a domain.Message through promote.
type draft struct {
	sb strings.Builder
}

func newDraft() *draft {
	return &draft{}
}

func (d *draft) append(chunk string) {
	d.sb.WriteString(chunk)
}

func (d *draft) text() string {
	return d.sb.String()
}

func (d *draft) reset() {
	d.sb.Reset()
}

// promote freezes the draft into the final assistant message.
func (d *draft) promote(content string, isErr bool) domain.Message {
	if isErr && !strings.HasPrefix(content, ErrorMarker) {
		content = ErrorMarker + content
	}
	return domain.Message{
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Streaming: false,
		Error:     isErr,
	}
}
