// Package agent implements the Aviya chat orchestrator and its HTTP surface.
package agent

import (
	"github.com/ashureev/aviya/internal/domain"
)

// ChatRequest represents one user turn.
type ChatRequest struct {
	Message   string           `json:"message"`
	SessionID string           `json:"sessionId,omitempty"`
	Identity  *domain.Identity `json:"-"`
}

// ChatResponse is the reply to one user turn.
type ChatResponse struct {
	Reply      string            `json:"reply"`
	Transition domain.Transition `json:"-"`
}

// UploadRequest is the body of POST /upload.
type UploadRequest struct {
	Name string `json:"name,omitempty"`
}

// AckResponse acknowledges an upload or a voice message.
type AckResponse struct {
	OK    bool   `json:"ok"`
	Reply string `json:"reply"`
}

// Replies for non-chat endpoints and failures.
const (
	ReplyAudio   = "I got your voice message 🖤"
	ReplyTrouble = "Aviya had trouble replying."
)

// UploadReply acknowledges a file, naming it when the client sent a name.
func UploadReply(name string) string {
	if name == "" {
		return "I saw your file. 🖤"
	}
	return "I saw your file: " + name + ". 🖤"
}
