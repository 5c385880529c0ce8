package provider

import (
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
)

// Groq endpoint defaults.
const (
	GroqName    = "groq"
	GroqBaseURL = "https://api.groq.com/openai/v1"
	GroqModel   = "llama-3.1-8b-instant"
)

// NewGroqAdapter returns the primary provider adapter.
func NewGroqAdapter(cfg ChatConfig, schemas *Schemas, logger logging.Logger, metrics Metrics, opts ...ChatOption) *ChatAdapter {
	cfg.Name = GroqName
	cfg.applyDefaults(GroqBaseURL, GroqModel)
	return NewChatAdapter(NewChatClient(cfg, logger, metrics, opts...), schemas)
}
