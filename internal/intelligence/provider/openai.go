package provider

import (
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
)

// OpenAI endpoint defaults.
const (
	OpenAIName    = "openai"
	OpenAIBaseURL = "https://api.openai.com/v1"
	OpenAIModel   = "gpt-3.5-turbo"
)

// NewOpenAIAdapter returns the secondary provider adapter. Responses are
// requested in JSON mode.
func NewOpenAIAdapter(cfg ChatConfig, schemas *Schemas, logger logging.Logger, metrics Metrics, opts ...ChatOption) *ChatAdapter {
	cfg.Name = OpenAIName
	cfg.JSONMode = true
	cfg.applyDefaults(OpenAIBaseURL, OpenAIModel)
	return NewChatAdapter(NewChatClient(cfg, logger, metrics, opts...), schemas)
}
