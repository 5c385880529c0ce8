package provider

import (
	"context"
	"time"
)

// ChatAdapter implements Adapter over an OpenAI-compatible chat endpoint.
type ChatAdapter struct {
	client  *ChatClient
	schemas *Schemas
	now     func() time.Time
}

// NewChatAdapter wraps client.
func NewChatAdapter(client *ChatClient, schemas *Schemas) *ChatAdapter {
	if schemas == nil {
		schemas = MustCompileSchemas()
	}
	return &ChatAdapter{client: client, schemas: schemas, now: time.Now}
}

func (a *ChatAdapter) Name() string { return a.client.Name() }

func (a *ChatAdapter) AnalyzeContract(ctx context.Context, text string) (*ContractAnalysis, error) {
	p, err := AnalysisPrompt(text)
	if err != nil {
		return nil, err
	}
	out, err := a.client.Complete(ctx, OpAnalyze, p)
	if err != nil {
		return nil, err
	}
	analysis, err := ParseAnalysis(a.schemas, out)
	if err != nil {
		return nil, badOutput(a.Name(), OpAnalyze, err)
	}
	analysis.Provider = a.Name()
	return analysis, nil
}

func (a *ChatAdapter) ExtractRoyaltyRules(ctx context.Context, text string) (*RuleExtraction, error) {
	start := a.now()
	p, err := ExtractionPrompt(text)
	if err != nil {
		return nil, err
	}
	out, err := a.client.Complete(ctx, OpExtract, p)
	if err != nil {
		return nil, err
	}
	extraction, err := ParseExtraction(a.schemas, out, a.now().Sub(start))
	if err != nil {
		return nil, badOutput(a.Name(), OpExtract, err)
	}
	extraction.Provider = a.Name()
	return extraction, nil
}

func (a *ChatAdapter) ValidateMatch(ctx context.Context, req MatchValidationRequest) (*MatchValidation, error) {
	p, err := ValidationPrompt(req)
	if err != nil {
		return nil, err
	}
	out, err := a.client.Complete(ctx, OpValidate, p)
	if err != nil {
		return nil, err
	}
	v, err := ParseValidation(a.schemas, out, req.TransactionRef)
	if err != nil {
		return nil, badOutput(a.Name(), OpValidate, err)
	}
	return v, nil
}
