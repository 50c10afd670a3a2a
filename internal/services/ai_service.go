package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// AIService runs the metered AI features against a generative model. It knows
// nothing about credits: callers debit through the ledger before invoking it.
type AIService struct {
	model GenAIModel
}

func NewAIService(client *genai.Client, modelName string) *AIService {
	return &AIService{model: client.GenerativeModel(modelName)}
}

// NewAIServiceWithModel wires an explicit model, used by tests.
func NewAIServiceWithModel(model GenAIModel) *AIService {
	return &AIService{model: model}
}

func (s *AIService) SummarizeNotes(ctx context.Context, notes string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following outreach notes about a hair-transplant surgeon into 3-5 concise bullet points. Keep names, dates and commitments.\n\nNotes:\n%s",
		notes,
	)
	return s.generate(ctx, prompt)
}

func (s *AIService) DraftEmail(ctx context.Context, surgeonName, clinic, notes string) (string, error) {
	var sb strings.Builder
	sb.WriteString("Draft a short, professional outreach email to a hair-transplant surgeon.\n")
	fmt.Fprintf(&sb, "Surgeon: %s\n", surgeonName)
	if clinic != "" {
		fmt.Fprintf(&sb, "Clinic: %s\n", clinic)
	}
	if notes != "" {
		fmt.Fprintf(&sb, "Context from previous contact:\n%s\n", notes)
	}
	sb.WriteString("Return only the email body, no subject line.")
	return s.generate(ctx, sb.String())
}

func (s *AIService) AnalyzeSurgeon(ctx context.Context, profile string) (string, error) {
	prompt := fmt.Sprintf(
		"Analyze this hair-transplant surgeon profile for outreach fit. Cover technique focus, publication activity and likely openness to partnership, each in one short paragraph.\n\nProfile:\n%s",
		profile,
	)
	return s.generate(ctx, prompt)
}

func (s *AIService) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return firstText(resp)
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("model returned no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			return string(text), nil
		}
	}
	return "", fmt.Errorf("model returned no text part")
}
