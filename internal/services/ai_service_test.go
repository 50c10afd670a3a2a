package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGenAIModel struct {
	mock.Mock
}

func (m *MockGenAIModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, parts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*genai.GenerateContentResponse), args.Error(1)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []genai.Part{genai.Text(text)},
				},
			},
		},
	}
}

func TestSummarizeNotesSendsNotesInPrompt(t *testing.T) {
	mockModel := new(MockGenAIModel)
	svc := NewAIServiceWithModel(mockModel)

	mockModel.On("GenerateContent", mock.Anything, mock.MatchedBy(func(parts []genai.Part) bool {
		if len(parts) != 1 {
			return false
		}
		prompt, ok := parts[0].(genai.Text)
		return ok && strings.Contains(string(prompt), "met Dr. Aydin at ISHRS")
	})).Return(textResponse("- Met Dr. Aydin"), nil).Once()

	summary, err := svc.SummarizeNotes(context.Background(), "met Dr. Aydin at ISHRS, follow up in May")
	require.NoError(t, err)
	assert.Equal(t, "- Met Dr. Aydin", summary)
	mockModel.AssertExpectations(t)
}

func TestDraftEmailIncludesSurgeonAndClinic(t *testing.T) {
	mockModel := new(MockGenAIModel)
	svc := NewAIServiceWithModel(mockModel)

	mockModel.On("GenerateContent", mock.Anything, mock.MatchedBy(func(parts []genai.Part) bool {
		if len(parts) != 1 {
			return false
		}
		prompt, ok := parts[0].(genai.Text)
		return ok && strings.Contains(string(prompt), "Dr. Rossi") && strings.Contains(string(prompt), "Milan Hair Clinic")
	})).Return(textResponse("Dear Dr. Rossi, ..."), nil).Once()

	email, err := svc.DraftEmail(context.Background(), "Dr. Rossi", "Milan Hair Clinic", "")
	require.NoError(t, err)
	assert.Equal(t, "Dear Dr. Rossi, ...", email)
	mockModel.AssertExpectations(t)
}

func TestAnalyzeSurgeonPropagatesModelError(t *testing.T) {
	mockModel := new(MockGenAIModel)
	svc := NewAIServiceWithModel(mockModel)

	mockModel.On("GenerateContent", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("model overloaded")).Once()

	_, err := svc.AnalyzeSurgeon(context.Background(), "FUE specialist, 12 years")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestGenerateRejectsEmptyResponse(t *testing.T) {
	mockModel := new(MockGenAIModel)
	svc := NewAIServiceWithModel(mockModel)

	mockModel.On("GenerateContent", mock.Anything, mock.Anything).
		Return(&genai.GenerateContentResponse{}, nil).Once()

	_, err := svc.SummarizeNotes(context.Background(), "notes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}
