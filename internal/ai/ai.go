/*
Package ai asks Gemini for a short overview of a company's recent disclosures.
*/
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/shanehull/filingscraper/internal/types"
)

type overviewResponse struct {
	Overview []string `json:"overview"`
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Summarizer produces digest overview bullets.
type Summarizer struct {
	model    string
	gen      generator
	location *time.Location
}

func NewSummarizer(ctx context.Context, apiKey, modelName string, loc *time.Location) (*Summarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newSummarizer(client.Models, modelName, loc), nil
}

func newSummarizer(gen generator, modelName string, loc *time.Location) *Summarizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Summarizer{model: modelName, gen: gen, location: loc}
}

func (s *Summarizer) Overview(ctx context.Context, stockName string, anns []types.Announcement) ([]string, error) {
	if len(anns) == 0 {
		return nil, nil
	}

	contents := []*genai.Content{
		{
			Parts: []*genai.Part{{Text: buildUserPrompt(stockName, anns, s.location)}},
			Role:  "user",
		},
	}

	resp, err := s.gen.GenerateContent(ctx, s.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema:   getResponseSchema(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	respText := resp.Text()

	var out overviewResponse
	if err := json.Unmarshal([]byte(respText), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gemini JSON response: %w. Raw text: %s", err, respText)
	}

	return out.Overview, nil
}

func getResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"overview": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "A list of 3-5 concise bullet points summarizing the recent disclosures.",
			},
		},
		Required: []string{"overview"},
	}
}
