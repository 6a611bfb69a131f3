package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/shanehull/filingscraper/internal/types"
)

type fakeGenerator struct {
	text   string
	err    error
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}}},
		},
	}, nil
}

var cst = time.FixedZone("CST", 8*60*60)

func announcements() []types.Announcement {
	return []types.Announcement{
		{Title: "关于2023年度利润分配方案的公告", PublishedAt: time.Date(2024, 5, 20, 9, 0, 0, 0, cst)},
		{Title: "2024年第一季度报告", PublishedAt: time.Date(2024, 4, 26, 18, 0, 0, 0, cst)},
	}
}

func TestOverview(t *testing.T) {
	gen := &fakeGenerator{text: `{"overview":["Dividend plan approved","Q1 results published"]}`}
	s := newSummarizer(gen, "gemini-2.5-flash", cst)

	bullets, err := s.Overview(context.Background(), "贵州茅台", announcements())
	require.NoError(t, err)

	assert.Equal(t, []string{"Dividend plan approved", "Q1 results published"}, bullets)
	assert.Equal(t, "gemini-2.5-flash", gen.model)
	assert.Contains(t, gen.prompt, "Company: 贵州茅台")
	assert.Contains(t, gen.prompt, "- [2024-05-20] 关于2023年度利润分配方案的公告")
	assert.Contains(t, gen.prompt, "- [2024-04-26] 2024年第一季度报告")
	assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
	assert.Equal(t, []string{"overview"}, gen.config.ResponseSchema.Required)
}

func TestOverviewNoAnnouncements(t *testing.T) {
	gen := &fakeGenerator{}
	bullets, err := newSummarizer(gen, "m", cst).Overview(context.Background(), "X", nil)

	assert.NoError(t, err)
	assert.Nil(t, bullets)
	assert.Empty(t, gen.model)
}

func TestOverviewErrors(t *testing.T) {
	_, err := newSummarizer(&fakeGenerator{err: errors.New("quota")}, "m", cst).
		Overview(context.Background(), "X", announcements())
	assert.ErrorContains(t, err, "gemini API call failed")

	_, err = newSummarizer(&fakeGenerator{text: "not json"}, "m", cst).
		Overview(context.Background(), "X", announcements())
	assert.ErrorContains(t, err, "failed to unmarshal")
}

func TestNewSummarizerRequiresKey(t *testing.T) {
	_, err := NewSummarizer(context.Background(), "", "m", nil)
	assert.Error(t, err)
}
