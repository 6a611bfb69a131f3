package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/shanehull/filingscraper/internal/types"
)

const systemInstruction = `
# [INSTRUCTION]

You are a financial analyst preparing a short briefing on a listed company before its periodic reports are read in full.

You receive the titles of the company's most recent exchange disclosures, newest first. Summarise what has happened at the company in 3 to 5 concise bullet points.

- Group related disclosures (for example a board resolution and the report it approves) into one point.
- Prefer corporate actions, results, dividends, financing, litigation and major personnel changes over routine governance notices.
- Use only what the titles state. Do not invent figures or dates.
- Write each bullet in the same language as the titles.
`

var userPromptTemplate = `
Company: %s

Recent disclosures:
%s
`

func buildUserPrompt(stockName string, anns []types.Announcement, loc *time.Location) string {
	lines := make([]string, 0, len(anns))
	for _, a := range anns {
		date := "unknown date"
		if !a.PublishedAt.IsZero() {
			date = a.PublishedAt.In(loc).Format("2006-01-02")
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", date, a.Title))
	}
	return fmt.Sprintf(userPromptTemplate, stockName, strings.Join(lines, "\n"))
}
