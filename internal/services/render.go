package services

import (
	"strings"
	"time"

	"marketbrief/backend-go/internal/models"
)

const (
	skillVersion    = "2.0"
	maxCarouselSize = 10
	emptyCardText   = "데이터를 불러오지 못했습니다."
)

// FormatLine renders one row as "label\nvalue ▲1.23 (+0.10%)".
func FormatLine(r models.Row) string {
	var sb strings.Builder
	sb.WriteString(r.Label)
	sb.WriteString("\n")
	sb.WriteString(r.Value)
	sb.WriteString(" ")
	sb.WriteString(changeGlyph(r.Change))
	sb.WriteString(absChange(r.Change))
	if pct := strings.TrimSpace(r.Percent); pct != "" {
		sb.WriteString(" (")
		sb.WriteString(pct)
		sb.WriteString(")")
	}
	return sb.String()
}

func BasicCard(c models.Card) models.BasicCard {
	lines := make([]string, 0, len(c.Rows))
	for _, r := range c.Rows {
		lines = append(lines, FormatLine(r))
	}
	desc := strings.TrimSpace(strings.Join(lines, "\n\n"))
	if desc == "" {
		desc = emptyCardText
	}
	card := models.BasicCard{Title: c.Title, Description: desc}
	if c.ButtonLabel != "" && c.ButtonURL != "" {
		card.Buttons = []models.Button{{Action: "webLink", Label: c.ButtonLabel, WebLinkURL: c.ButtonURL}}
	}
	return card
}

// RenderSkill wraps the cards into a carousel followed by an update stamp.
// maxCards is clamped to the platform limit of 10.
func RenderSkill(cards []models.Card, now time.Time, maxCards int) models.SkillResponse {
	if maxCards <= 0 || maxCards > maxCarouselSize {
		maxCards = maxCarouselSize
	}
	if len(cards) > maxCards {
		cards = cards[:maxCards]
	}
	items := make([]models.BasicCard, 0, len(cards))
	for _, c := range cards {
		items = append(items, BasicCard(c))
	}

	return models.SkillResponse{
		Version: skillVersion,
		Template: models.SkillTemplate{
			Outputs: []models.SkillOutput{
				{Carousel: &models.Carousel{Type: "basicCard", Items: items}},
				{SimpleText: &models.SimpleText{Text: "업데이트: " + now.Format("2006-01-02 15:04")}},
			},
		},
	}
}
