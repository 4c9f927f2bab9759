package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"marketbrief/backend-go/internal/models"
	"marketbrief/backend-go/internal/services"
)

const maxSkillBody = 64 << 10

// ExchangeRate answers the skill webhook. The body is optional and only read
// for logging; the response is always 200 with a populated carousel.
func (a *API) ExchangeRate(w http.ResponseWriter, r *http.Request) {
	payload := readSkillPayload(r)
	a.log.Debug().
		Str("utterance", payload.UserRequest.Utterance).
		Str("user", payload.UserRequest.User.ID).
		Msg("skill request")

	ctx, cancel := timeboxed(r, a.cfg.ResponseDeadline())
	defer cancel()

	cards := a.board.Cards(ctx)
	resp := services.RenderSkill(cards, a.now().In(a.loc), a.cfg.MaxCards)
	writeJSON(w, http.StatusOK, resp)
}

func readSkillPayload(r *http.Request) models.SkillPayload {
	var p models.SkillPayload
	if r.Body == nil {
		return p
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSkillBody))
	if err != nil || len(body) == 0 {
		return p
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return models.SkillPayload{}
	}
	return p
}
