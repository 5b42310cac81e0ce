package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"livepoll/internal/domain/poll"
	"livepoll/internal/domain/vote"
	"livepoll/internal/identity"
	"livepoll/internal/metrics"
	"livepoll/internal/platform/apperr"
)

type voteRequest struct {
	OptionIndex *int `json:"optionIndex"`
}

type voteResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Tally   poll.Tally `json:"tally"`
}

type hasVotedResponse struct {
	HasVoted    bool `json:"hasVoted"`
	VotedOption *int `json:"votedOption"`
}

// @Summary     Vote for an option
// @Description Anonymous. The voter is identified by network origin and browser.
// @Tags        votes
// @Accept      json
// @Produce     json
// @Param       pollId   path      string       true  "Poll ID"
// @Param       request  body      voteRequest  true  "Zero-based option index"
// @Success     200      {object}  voteResponse
// @Failure     400      {object}  map[string]string  "invalid option or poll not active"
// @Failure     404      {object}  map[string]string  "not found"
// @Failure     409      {object}  map[string]string  "already voted"
// @Failure     429      {object}  map[string]string  "rate limited"
// @Failure     500      {object}  map[string]string  "server error"
// @Router      /api/votes/{pollId}/vote [post]
func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}
	if req.OptionIndex == nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "optionIndex is required", nil))
		return
	}

	tally, err := h.voteSvc.Submit(r.Context(), vote.Ballot{
		PollID:         chi.URLParam(r, "pollId"),
		OptionIndex:    *req.OptionIndex,
		Origin:         identity.ResolveOrigin(r),
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	})
	if err != nil {
		metrics.IncVote(mapError(err).Code)
		errorResponse(w, err)
		return
	}

	metrics.IncVote("accepted")
	writeJSON(w, http.StatusOK, voteResponse{
		Success: true,
		Message: "Vote recorded successfully",
		Tally:   tally,
	})
}

// @Summary     Check whether the caller already voted
// @Tags        votes
// @Produce     json
// @Param       pollId  path      string  true  "Poll ID"
// @Success     200     {object}  hasVotedResponse
// @Failure     404     {object}  map[string]string  "not found"
// @Failure     500     {object}  map[string]string  "server error"
// @Router      /api/votes/{pollId}/hasVoted [get]
func (h *Handler) handleHasVoted(w http.ResponseWriter, r *http.Request) {
	idx, err := h.voteSvc.HasVoted(r.Context(), chi.URLParam(r, "pollId"), identity.ResolveOrigin(r), r.UserAgent())
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hasVotedResponse{HasVoted: idx != nil, VotedOption: idx})
}
