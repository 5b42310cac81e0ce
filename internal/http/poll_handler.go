package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"livepoll/internal/platform/apperr"
)

type createPollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type createPollResponse struct {
	PollID     string `json:"pollId"`
	ShareLink  string `json:"shareLink"`
	OwnerToken string `json:"ownerToken"`
}

// @Summary     Create a poll
// @Tags        polls
// @Accept      json
// @Produce     json
// @Param       request  body      createPollRequest  true  "Question and at least two options"
// @Success     201      {object}  createPollResponse
// @Failure     400      {object}  map[string]string  "invalid input"
// @Failure     429      {object}  map[string]string  "rate limited"
// @Failure     500      {object}  map[string]string  "server error"
// @Router      /api/polls/create [post]
func (h *Handler) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}

	p, err := h.pollSvc.Create(r.Context(), req.Question, req.Options)
	if err != nil {
		errorResponse(w, err)
		return
	}

	ttl := h.ownerTTL
	if ttl <= 0 {
		ttl = p.ExpiresAt.Sub(p.CreatedAt)
	}
	token, err := h.jwtMgr.GenerateOwner(p.ID, ttl)
	if err != nil {
		errorResponse(w, apperr.Internal("internal_error", "failed to issue owner token", err))
		return
	}

	h.log.Info("poll created", zap.String("poll_id", p.ID), zap.Int("options", len(p.Options)))
	writeJSON(w, http.StatusCreated, createPollResponse{
		PollID:     p.ID,
		ShareLink:  h.publicURL + "/poll/" + p.ID,
		OwnerToken: token,
	})
}

// @Summary     Get a poll
// @Tags        polls
// @Produce     json
// @Param       pollId  path      string  true  "Poll ID"
// @Success     200     {object}  poll.Poll
// @Failure     404     {object}  map[string]string  "not found"
// @Failure     500     {object}  map[string]string  "server error"
// @Router      /api/polls/{pollId} [get]
func (h *Handler) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	p, err := h.pollSvc.Get(r.Context(), chi.URLParam(r, "pollId"))
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// @Summary     Poll results
// @Tags        polls
// @Produce     json
// @Param       pollId  path      string  true  "Poll ID"
// @Success     200     {object}  poll.Results
// @Failure     404     {object}  map[string]string  "not found"
// @Failure     500     {object}  map[string]string  "server error"
// @Router      /api/polls/{pollId}/results [get]
func (h *Handler) handlePollResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.pollSvc.Results(r.Context(), chi.URLParam(r, "pollId"))
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// @Summary     Close a poll
// @Description Stops the poll from accepting votes. Closing a closed poll is a no-op.
// @Tags        polls
// @Security    BearerAuth
// @Produce     json
// @Param       pollId  path      string  true  "Poll ID"
// @Success     200     {object}  poll.Poll
// @Failure     401     {object}  map[string]string  "missing token"
// @Failure     403     {object}  map[string]string  "token does not own this poll"
// @Failure     404     {object}  map[string]string  "not found"
// @Failure     500     {object}  map[string]string  "server error"
// @Router      /api/polls/{pollId}/close [post]
func (h *Handler) handleClosePoll(w http.ResponseWriter, r *http.Request) {
	p, err := h.pollSvc.Close(r.Context(), chi.URLParam(r, "pollId"))
	if err != nil {
		errorResponse(w, err)
		return
	}
	h.voteSvc.NotifyClosed(p)
	writeJSON(w, http.StatusOK, p)
}
