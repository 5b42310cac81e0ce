package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"livepoll/internal/domain/poll"
	"livepoll/internal/domain/vote"
	"livepoll/internal/platform/apperr"
	"livepoll/internal/ratelimit"
)

func errorResponse(w http.ResponseWriter, err error) {
	appErr := mapError(err)
	if appErr.Server() {
		logger.Error("request failed", zap.String("code", appErr.Code), zap.Error(err))
	}
	if appErr.RetryAfter > 0 {
		secs := int(math.Ceil(appErr.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, appErr.StatusCode(), map[string]string{
		"error":   appErr.Code,
		"message": appErr.Message,
	})
}

func mapError(err error) *apperr.AppError {
	if err == nil {
		return apperr.Internal("internal_error", "internal server error", nil)
	}

	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var rlErr *ratelimit.Error
	if errors.As(err, &rlErr) {
		if rlErr.Kind == ratelimit.KindFine {
			return apperr.TooManyRequests("rapid_votes", "Too many rapid votes. Please slow down.", rlErr.RetryAfter, err)
		}
		return apperr.TooManyRequests("rate_limited", "Too many votes from this network. Please try again later.", rlErr.RetryAfter, err)
	}

	switch {
	case errors.Is(err, poll.ErrPollNotFound):
		return apperr.NotFound("poll_not_found", "Poll not found", err)
	case errors.Is(err, poll.ErrQuestionRequired),
		errors.Is(err, poll.ErrNotEnoughOptions),
		errors.Is(err, poll.ErrTooManyOptions),
		errors.Is(err, poll.ErrEmptyOption):
		return apperr.BadRequest("invalid_input", err.Error(), err)
	case errors.Is(err, vote.ErrAlreadyVoted):
		return apperr.Conflict("already_voted", "You have already voted in this poll", err)
	case errors.Is(err, vote.ErrPollInactive):
		return apperr.BadRequest("poll_not_active", "Poll is no longer active", err)
	case errors.Is(err, vote.ErrInvalidOption):
		return apperr.BadRequest("invalid_option", "Invalid option", err)
	default:
		return apperr.Internal("internal_error", http.StatusText(http.StatusInternalServerError), err)
	}
}
