package api

import (
	"net/http"

	"go.uber.org/zap"

	"livepoll/internal/broadcast"
	"livepoll/internal/metrics"
)

// @Summary     Live tally updates
// @Description Websocket. Send {"type":"joinPoll","pollId":"..."} to receive resultsUpdated messages.
// @Tags        live
// @Success     101
// @Router      /ws [get]
func (h *Handler) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	metrics.WSConnected()
	defer metrics.WSDisconnected()

	broadcast.NewClient(conn, h.hub, h.log).Run()
}
