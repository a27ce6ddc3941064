package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/apperror"
)

func (that *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	that.writeJSON(w, http.StatusOK, that.client.View())
}

// handleClick - the click is only queued, the response carries the view at that moment.
func (that *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		that.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid cell index: %w", err))
		return
	}

	that.accept(w, that.client.Click(index))
}

func (that *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	move, err := strconv.Atoi(mux.Vars(r)["move"])
	if err != nil {
		that.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", apperror.ErrInvalidMoveIndex, err))
		return
	}

	that.accept(w, that.client.Jump(move))
}

func (that *Server) handleDismissNotice(w http.ResponseWriter, _ *http.Request) {
	that.accept(w, that.client.DismissNotice())
}

func (that *Server) accept(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		that.writeJSON(w, http.StatusAccepted, that.client.View())
	case errors.Is(err, apperror.ErrGameNotCreated), errors.Is(err, apperror.ErrCoordinatorStopped):
		that.writeError(w, http.StatusServiceUnavailable, err)
	default:
		that.logger.Error("failed to submit input", "error", err)
		that.writeError(w, http.StatusInternalServerError, err)
	}
}
