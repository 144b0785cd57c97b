package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"roamlotto/internal/gateway"
	"roamlotto/internal/logging"
	"roamlotto/internal/session"
	"roamlotto/internal/wallet"
)

type errorResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP. A user rejection is not an error
// to the caller and answers 204.
func statusFor(err error) int {
	switch {
	case wallet.IsUserRejected(err):
		return http.StatusNoContent
	case errors.Is(err, gateway.ErrBusy),
		errors.Is(err, gateway.ErrNotConnected),
		errors.Is(err, wallet.ErrNotConnected),
		errors.Is(err, session.ErrNetworkMismatch):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrNoAccounts), errors.Is(err, wallet.ErrUnknownAccount):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	msg := err.Error()
	if status == http.StatusBadGateway {
		logging.From(r.Context()).Error("http.upstream", "err", err)
		msg = "wallet or chain unavailable"
	}
	writeJSON(w, status, errorResp{Error: msg})
}

// noticeFor picks the dashboard notice for a failed form post.
func noticeFor(err error) string {
	switch {
	case err == nil, wallet.IsUserRejected(err), errors.Is(err, session.ErrNetworkMismatch):
		return ""
	case errors.Is(err, gateway.ErrBusy):
		return "busy"
	case errors.Is(err, gateway.ErrNotConnected), errors.Is(err, wallet.ErrNotConnected):
		return "connect"
	default:
		return "unavailable"
	}
}
