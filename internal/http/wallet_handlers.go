package http

import (
	"context"
	"net/http"
	"time"

	"roamlotto/internal/logging"
)

// WalletHandler connects and disconnects the wallet session.
type WalletHandler struct {
	*Deps
}

// connectTimeout leaves room for the holder to answer the terminal prompt.
const connectTimeout = 2 * time.Minute

func (h *WalletHandler) connect(r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), connectTimeout)
	defer cancel()
	err := h.Session.Connect(ctx)
	if err != nil {
		logging.From(ctx).Info("http.connect", "err", err)
	}
	return err
}

func (h *WalletHandler) ConnectForm(w http.ResponseWriter, r *http.Request) {
	redirectHome(w, r, noticeFor(h.connect(r)))
}

func (h *WalletHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.connect(r); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buildState(r.Context(), h.Deps))
}

func (h *WalletHandler) DisconnectForm(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Disconnect(r.Context()); err != nil {
		logging.From(r.Context()).Warn("http.disconnect", "err", err)
	}
	redirectHome(w, r, "")
}

func (h *WalletHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Disconnect(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WalletHandler) dismiss(r *http.Request, what string) {
	switch what {
	case "network":
		h.Session.DismissNetworkError(r.Context())
	case "transaction":
		h.Gateway.DismissError()
	default:
		h.Session.DismissNetworkError(r.Context())
		h.Gateway.DismissError()
	}
}

func (h *WalletHandler) DismissForm(w http.ResponseWriter, r *http.Request) {
	h.dismiss(r, r.FormValue("what"))
	redirectHome(w, r, "")
}

func (h *WalletHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.dismiss(r, r.URL.Query().Get("what"))
	w.WriteHeader(http.StatusNoContent)
}
