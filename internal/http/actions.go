package http

import (
	"net/http"

	"roamlotto/internal/gateway"
	"roamlotto/internal/logging"
)

// ActionHandler submits enter, draw and getPaid. The wallet confirmation
// and the receipt wait happen in the background on BaseCtx; clients follow
// progress through the dashboard or /api/v1/state.
type ActionHandler struct {
	*Deps
}

type actionResp struct {
	Kind   gateway.Kind `json:"kind"`
	Status string       `json:"status"`
}

func (h *ActionHandler) start(r *http.Request) (gateway.Kind, error) {
	kind, err := gateway.ParseKind(r.PathValue("kind"))
	if err != nil {
		return "", err
	}
	// the action outlives the request but keeps its log attributes
	log := logging.From(r.Context())
	ctx := logging.WithLogger(h.BaseCtx, log)
	done, err := h.Gateway.Start(ctx, kind)
	if err != nil {
		return kind, err
	}
	h.actions.Add(1)
	go func() {
		defer h.actions.Done()
		out := <-done
		log.Debug("http.action.finished", "action", string(kind), "phase", string(out.Phase))
	}()
	return kind, nil
}

func (h *ActionHandler) Form(w http.ResponseWriter, r *http.Request) {
	if _, err := h.start(r); err != nil {
		if statusFor(err) == http.StatusNotFound {
			http.NotFound(w, r)
			return
		}
		redirectHome(w, r, noticeFor(err))
		return
	}
	redirectHome(w, r, "submitted")
}

func (h *ActionHandler) API(w http.ResponseWriter, r *http.Request) {
	kind, err := h.start(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, actionResp{Kind: kind, Status: "submitted"})
}
