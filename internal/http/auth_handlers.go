package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"roamlotto/internal/auth"
	"roamlotto/internal/http/middleware"
)

type AuthHandler struct {
	*Deps
}

func (h *AuthHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /login", h.LoginForm)
	mux.HandleFunc("POST /logout", h.LogoutForm)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
}

type loginReq struct {
	Password string `json:"password"`
}

var errTooManyAttempts = errors.New("too many attempts")

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, pw string) error {
	if !h.LoginLimiter.Allow(middleware.ClientIP(r)) {
		return errTooManyAttempts
	}
	token, err := h.Auth.Login(pw)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(h.Auth.TTL()),
	})
	return nil
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.Auth.Enabled() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		http.Error(w, "missing password", http.StatusBadRequest)
		return
	}
	switch err := h.login(w, r, req.Password); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, errTooManyAttempts):
		http.Error(w, "too many attempts", http.StatusTooManyRequests)
	default:
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}
}

func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if !h.Auth.Enabled() {
		redirectHome(w, r, "")
		return
	}
	switch err := h.login(w, r, r.FormValue("password")); {
	case err == nil:
		redirectHome(w, r, "")
	case errors.Is(err, errTooManyAttempts):
		http.Redirect(w, r, "/?login=slow", http.StatusSeeOther)
	default:
		http.Redirect(w, r, "/?login=bad", http.StatusSeeOther)
	}
}

func clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) LogoutForm(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	redirectHome(w, r, "")
}
