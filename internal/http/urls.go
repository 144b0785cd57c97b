package http

import (
	"net/http"
	"net/url"
)

// notices are shown on the dashboard after a form post redirects back.
var notices = map[string]string{
	"busy":        "Another transaction is still pending.",
	"connect":     "Connect your wallet first.",
	"submitted":   "Transaction sent to your wallet for confirmation.",
	"unavailable": "The wallet is unavailable right now.",
	"slow":        "Too many requests, slow down.",
}

func noticeText(code string) string { return notices[code] }

func redirectHome(w http.ResponseWriter, r *http.Request, notice string) {
	target := "/"
	if notice != "" {
		target += "?" + url.Values{"notice": {notice}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
