// Package http provides net/http middleware that consumes payment returns
// and guards routes needing a signed-in user.
package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Config holds payment return middleware configuration
type Config struct {
	// Handler confirms the payment carried by the return URL (required)
	Handler atscheck.ReturnHandler

	// StatusCode is the redirect status (default: 303 See Other)
	StatusCode int

	// OnError is called when confirmation fails; the browser is redirected anyway.
	// If nil, errors are logged.
	OnError func(r *http.Request, err error)

	// Logger is used for structured logging (default: NoopLogger)
	Logger atscheck.Logger
}

// PaymentReturn creates middleware that consumes payment return parameters on
// GET requests and redirects to the same URL without them, so a reload cannot
// confirm twice. Other requests pass through.
func PaymentReturn(config Config) func(http.Handler) http.Handler {
	if config.StatusCode == 0 {
		config.StatusCode = http.StatusSeeOther
	}
	if config.Logger == nil {
		config.Logger = &atscheck.NoopLogger{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || !atscheck.HasPaymentParams(r.URL) {
				next.ServeHTTP(w, r)
				return
			}

			target, err := Consume(r.Context(), config.Handler, r.URL)
			if err != nil {
				if config.OnError != nil {
					config.OnError(r, err)
				} else {
					config.Logger.Warn("payment return not confirmed", atscheck.F("error", err))
				}
			}
			http.Redirect(w, r, target, config.StatusCode)
		})
	}
}

// Consume runs handler on u and returns the relative redirect target.
// The target never carries payment parameters, even on error.
func Consume(ctx context.Context, handler atscheck.ReturnHandler, u *url.URL) (string, error) {
	clean, err := handler.HandleReturn(ctx, u)
	if clean == nil {
		clean = atscheck.StripPaymentParams(u)
	}
	return Relative(clean), err
}

// Relative drops scheme and host from u, keeping path, query and fragment.
// Leading slashes collapse to one so the target never names another host.
func Relative(u *url.URL) string {
	rel := url.URL{Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery, Fragment: u.Fragment}
	if p := "/" + strings.TrimLeft(u.Path, "/\\"); p != u.Path {
		rel.Path = p
		rel.RawPath = ""
	}
	return rel.String()
}

// RequireSession rejects requests with 401 when nobody is signed in.
// If onUnauthorized is nil, the backend's {"error"} payload is written.
func RequireSession(sessions atscheck.SessionView, onUnauthorized http.HandlerFunc) func(http.Handler) http.Handler {
	if onUnauthorized == nil {
		onUnauthorized = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Please login to continue."}` + "\n"))
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.Current().Authenticated() {
				onUnauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
