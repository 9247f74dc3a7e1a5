package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

type recordingHandler struct {
	seen []string
	err  error
}

func (h *recordingHandler) HandleReturn(_ context.Context, u *url.URL) (*url.URL, error) {
	h.seen = append(h.seen, u.String())
	return atscheck.StripPaymentParams(u), h.err
}

type staticSession atscheck.Session

func (s staticSession) Current() atscheck.Session { return atscheck.Session(s) }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestPaymentReturn_RedirectsWithoutParams(t *testing.T) {
	h := &recordingHandler{}
	mw := PaymentReturn(Config{Handler: h})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/?payment=success&plan=Premium&session_id=abc123&ref=mail", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?ref=mail", rec.Header().Get("Location"))
	require.Len(t, h.seen, 1)

	// Following the redirect no longer carries payment parameters
	follow := httptest.NewRequest(http.MethodGet, rec.Header().Get("Location"), nil)
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, follow)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, h.seen, 1)
}

func TestPaymentReturn_ErrorStillRedirects(t *testing.T) {
	h := &recordingHandler{err: errors.New("verification failed")}
	var got error
	mw := PaymentReturn(Config{
		Handler: h,
		OnError: func(_ *http.Request, err error) { got = err },
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/dashboard?payment=success&plan=Pro&session_id=cs_1", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.EqualError(t, got, "verification failed")
}

func TestPaymentReturn_PassesThrough(t *testing.T) {
	h := &recordingHandler{}
	mw := PaymentReturn(Config{Handler: h})(okHandler())

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/?ref=mail", nil),
		httptest.NewRequest(http.MethodPost, "/?payment=success&plan=Pro&session_id=cs_1", nil),
	} {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Empty(t, h.seen)
}

func TestRelative(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"absolute URL", "https://app.example.com?ref=1#top", "/?ref=1#top"},
		{"path kept", "https://app.example.com/dashboard?ref=1", "/dashboard?ref=1"},
		{"protocol relative path", "https://app.example.com//evil.example.com/phish", "/evil.example.com/phish"},
		{"backslash path", "https://app.example.com/\\evil.example.com/phish", "/evil.example.com/phish"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Relative(u))
		})
	}
}

func TestPaymentReturn_StaysOnHost(t *testing.T) {
	h := &recordingHandler{}
	mw := PaymentReturn(Config{Handler: h})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "//evil.example.com/phish?payment=cancelled", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/evil.example.com/phish", rec.Header().Get("Location"))
}

func TestRequireSession(t *testing.T) {
	anon := RequireSession(staticSession{}, nil)(okHandler())
	rec := httptest.NewRecorder()
	anon.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Please login to continue."}`, rec.Body.String())

	signedIn := RequireSession(staticSession{Username: "alice", Credential: "tok"}, nil)(okHandler())
	rec = httptest.NewRecorder()
	signedIn.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
