package echo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

type countingHandler struct{ calls int }

func (h *countingHandler) HandleReturn(_ context.Context, u *url.URL) (*url.URL, error) {
	h.calls++
	return atscheck.StripPaymentParams(u), nil
}

type staticSession atscheck.Session

func (s staticSession) Current() atscheck.Session { return atscheck.Session(s) }

func TestPaymentReturn(t *testing.T) {
	h := &countingHandler{}
	e := echo.New()
	e.Use(PaymentReturn(Config{Handler: h}))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "home") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?payment=success&plan=Premium&session_id=abc123", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, 1, h.calls)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.calls)
}

func TestRequireSession(t *testing.T) {
	e := echo.New()
	e.GET("/anon", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RequireSession(staticSession{}))
	e.GET("/user", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		RequireSession(staticSession{Username: "alice", Credential: "tok"}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anon", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
