// Package echo provides Echo middleware that consumes payment returns and
// guards routes needing a signed-in user.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	mwhttp "github.com/mihaimyh/atscheck/middleware/http"
	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// Config holds payment return middleware configuration
type Config struct {
	// Handler confirms the payment carried by the return URL (required)
	Handler atscheck.ReturnHandler

	// StatusCode is the redirect status (default: 303 See Other)
	StatusCode int

	// OnError is called when confirmation fails; the browser is redirected anyway
	OnError func(c echo.Context, err error)
}

// PaymentReturn consumes payment return parameters on GET requests and
// redirects to the URL without them.
func PaymentReturn(config Config) echo.MiddlewareFunc {
	if config.StatusCode == 0 {
		config.StatusCode = http.StatusSeeOther
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet || !atscheck.HasPaymentParams(req.URL) {
				return next(c)
			}
			target, err := mwhttp.Consume(req.Context(), config.Handler, req.URL)
			if err != nil && config.OnError != nil {
				config.OnError(c, err)
			}
			return c.Redirect(config.StatusCode, target)
		}
	}
}

// RequireSession responds 401 when nobody is signed in
func RequireSession(sessions atscheck.SessionView) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !sessions.Current().Authenticated() {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Please login to continue."})
			}
			return next(c)
		}
	}
}
