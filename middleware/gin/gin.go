// Package gin provides Gin middleware that consumes payment returns and
// guards routes needing a signed-in user.
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

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
	OnError func(c *gongin.Context, err error)
}

// PaymentReturn consumes payment return parameters on GET requests and
// redirects to the URL without them.
func PaymentReturn(config Config) gongin.HandlerFunc {
	if config.StatusCode == 0 {
		config.StatusCode = http.StatusSeeOther
	}
	return func(c *gongin.Context) {
		if c.Request.Method != http.MethodGet || !atscheck.HasPaymentParams(c.Request.URL) {
			c.Next()
			return
		}
		target, err := mwhttp.Consume(c.Request.Context(), config.Handler, c.Request.URL)
		if err != nil && config.OnError != nil {
			config.OnError(c, err)
		}
		c.Redirect(config.StatusCode, target)
		c.Abort()
	}
}

// RequireSession aborts with 401 when nobody is signed in
func RequireSession(sessions atscheck.SessionView) gongin.HandlerFunc {
	return func(c *gongin.Context) {
		if !sessions.Current().Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gongin.H{"error": "Please login to continue."})
			return
		}
		c.Next()
	}
}
