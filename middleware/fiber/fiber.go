// Package fiber provides Fiber middleware that consumes payment returns and
// guards routes needing a signed-in user.
package fiber

import (
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"

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
	OnError func(c *fiber.Ctx, err error)
}

// PaymentReturn consumes payment return parameters on GET requests and
// redirects to the URL without them.
func PaymentReturn(config Config) fiber.Handler {
	if config.StatusCode == 0 {
		config.StatusCode = fiber.StatusSeeOther
	}
	return func(c *fiber.Ctx) error {
		if c.Method() != http.MethodGet {
			return c.Next()
		}
		u, err := url.Parse(c.OriginalURL())
		if err != nil || !atscheck.HasPaymentParams(u) {
			return c.Next()
		}
		target, err := mwhttp.Consume(c.UserContext(), config.Handler, u)
		if err != nil && config.OnError != nil {
			config.OnError(c, err)
		}
		return c.Redirect(target, config.StatusCode)
	}
}

// RequireSession responds 401 when nobody is signed in
func RequireSession(sessions atscheck.SessionView) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !sessions.Current().Authenticated() {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Please login to continue."})
		}
		return c.Next()
	}
}
