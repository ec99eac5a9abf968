// Package bearer is fiber middleware that resolves a bearer token to a
// membership principal before any protected handler runs.
package bearer

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	membership "github.com/goliatone/go-membership"
)

var (
	defaultTokenLookup         = "header:" + fiber.HeaderAuthorization
	ErrTokenMissingOrMalformed = errors.New("missing or malformed bearer token")
)

// Authorizer mirrors membership.Auther.Authorize.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*membership.Principal, error)
}

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler
	// Authorizer is required
	Authorizer  Authorizer
	ContextKey  string
	TokenLookup string
	AuthScheme  string
	// RequiredRole, when set, is checked against the live identity.
	RequiredRole membership.RoleName
}

func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := extractRawToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		principal, err := cfg.Authorizer.Authorize(c.UserContext(), raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if cfg.RequiredRole != "" {
			if err := membership.RequireRole(principal.Identity, cfg.RequiredRole); err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		c.Locals(cfg.ContextKey, principal)
		c.SetUserContext(membership.WithPrincipalContext(c.UserContext(), principal))

		return cfg.SuccessHandler(c)
	}
}

// RequireRole rejects requests whose principal does not hold role. It must
// run after New.
func RequireRole(role membership.RoleName, config ...Config) fiber.Handler {
	cfg := defaultsWithoutAuthorizer(config...)

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFrom(c, cfg.ContextKey)
		if !ok {
			return cfg.ErrorHandler(c, ErrTokenMissingOrMalformed)
		}
		if err := membership.RequireRole(principal.Identity, role); err != nil {
			return cfg.ErrorHandler(c, err)
		}
		return c.Next()
	}
}

// PrincipalFrom returns the principal stored by New.
func PrincipalFrom(c *fiber.Ctx, key string) (*membership.Principal, bool) {
	if key == "" {
		key = "principal"
	}
	p, ok := c.Locals(key).(*membership.Principal)
	return p, ok && p != nil
}

func GetDefaultConfig(config ...Config) Config {
	cfg := defaultsWithoutAuthorizer(config...)
	if cfg.Authorizer == nil {
		panic("MEMBERSHIP: bearer middleware configuration: Authorizer is required.")
	}
	return cfg
}

func defaultsWithoutAuthorizer(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "principal"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

// DefaultErrorHandler renders err as JSON using its go-errors code.
func DefaultErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusUnauthorized
	body := fiber.Map{
		"text_code": membership.TextCodeTokenInvalid,
		"message":   "Invalid or expired token",
	}

	var richErr *goerrors.Error
	switch {
	case errors.Is(err, ErrTokenMissingOrMalformed):
		body["message"] = ErrTokenMissingOrMalformed.Error()
	case goerrors.As(err, &richErr):
		if richErr.Code != 0 {
			status = richErr.Code
		}
		body["text_code"] = richErr.TextCode
		body["message"] = richErr.Message
		body["category"] = richErr.Category
	default:
		status = fiber.StatusInternalServerError
		body["text_code"] = "INTERNAL"
		body["message"] = "internal error"
	}

	return c.Status(status).JSON(fiber.Map{"error": body})
}

func GetExtractors(tokenLookup string, authScheme string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	// header:Authorization,cookie:token,query:access_token
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

type TokenExtractor func(c *fiber.Ctx) (string, error)

func extractRawToken(c *fiber.Ctx, extractors []TokenExtractor) (string, error) {
	err := ErrTokenMissingOrMalformed
	for _, extractor := range extractors {
		var raw string
		raw, err = extractor(c)
		if raw != "" && err == nil {
			return raw, nil
		}
	}
	return "", err
}

func tokenFromHeader(header string, authScheme string) TokenExtractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrTokenMissingOrMalformed
	}
}

func tokenFromQuery(param string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func tokenFromCookie(name string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}
