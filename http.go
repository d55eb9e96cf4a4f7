package lifecycle

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// PrincipalLocalsKey is where the session middleware stores the
// authenticated principal id for downstream handlers.
const PrincipalLocalsKey = "lifecycle_principal"

type errorBody struct {
	Message  string         `json:"message"`
	TextCode string         `json:"text_code,omitempty"`
	Category string         `json:"category,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func asRichError(err error) *goerrors.Error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}
	return richErr
}

// statusForError maps lifecycle errors to HTTP status codes. Text codes
// take precedence; the category is the fallback for wrapped errors.
func statusForError(richErr *goerrors.Error) int {
	switch richErr.TextCode {
	case TextCodeInvalidTransition, TextCodeMissingReason, TextCodeEmptyPassword:
		return fiber.StatusBadRequest
	case TextCodeTerminalStatus, TextCodeConflict, TextCodeDuplicateUsername:
		return fiber.StatusConflict
	case TextCodeCredentialExpired, TextCodeInvalidCreds, TextCodeSessionExpired:
		return fiber.StatusUnauthorized
	case TextCodeRecordNotFound:
		return fiber.StatusNotFound
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// WriteError renders a lifecycle error as the JSON error envelope.
func WriteError(c router.Context, logger Logger, err error) error {
	if logger == nil {
		logger = defLogger{}
	}

	richErr := asRichError(err)

	logger.Info(
		"request error handler: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	return c.JSON(statusForError(richErr), errorResponse{Error: errorBody{
		Message:  richErr.Message,
		TextCode: richErr.TextCode,
		Category: string(richErr.Category),
		Metadata: richErr.Metadata,
	}})
}

// RequireActiveSession gates administrative routes on a live session. A
// valid bearer token is not enough: the guard reconciles inactivity
// against the clock, so a token held across the timeout still fails
// with SESSION_EXPIRED and the principal must re-authenticate.
func RequireActiveSession(tokens TokenService, guard SessionGuard, logger Logger) router.MiddlewareFunc {
	if logger == nil {
		logger = defLogger{}
	}

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			token := bearerToken(c.Header("Authorization"))
			if token == "" {
				return WriteError(c, logger, ErrInvalidCredentials)
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				return WriteError(c, logger, err)
			}

			ok, err := guard.IsValid(c.Context(), claims.PrincipalID)
			if err != nil {
				return WriteError(c, logger, err)
			}
			if !ok {
				return WriteError(c, logger, ErrSessionExpired)
			}

			// Every authenticated interaction counts as activity.
			if err := guard.Touch(c.Context(), claims.PrincipalID); err != nil {
				logger.Error("session touch: %v", err)
			}

			c.Locals(PrincipalLocalsKey, claims.PrincipalID)
			c.SetContext(WithPrincipalContext(c.Context(), claims.PrincipalID))

			return hf(c)
		}
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
