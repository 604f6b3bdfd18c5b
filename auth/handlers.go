package auth

import (
	"context"
	"errors"
	"haters/domain"
	"net/http"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingTokenStr          = "missing-token"
	ErrExpiredTokenStr          = "expired-token"
	ErrBadTokenStr              = "bad-token"
	ErrServerTimeoutStr         = "server-timeout"
	ErrInvalidRequestFormatStr  = "bad-request-format"
	ErrInvalidCredentialsStr    = "invalid-credentials"
	ErrUnknownStr               = "unknown-error"
	ErrUsernameAlreadyExistsStr = "username-already-exists"
	ErrWeakPasswordStr          = "weak-password"
	ErrPasswordTooLongStr       = "password-too-long"
	ErrInvalidUsernameFormatStr = "invalid-username-format"
	ErrInvalidGuestNameStr      = "invalid-guest-name"
	ErrAccountCreatedButNoToken = "account-created-but-no-token"
	ErrUserNotFoundStr          = "user-not-found"
)

type authHandler struct {
	authService  AuthService
	cookieMaxAge time.Duration
}

func NewAuthHandler(service AuthService, cookieMaxAge time.Duration) *authHandler {
	return &authHandler{authService: service, cookieMaxAge: cookieMaxAge}
}

// redactToken keeps the header, the claims and the first characters of the
// signature so a token can be recognised in logs without being replayable.
func redactToken(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return token
	}
	sig := []rune(parts[2])
	if len(sig) >= 10 {
		parts[2] = string(sig[:10]) + strings.Repeat("*", len(sig)-10)
	}
	return strings.Join(parts, ".")
}

func withMemStats(e *zerolog.Event) *zerolog.Event {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return e.Uint64("mem_alloc_mb", (mem.Alloc/1024)/1024).Uint64("mem_sys_mb", (mem.Sys/1024)/1024)
}

func (ah *authHandler) setTokenCookie(ctx *gin.Context, token string) {
	ctx.SetSameSite(http.SameSiteNoneMode)
	ctx.SetCookie("token", token, int(ah.cookieMaxAge.Seconds()), "/", "", true, true)
}

func (ah *authHandler) RequireAuthMiddleware(trollTime time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := ctx.Cookie("token")
		if err != nil {
			ctx.String(http.StatusUnauthorized, ErrMissingTokenStr)
			ctx.Abort()
			return
		}

		identity, err := ah.authService.VerifyToken(token)
		if err != nil {
			logger := log.With().
				Str("ip", ctx.ClientIP()).
				Str("user_agent", ctx.Request.UserAgent()).
				Str("token", redactToken(token)).
				Logger()

			switch {
			case errors.Is(err, domain.ErrInvalidSigningAlg),
				errors.Is(err, domain.ErrInvalidTokenSignature),
				errors.Is(err, domain.ErrCorruptedToken):

				logger.Warn().Err(err).Msg("RequireAuthMiddleware: suspicious token attempt")
				time.Sleep(trollTime)
				ctx.Status(http.StatusInternalServerError)
				ctx.Abort()

			case errors.Is(err, domain.ErrExpiredToken):
				logger.Info().Msg("RequireAuthMiddleware: token expired")
				ctx.String(http.StatusUnauthorized, ErrExpiredTokenStr)
				ctx.Abort()

			default:
				logger.Error().Err(err).Msg("RequireAuthMiddleware: internal auth error")
				ctx.String(http.StatusUnauthorized, ErrUnknownStr)
				ctx.Abort()
			}
			return
		}

		ctx.Set("id", identity.Id)
		ctx.Set("name", identity.Name)
		ctx.Set("guest", identity.IsGuest)
		ctx.Next()
	}
}

func (ah *authHandler) LoginHandler(ctx *gin.Context) {
	var loginCredentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := ctx.ShouldBindJSON(&loginCredentials); err != nil {
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormatStr)
		ctx.Abort()
		return
	}

	token, err := ah.authService.Login(ctx.Request.Context(), loginCredentials.Username, loginCredentials.Password)
	if err != nil {
		logger := log.With().
			Str("ip", ctx.ClientIP()).
			Str("user_agent", ctx.Request.UserAgent()).
			Str("username", loginCredentials.Username).
			Logger()

		switch {
		case errors.Is(err, ErrIncorrectPassword), errors.Is(err, domain.ErrUserNotFound):
			ctx.String(http.StatusUnauthorized, ErrInvalidCredentialsStr)

		case errors.Is(err, context.DeadlineExceeded):
			ctx.String(http.StatusGatewayTimeout, ErrServerTimeoutStr)

		case errors.Is(err, context.Canceled):
			ctx.Status(499)

		case errors.Is(err, domain.UnexpectedDatabaseError):
			logger.Error().Err(err).Msg("Login: Database returned an unexpected error")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)

		case errors.Is(err, domain.UnexpectedPasswordHashComparisonError):
			withMemStats(logger.Error().Err(err)).
				Int("password_len", utf8.RuneCountInString(loginCredentials.Password)).
				Msg("Login: Hashing comparison error")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)

		case errors.Is(err, domain.UnexpectedTokenGenerationError):
			logger.Error().Err(err).Msg("Login: Token generation error")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)

		default:
			withMemStats(logger.Error().Err(err)).Msg("Login: Unknown unexpected error")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		ctx.Abort()
		return
	}

	ah.setTokenCookie(ctx, token)
	ctx.Status(http.StatusOK)
}

func (ah *authHandler) SignupHandler(ctx *gin.Context) {
	var signupCredentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := ctx.ShouldBindJSON(&signupCredentials); err != nil {
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormatStr)
		ctx.Abort()
		return
	}

	token, err := ah.authService.Signup(ctx.Request.Context(), signupCredentials.Username, signupCredentials.Password)
	if err != nil {
		logger := log.With().
			Str("ip", ctx.ClientIP()).
			Str("user_agent", ctx.Request.UserAgent()).
			Str("username", signupCredentials.Username).
			Logger()

		switch {
		case errors.Is(err, domain.ErrDuplicateUsername):
			ctx.String(http.StatusConflict, ErrUsernameAlreadyExistsStr)

		case errors.Is(err, ErrWeakPassword):
			ctx.String(http.StatusBadRequest, ErrWeakPasswordStr)

		case errors.Is(err, ErrPasswordTooLong):
			ctx.String(http.StatusBadRequest, ErrPasswordTooLongStr)

		case errors.Is(err, ErrInvalidUsernameFormat):
			ctx.String(http.StatusBadRequest, ErrInvalidUsernameFormatStr)

		case errors.Is(err, context.DeadlineExceeded):
			ctx.String(http.StatusGatewayTimeout, ErrServerTimeoutStr)

		case errors.Is(err, context.Canceled):
			ctx.Status(499)

		case errors.Is(err, domain.UnexpectedDatabaseError):
			logger.Error().Err(err).Msg("Signup: Database returned an unexpected error")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)

		case errors.Is(err, domain.UnexpectedPasswordHashingError):
			withMemStats(logger.Error().Err(err)).
				Int("password_len", utf8.RuneCountInString(signupCredentials.Password)).
				Msg("Signup: Password hashing error")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)

		case errors.Is(err, domain.UnexpectedTokenGenerationError):
			logger.Error().Err(err).Msg("Signup: Token generation error")
			ctx.String(http.StatusInternalServerError, ErrAccountCreatedButNoToken)

		default:
			withMemStats(logger.Error().Err(err)).Msg("Signup: Unknown unexpected error")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		ctx.Abort()
		return
	}

	ah.setTokenCookie(ctx, token)
	ctx.Status(http.StatusCreated)
}

// GuestHandler hands out a guest token. Guests have no account row and their
// token carries the chosen name.
func (ah *authHandler) GuestHandler(ctx *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}

	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormatStr)
		ctx.Abort()
		return
	}

	token, err := ah.authService.Guest(body.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidGuestName):
			ctx.String(http.StatusBadRequest, ErrInvalidGuestNameStr)
		default:
			log.Error().Err(err).Str("ip", ctx.ClientIP()).Msg("Guest: Token generation error")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		ctx.Abort()
		return
	}

	ah.setTokenCookie(ctx, token)
	ctx.Status(http.StatusCreated)
}

func (ah *authHandler) RefreshSessionHandler(ctx *gin.Context) {
	token, err := ctx.Cookie("token")
	if err != nil {
		ctx.String(http.StatusUnauthorized, "unauthenticated")
		return
	}

	identity, err := ah.authService.VerifyToken(token)
	if err != nil {
		log.Warn().
			Err(err).
			Str("ip", ctx.ClientIP()).
			Str("user_agent", ctx.Request.UserAgent()).
			Str("token", redactToken(token)).
			Msg("Refresh: Invalid token provided")
		ctx.String(http.StatusUnauthorized, ErrBadTokenStr)
		return
	}

	newToken, err := ah.authService.GenerateToken(identity)
	if err != nil {
		log.Error().
			Err(err).
			Str("ip", ctx.ClientIP()).
			Str("user_id", identity.Id).
			Msg("Refresh: Failed to generate new token")
		ctx.Status(http.StatusInternalServerError)
		return
	}

	ah.setTokenCookie(ctx, newToken)
	ctx.Status(http.StatusOK)
}

func (ah *authHandler) LogoutHandler(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteNoneMode)
	ctx.SetCookie("token", "", -1, "/", "", true, true)
}

// ProfileHandler returns the public stats of a registered user.
func (ah *authHandler) ProfileHandler(ctx *gin.Context) {
	user, err := ah.authService.Profile(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			ctx.String(http.StatusNotFound, ErrUserNotFoundStr)
		case errors.Is(err, context.DeadlineExceeded):
			ctx.String(http.StatusGatewayTimeout, ErrServerTimeoutStr)
		case errors.Is(err, context.Canceled):
			ctx.Status(499)
		default:
			log.Error().Err(err).Str("user_id", ctx.Param("id")).Msg("Profile: Database returned an unexpected error")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		ctx.Abort()
		return
	}

	games := user.Games
	if games == nil {
		games = []string{}
	}
	ctx.JSON(http.StatusOK, gin.H{
		"id":           user.Id,
		"username":     user.Username,
		"total_points": user.TotalPoints,
		"total_wins":   user.TotalWins,
		"games":        games,
	})
}
