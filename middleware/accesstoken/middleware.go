package accesstoken

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/learnhive/authcore/services/accesstoken"
)

const (
	UserIDKey = "_auth_user_id"
	ClaimsKey = "_auth_claims"
)

// RequireAccessToken enforces a bearer access token on the route. Pending
// two-factor tokens are rejected here; they are only good for finishing the
// 2FA step.
func RequireAccessToken(tokens *accesstoken.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Access token required")
			}

			claims, err := tokens.VerifyAccess(tokenString)
			if err != nil {
				switch err {
				case accesstoken.ErrExpiredToken:
					return echo.NewHTTPError(http.StatusUnauthorized, "Access token has expired")
				case accesstoken.ErrWrongTokenType:
					return echo.NewHTTPError(http.StatusForbidden, "Two-factor verification required")
				default:
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid access token")
				}
			}

			userID, err := claims.UserID()
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid access token")
			}

			c.Set(UserIDKey, userID)
			c.Set(ClaimsKey, claims)

			return next(c)
		}
	}
}

func GetUserID(c echo.Context) uint {
	if userID, ok := c.Get(UserIDKey).(uint); ok {
		return userID
	}
	return 0
}

func GetClaims(c echo.Context) *accesstoken.Claims {
	if claims, ok := c.Get(ClaimsKey).(*accesstoken.Claims); ok {
		return claims
	}
	return nil
}
