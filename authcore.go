// Package authcore is the authentication and session-security core of the
// LearnHive platform: credential verification, access/refresh token
// lifecycle, per-device sessions, login rate limiting, progressive account
// lockout and TOTP two-factor authentication.
package authcore

import (
	"github.com/learnhive/authcore/app"
)

type App = app.App

func New() *app.AppBuilder {
	return app.NewApp()
}
