package middleware

import (
	"net/http"
	"time"
)

const (
	// AccessCookieName carries the access token on every request.
	AccessCookieName = "access_token"
	// RefreshCookieName carries the refresh token, scoped so it is only
	// sent to the auth endpoints.
	RefreshCookieName = "refresh_token"
)

// CookieConfig controls how the token pair is written as cookies.
type CookieConfig struct {
	// RefreshPath scopes the refresh cookie; defaults to "/auth".
	RefreshPath string
	// Secure should be true everywhere TLS terminates before this process.
	Secure bool
	// SameSite defaults to Lax so cookies survive provider redirect flows.
	SameSite http.SameSite
	// AccessTTL and RefreshTTL become the cookies' Max-Age.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c CookieConfig) refreshPath() string {
	if c.RefreshPath == "" {
		return "/auth"
	}
	return c.RefreshPath
}

func (c CookieConfig) sameSite() http.SameSite {
	if c.SameSite == 0 {
		return http.SameSiteLaxMode
	}
	return c.SameSite
}

// SetAuthCookies writes the token pair onto the response.
func SetAuthCookies(w http.ResponseWriter, cfg CookieConfig, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(cfg.AccessTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.sameSite(),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    refreshToken,
		Path:     cfg.refreshPath(),
		MaxAge:   int(cfg.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.sameSite(),
	})
}

// ClearAuthCookies expires both cookies. Attributes must match the ones used
// when setting, or browsers keep the originals.
func ClearAuthCookies(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.sameSite(),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     cfg.refreshPath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.sameSite(),
	})
}
