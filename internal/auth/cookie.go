package auth

import "net/http"

// ApplyCookieSecurity sets the attributes every auth cookie carries. Outside
// development cookies are Secure and default to SameSite=Strict; in
// development they default to Lax.
func ApplyCookieSecurity(c *http.Cookie, isDev bool) {
	if isDev {
		if c.SameSite == 0 {
			c.SameSite = http.SameSiteLaxMode
		}
		return
	}
	c.Secure = true
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteStrictMode
	}
}

// ClearedCookie returns a cookie that removes name from the browser
func ClearedCookie(name string, sameSite http.SameSite, isDev bool) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: sameSite,
	}
	ApplyCookieSecurity(c, isDev)
	return c
}
