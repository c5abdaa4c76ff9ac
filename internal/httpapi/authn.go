package httpapi

import (
	"errors"
	"net/http"

	"tallybook.io/internal/auth"
	"tallybook.io/internal/obs"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// handle registers pattern behind the access gate. A nil role set only
// requires a valid session.
func (a *API) handle(pattern string, roles auth.RoleSet, h http.HandlerFunc) {
	a.mux.Handle(pattern, a.gate(roles, h))
}

func (a *API) gate(roles auth.RoleSet, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := a.requireToken(w, r)
		if !ok {
			return
		}
		if roles != nil && !a.requireRole(w, r, p, roles) {
			return
		}
		next(w, r.WithContext(auth.ContextWithPayload(r.Context(), p)))
	})
}

// requireToken accepts a request carrying an unexpired refresh token cookie.
// Expired cookies are cleared.
func (a *API) requireToken(w http.ResponseWriter, r *http.Request) (auth.Payload, bool) {
	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized access!")
		return auth.Payload{}, false
	}
	p, err := a.Session.Parse(c.Value)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized access!")
		return auth.Payload{}, false
	}
	if a.Now().After(p.ExpiresAt) {
		a.clearSession(w)
		writeError(w, r, http.StatusUnauthorized, "Unauthorized access!")
		return auth.Payload{}, false
	}
	return p, true
}

// requireRole checks the token role against the route's role set and, when a
// role cache is configured, against the user's current role.
func (a *API) requireRole(w http.ResponseWriter, r *http.Request, p auth.Payload, roles auth.RoleSet) bool {
	if !roles.Allows(p.Role) {
		msg := "Access forbidden!!!"
		if len(roles) == 1 && roles[0] == auth.RoleSuperAdmin {
			msg = "Access forbidden for non-SuperAdmin"
		}
		writeError(w, r, http.StatusForbidden, msg)
		return false
	}
	current, err := a.Resolver.RoleCurrent(r.Context(), p)
	if err != nil {
		obs.FromContext(r.Context()).WithError(err).Error("role check failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return false
	}
	if !current {
		writeError(w, r, http.StatusUnauthorized, "Session outdated")
		return false
	}
	return true
}

// requester resolves the acting user of a gated request.
func (a *API) requester(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	p, ok := auth.PayloadFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized access!")
		return auth.User{}, false
	}
	u, err := a.Resolver.Resolve(r.Context(), p)
	if err != nil {
		if !errors.Is(err, auth.ErrForbidden) && !errors.Is(err, auth.ErrInactiveUser) {
			obs.FromContext(r.Context()).WithError(err).Error("resolve requester")
		}
		handleServiceError(w, r, err)
		return auth.User{}, false
	}
	return u, true
}

func (a *API) setSession(w http.ResponseWriter, access, refresh string) {
	if access != "" {
		http.SetCookie(w, a.cookie(accessCookie, access, int(auth.AccessTokenTTL.Seconds())))
	}
	if refresh != "" {
		http.SetCookie(w, a.cookie(refreshCookie, refresh, int(auth.RefreshTokenTTL.Seconds())))
	}
}

func (a *API) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, a.cookie(accessCookie, "", -1))
	http.SetCookie(w, a.cookie(refreshCookie, "", -1))
}

func (a *API) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   a.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
