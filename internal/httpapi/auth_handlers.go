package httpapi

import (
	"errors"
	"net/http"

	"tallybook.io/internal/audit"
	"tallybook.io/internal/auth"
	"tallybook.io/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required|email"`
	Password string `json:"password"`
	APIToken string `json:"api_token"`
}

func (loginRequest) Messages() map[string]string {
	return map[string]string{
		"required": "{field} is required",
		"email":    "Invalid email",
	}
}

type tokenBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type loginResponse struct {
	Token      tokenBody `json:"token"`
	Permission []string  `json:"permission"`
	Role       auth.Role `json:"role"`
	Unique     string    `json:"unique"`
}

type verifyResponse struct {
	Message        string `json:"message"`
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	TokenRefreshed bool   `json:"token_refreshed"`
}

type signUpRequest struct {
	OrgID     string `json:"org_id"`
	Email     string `json:"email" validate:"required|email"`
	Password  string `json:"password" validate:"required|minLen:8"`
	Name      string `json:"name" validate:"required"`
	Phone     string `json:"phone"`
	Gender    string `json:"gender"`
	SuperUser bool   `json:"super_user"`
	StaffUser bool   `json:"staff_user"`
}

func (signUpRequest) Messages() map[string]string {
	return map[string]string{
		"required": "{field} is required",
		"email":    "Invalid email",
		"minLen":   "{field} must be at least 8 characters",
	}
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required|minLen:8"`
}

func (passwordRequest) Messages() map[string]string {
	return map[string]string{
		"required": "{field} is required",
		"minLen":   "{field} must be at least 8 characters",
	}
}

func (a *API) authRoutes() {
	a.mux.HandleFunc("POST /auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /auth/verify", a.handleVerify)
	a.mux.HandleFunc("POST /auth/logout", a.handleLogout)
	a.handle("POST /auth/signup", auth.RolesSuperAdmin, a.handleSignUp)
	a.handle("POST /auth/password", auth.RolesOrgStaff, a.handlePassword)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !bind(w, r, &req) {
		return
	}
	u, pair, err := a.Users.Login(r.Context(), auth.Credentials{
		Email:    req.Email,
		Password: req.Password,
		APIToken: req.APIToken,
	})
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"email": req.Email})
		handleServiceError(w, r, err)
		return
	}
	a.setSession(w, pair.AccessToken, pair.RefreshToken)

	role := auth.RoleOf(u)
	ctx := auth.ContextWithUser(r.Context(), u)
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{"role": role})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:      tokenBody{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		Permission: grants(role),
		Role:       role,
		Unique:     u.ID,
	})
}

// grants lists the role groups a role belongs to, widest first.
func grants(role auth.Role) []string {
	groups := []struct {
		name  string
		roles auth.RoleSet
	}{
		{"SuperAdmin", auth.RolesSuperAdmin},
		{"OrgAdmin", auth.RolesOrgAdmin},
		{"OrgStaff", auth.RolesOrgStaff},
	}
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if g.roles.Allows(role) {
			out = append(out, g.name)
		}
	}
	return out
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.clearSession(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

// handleVerify applies the refresh windows to the caller's refresh cookie.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized login!!!")
		return
	}
	p, err := a.Session.Parse(c.Value)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized login!!!")
		return
	}
	if a.Now().After(p.ExpiresAt) {
		a.clearSession(w)
		writeError(w, r, http.StatusUnauthorized, "Unauthorized login!!!")
		return
	}
	d, err := a.Session.Evaluate(p)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	obs.SessionRefresh(string(d.Outcome))
	a.setSession(w, d.AccessToken, d.RefreshToken)

	access := d.AccessToken
	if access == "" {
		if ac, err := r.Cookie(accessCookie); err == nil {
			access = ac.Value
		}
	}
	refresh := d.RefreshToken
	if refresh == "" {
		refresh = c.Value
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Message:        d.Outcome.Message(),
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenRefreshed: d.Refreshed(),
	})
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !bind(w, r, &req) {
		return
	}
	u, err := a.Users.SignUp(r.Context(), auth.SignUpInput{
		OrgID:     req.OrgID,
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		Phone:     req.Phone,
		Gender:    req.Gender,
		SuperUser: req.SuperUser,
		StaffUser: req.StaffUser,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.created", map[string]any{"target": u.ID, "org_id": u.OrgID})
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handlePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !bind(w, r, &req) {
		return
	}
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	err := a.Users.ChangePassword(r.Context(), u.ID, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, r, http.StatusBadRequest, "Invalid Password")
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.password_changed", nil)
	writeMessage(w, http.StatusOK, "Password updated")
}
