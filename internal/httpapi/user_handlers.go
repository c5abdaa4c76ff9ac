package httpapi

import (
	"net/http"

	"tallybook.io/internal/audit"
	"tallybook.io/internal/auth"
)

type profileRequest struct {
	Name   *string `json:"name"`
	Phone  *string `json:"phone"`
	Gender *string `json:"gender"`
}

func (p profileRequest) update() auth.ProfileUpdate {
	return auth.ProfileUpdate{Name: p.Name, Phone: p.Phone, Gender: p.Gender}
}

type adminUserRequest struct {
	profileRequest
	OrgID     *string `json:"org_id"`
	Active    *bool   `json:"active"`
	SuperUser *bool   `json:"super_user"`
	StaffUser *bool   `json:"staff_user"`
}

type assignRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (assignRequest) Messages() map[string]string {
	return map[string]string{"required": "{field} is required"}
}

func (a *API) userRoutes() {
	a.handle("GET /users/me", auth.RolesOrgStaff, a.handleMe)
	a.handle("PUT /users/me", auth.RolesOrgStaff, a.handleUpdateMe)
	a.handle("GET /users", auth.RolesOrgAdmin, a.handleListUsers)
	a.handle("POST /users/{id}", auth.RolesSuperAdmin, a.handleUpdateUser)
	a.handle("DELETE /users/{id}", auth.RolesSuperAdmin, a.handleDeleteUser)
	a.handle("POST /org/add/{id}", auth.RolesOrgAdmin, a.handleAssignOrganization)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !bind(w, r, &req) {
		return
	}
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	updated, err := a.Users.UpdateProfile(r.Context(), u.ID, req.update())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleListUsers lists the requester's organization; super admins see everyone.
func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	orgID := u.OrgID
	if !u.SuperUser && orgID == "" {
		writeJSON(w, http.StatusOK, []auth.User{})
		return
	}
	if u.SuperUser {
		orgID = ""
	}
	users, err := a.Users.List(r.Context(), orgID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req adminUserRequest
	if !bind(w, r, &req) {
		return
	}
	actor, ok := a.requester(w, r)
	if !ok {
		return
	}
	target := r.PathValue("id")
	updated, err := a.Users.Update(r.Context(), actor.ID, target, auth.AdminUpdate{
		ProfileUpdate: req.update(),
		OrgID:         req.OrgID,
		Active:        req.Active,
		SuperUser:     req.SuperUser,
		StaffUser:     req.StaffUser,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{"target": target})
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.requester(w, r)
	if !ok {
		return
	}
	target := r.PathValue("id")
	if err := a.Users.Delete(r.Context(), actor.ID, target); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{"target": target})
	writeMessage(w, http.StatusOK, "User deleted")
}

// handleAssignOrganization moves a user into the organization named in the path.
func (a *API) handleAssignOrganization(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !bind(w, r, &req) {
		return
	}
	orgID := r.PathValue("id")
	if _, err := a.Users.AssignOrganization(r.Context(), req.UserID, orgID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.org_assigned", map[string]any{"target": req.UserID, "org_id": orgID})
	view, err := a.Directory.Organization(r.Context(), orgID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
