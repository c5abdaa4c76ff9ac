package httpapi

import (
	"net/http"

	"tallybook.io/internal/audit"
	"tallybook.io/internal/auth"
	"tallybook.io/internal/billing"
)

// organizationPatch carries the fields of an organization request. Create
// requires name and abr; update applies only the fields present.
type organizationPatch struct {
	Name              *string `json:"name"`
	Abr               *string `json:"abr"`
	Registration      *string `json:"registration"`
	DefaultCurrencyID *string `json:"default_currency_id"`
	AddressLine1      *string `json:"address_line1"`
	AddressLine2      *string `json:"address_line2"`
	AddressLine3      *string `json:"address_line3"`
	City              *string `json:"city"`
	Country           *string `json:"country"`
	Zip               *string `json:"zip"`
	Active            *bool   `json:"active"`
}

func (p organizationPatch) apply(o *billing.Organization) {
	setString(&o.Name, p.Name)
	setString(&o.Abr, p.Abr)
	setString(&o.Registration, p.Registration)
	setString(&o.DefaultCurrencyID, p.DefaultCurrencyID)
	setString(&o.AddressLine1, p.AddressLine1)
	setString(&o.AddressLine2, p.AddressLine2)
	setString(&o.AddressLine3, p.AddressLine3)
	setString(&o.City, p.City)
	setString(&o.Country, p.Country)
	setString(&o.Zip, p.Zip)
	setBool(&o.Active, p.Active)
}

type clientPatch struct {
	OrgID        *string `json:"org_id"`
	Name         *string `json:"name"`
	Abr          *string `json:"abr"`
	Registration *string `json:"registration"`
	Domestic     *bool   `json:"domestic"`
	Internal     *bool   `json:"internal"`
	ContactName  *string `json:"contact_name"`
	ContactEmail *string `json:"contact_email"`
	ContactPhone *string `json:"contact_phone"`
	AddressLine1 *string `json:"address_line1"`
	AddressLine2 *string `json:"address_line2"`
	AddressLine3 *string `json:"address_line3"`
	City         *string `json:"city"`
	Country      *string `json:"country"`
	Zip          *string `json:"zip"`
	Active       *bool   `json:"active"`
}

func (p clientPatch) apply(c *billing.Client) {
	setString(&c.OrgID, p.OrgID)
	setString(&c.Name, p.Name)
	setString(&c.Abr, p.Abr)
	setString(&c.Registration, p.Registration)
	setBool(&c.Domestic, p.Domestic)
	setBool(&c.Internal, p.Internal)
	setString(&c.ContactName, p.ContactName)
	setString(&c.ContactEmail, p.ContactEmail)
	setString(&c.ContactPhone, p.ContactPhone)
	setString(&c.AddressLine1, p.AddressLine1)
	setString(&c.AddressLine2, p.AddressLine2)
	setString(&c.AddressLine3, p.AddressLine3)
	setString(&c.City, p.City)
	setString(&c.Country, p.Country)
	setString(&c.Zip, p.Zip)
	setBool(&c.Active, p.Active)
}

type accountPatch struct {
	OrgID         *string `json:"org_id"`
	AccountName   *string `json:"account_name"`
	AccountNumber *string `json:"account_number"`
}

func (p accountPatch) apply(a *billing.Account) {
	setString(&a.OrgID, p.OrgID)
	setString(&a.AccountName, p.AccountName)
	setString(&a.AccountNumber, p.AccountNumber)
}

type currencyPatch struct {
	Name   *string `json:"name"`
	Abr    *string `json:"abr"`
	Symbol *string `json:"symbol"`
}

func (p currencyPatch) apply(c *billing.Currency) {
	setString(&c.Name, p.Name)
	setString(&c.Abr, p.Abr)
	setString(&c.Symbol, p.Symbol)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func (a *API) directoryRoutes() {
	a.handle("GET /org", auth.RolesSuperAdmin, a.handleListOrganizations)
	a.handle("POST /org", auth.RolesSuperAdmin, a.handleCreateOrganization)
	a.handle("GET /org/{id}", auth.RolesOrgStaff, a.handleGetOrganization)
	a.handle("POST /org/{id}", auth.RolesSuperAdmin, a.handleUpdateOrganization)
	a.handle("DELETE /org/{id}", auth.RolesSuperAdmin, a.handleDeleteOrganization)

	a.handle("GET /client", auth.RolesOrgStaff, a.handleListClients)
	a.handle("GET /client/{id}", auth.RolesOrgStaff, a.handleGetClient)
	a.handle("POST /client", auth.RolesOrgAdmin, a.handleCreateClient)
	a.handle("POST /client/{id}", auth.RolesOrgAdmin, a.handleUpdateClient)
	a.handle("DELETE /client/{id}", auth.RolesOrgAdmin, a.handleDeleteClient)

	a.handle("GET /account", auth.RolesOrgStaff, a.handleListAccounts)
	a.handle("GET /account/{id}", auth.RolesOrgStaff, a.handleGetAccount)
	a.handle("POST /account", auth.RolesOrgAdmin, a.handleCreateAccount)
	a.handle("POST /account/{id}", auth.RolesOrgAdmin, a.handleUpdateAccount)
	a.handle("DELETE /account/{id}", auth.RolesOrgAdmin, a.handleDeleteAccount)

	a.handle("GET /currency", auth.RolesOrgStaff, a.handleListCurrencies)
	a.handle("GET /currency/{id}", auth.RolesOrgStaff, a.handleGetCurrency)
	a.handle("POST /currency", auth.RolesSuperAdmin, a.handleCreateCurrency)
	a.handle("POST /currency/{id}", auth.RolesSuperAdmin, a.handleUpdateCurrency)
	a.handle("DELETE /currency/{id}", auth.RolesSuperAdmin, a.handleDeleteCurrency)
}

// respond writes v, or the mapped error when err is set.
func respond(w http.ResponseWriter, r *http.Request, code int, v any, err error) {
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, code, v)
}

// deleted runs del and reports success with msg.
func deleted(w http.ResponseWriter, r *http.Request, event, id, msg string, del func() error) {
	if err := del(); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{"target": id})
	writeMessage(w, http.StatusOK, msg)
}

func (a *API) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := a.Directory.ListOrganizations(r.Context())
	respond(w, r, http.StatusOK, orgs, err)
}

func (a *API) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationPatch
	if !bind(w, r, &req) {
		return
	}
	o := billing.Organization{Active: true}
	req.apply(&o)
	created, err := a.Directory.CreateOrganization(r.Context(), o)
	if err == nil {
		_ = audit.LogEvent(r.Context(), "org.created", map[string]any{"target": created.ID, "abr": created.Abr})
	}
	respond(w, r, http.StatusCreated, created, err)
}

func (a *API) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	view, err := a.Directory.Organization(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, view, err)
}

func (a *API) handleUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationPatch
	if !bind(w, r, &req) {
		return
	}
	view, err := a.Directory.Organization(r.Context(), r.PathValue("id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	o := view.Organization
	req.apply(&o)
	updated, err := a.Directory.UpdateOrganization(r.Context(), o)
	if err == nil {
		_ = audit.LogEvent(r.Context(), "org.updated", map[string]any{"target": o.ID})
	}
	respond(w, r, http.StatusOK, updated, err)
}

func (a *API) handleDeleteOrganization(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted(w, r, "org.deleted", id, "Organization deleted", func() error {
		return a.Directory.DeleteOrganization(r.Context(), id)
	})
}

func (a *API) handleListClients(w http.ResponseWriter, r *http.Request) {
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	clients, err := a.Directory.ListClients(r.Context(), u.OrgID)
	respond(w, r, http.StatusOK, clients, err)
}

func (a *API) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := a.Directory.Client(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, c, err)
}

func (a *API) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientPatch
	if !bind(w, r, &req) {
		return
	}
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	c := billing.Client{OrgID: u.OrgID, Active: true}
	req.apply(&c)
	created, err := a.Directory.CreateClient(r.Context(), c)
	if err == nil {
		_ = audit.LogEvent(r.Context(), "client.created", map[string]any{"target": created.ID, "org_id": created.OrgID})
	}
	respond(w, r, http.StatusCreated, created, err)
}

func (a *API) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var req clientPatch
	if !bind(w, r, &req) {
		return
	}
	c, err := a.Directory.Client(r.Context(), r.PathValue("id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	req.apply(&c)
	updated, err := a.Directory.UpdateClient(r.Context(), c)
	if err == nil {
		_ = audit.LogEvent(r.Context(), "client.updated", map[string]any{"target": c.ID})
	}
	respond(w, r, http.StatusOK, updated, err)
}

func (a *API) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted(w, r, "client.deleted", id, "Client deleted", func() error {
		return a.Directory.DeleteClient(r.Context(), id)
	})
}

func (a *API) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	accounts, err := a.Directory.ListAccounts(r.Context(), u.OrgID)
	respond(w, r, http.StatusOK, accounts, err)
}

func (a *API) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := a.Directory.Account(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, acc, err)
}

func (a *API) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountPatch
	if !bind(w, r, &req) {
		return
	}
	u, ok := a.requester(w, r)
	if !ok {
		return
	}
	acc := billing.Account{OrgID: u.OrgID}
	req.apply(&acc)
	created, err := a.Directory.CreateAccount(r.Context(), acc)
	if err == nil {
		_ = audit.LogEvent(r.Context(), "account.created", map[string]any{"target": created.ID, "org_id": created.OrgID})
	}
	respond(w, r, http.StatusCreated, created, err)
}

func (a *API) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountPatch
	if !bind(w, r, &req) {
		return
	}
	acc, err := a.Directory.Account(r.Context(), r.PathValue("id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	req.apply(&acc)
	updated, err := a.Directory.UpdateAccount(r.Context(), acc)
	if err == nil {
		_ = audit.LogEvent(r.Context(), "account.updated", map[string]any{"target": acc.ID})
	}
	respond(w, r, http.StatusOK, updated, err)
}

func (a *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted(w, r, "account.deleted", id, "Account deleted", func() error {
		return a.Directory.DeleteAccount(r.Context(), id)
	})
}

func (a *API) handleListCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := a.Directory.ListCurrencies(r.Context())
	respond(w, r, http.StatusOK, currencies, err)
}

func (a *API) handleGetCurrency(w http.ResponseWriter, r *http.Request) {
	c, err := a.Directory.Currency(r.Context(), r.PathValue("id"))
	respond(w, r, http.StatusOK, c, err)
}

func (a *API) handleCreateCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyPatch
	if !bind(w, r, &req) {
		return
	}
	var c billing.Currency
	req.apply(&c)
	created, err := a.Directory.CreateCurrency(r.Context(), c)
	if err == nil {
		_ = audit.LogEvent(r.Context(), "currency.created", map[string]any{"target": created.ID, "abr": created.Abr})
	}
	respond(w, r, http.StatusCreated, created, err)
}

func (a *API) handleUpdateCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyPatch
	if !bind(w, r, &req) {
		return
	}
	c, err := a.Directory.Currency(r.Context(), r.PathValue("id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	req.apply(&c)
	updated, err := a.Directory.UpdateCurrency(r.Context(), c)
	if err == nil {
		_ = audit.LogEvent(r.Context(), "currency.updated", map[string]any{"target": c.ID})
	}
	respond(w, r, http.StatusOK, updated, err)
}

func (a *API) handleDeleteCurrency(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted(w, r, "currency.deleted", id, "Currency deleted", func() error {
		return a.Directory.DeleteCurrency(r.Context(), id)
	})
}
