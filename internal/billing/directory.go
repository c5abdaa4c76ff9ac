package billing

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// Directory manages organizations, clients, accounts and currencies.
type Directory struct {
	store DirectoryStore
}

func NewDirectory(store DirectoryStore) (*Directory, error) {
	if store == nil {
		return nil, errors.New("billing: directory store is required")
	}
	return &Directory{store: store}, nil
}

func (d *Directory) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return d.store.ListOrganizations(ctx)
}

func (d *Directory) Organization(ctx context.Context, id string) (OrganizationView, error) {
	v, err := d.store.OrganizationView(ctx, id)
	return v, describe(err, "Invalid Organization id")
}

func (d *Directory) CreateOrganization(ctx context.Context, o Organization) (Organization, error) {
	if err := d.checkOrganization(ctx, &o); err != nil {
		return Organization{}, err
	}
	o.Active = true
	created, err := d.store.CreateOrganization(ctx, o)
	return created, orgConflict(err, o.Abr)
}

func (d *Directory) UpdateOrganization(ctx context.Context, o Organization) (Organization, error) {
	if err := d.checkOrganization(ctx, &o); err != nil {
		return Organization{}, err
	}
	updated, err := d.store.UpdateOrganization(ctx, o)
	return updated, orgConflict(describe(err, "Invalid Organization id"), o.Abr)
}

func (d *Directory) DeleteOrganization(ctx context.Context, id string) error {
	return inUse(describe(d.store.DeleteOrganization(ctx, id), "Invalid Organization id"), "Organization")
}

func (d *Directory) checkOrganization(ctx context.Context, o *Organization) error {
	o.Name = strings.TrimSpace(o.Name)
	o.Abr = strings.TrimSpace(o.Abr)
	if o.Name == "" || o.Abr == "" {
		return fmt.Errorf("%w: name and abr are required", ErrInvalidInput)
	}
	if _, err := d.store.GetCurrency(ctx, o.DefaultCurrencyID); err != nil {
		return reference(err, "Invalid Currency id")
	}
	return nil
}

func (d *Directory) ListClients(ctx context.Context, orgID string) ([]Client, error) {
	return d.store.ListClients(ctx, orgID)
}

func (d *Directory) Client(ctx context.Context, id string) (Client, error) {
	c, err := d.store.GetClient(ctx, id)
	return c, describe(err, "Invalid Client id")
}

func (d *Directory) CreateClient(ctx context.Context, c Client) (Client, error) {
	if err := d.checkClient(ctx, &c); err != nil {
		return Client{}, err
	}
	c.Active = true
	created, err := d.store.CreateClient(ctx, c)
	return created, clientConflict(err, c.Abr)
}

func (d *Directory) UpdateClient(ctx context.Context, c Client) (Client, error) {
	if err := d.checkClient(ctx, &c); err != nil {
		return Client{}, err
	}
	updated, err := d.store.UpdateClient(ctx, c)
	return updated, clientConflict(describe(err, "Invalid Client id"), c.Abr)
}

func (d *Directory) DeleteClient(ctx context.Context, id string) error {
	return inUse(describe(d.store.DeleteClient(ctx, id), "Invalid Client id"), "Client")
}

func (d *Directory) checkClient(ctx context.Context, c *Client) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Abr = strings.TrimSpace(c.Abr)
	c.ContactEmail = strings.TrimSpace(c.ContactEmail)
	if c.Name == "" || c.Abr == "" {
		return fmt.Errorf("%w: name and abr are required", ErrInvalidInput)
	}
	if c.ContactEmail != "" {
		if _, err := mail.ParseAddress(c.ContactEmail); err != nil {
			return fmt.Errorf("%w: Invalid contact email", ErrInvalidInput)
		}
	}
	if _, err := d.store.GetOrganization(ctx, c.OrgID); err != nil {
		return reference(err, "Invalid Organization id")
	}
	return nil
}

// ListAccounts returns the organization's accounts ordered by account number.
func (d *Directory) ListAccounts(ctx context.Context, orgID string) ([]Account, error) {
	return d.store.ListAccounts(ctx, orgID)
}

func (d *Directory) Account(ctx context.Context, id string) (Account, error) {
	a, err := d.store.GetAccount(ctx, id)
	return a, describe(err, "Invalid Account id")
}

func (d *Directory) CreateAccount(ctx context.Context, a Account) (Account, error) {
	if err := d.checkAccount(ctx, &a); err != nil {
		return Account{}, err
	}
	created, err := d.store.CreateAccount(ctx, a)
	return created, conflict(err, "Account already exists")
}

func (d *Directory) UpdateAccount(ctx context.Context, a Account) (Account, error) {
	if err := d.checkAccount(ctx, &a); err != nil {
		return Account{}, err
	}
	updated, err := d.store.UpdateAccount(ctx, a)
	return updated, conflict(describe(err, "Invalid Account id"), "Account already exists")
}

func (d *Directory) DeleteAccount(ctx context.Context, id string) error {
	return inUse(describe(d.store.DeleteAccount(ctx, id), "Invalid Account id"), "Account")
}

func (d *Directory) checkAccount(ctx context.Context, a *Account) error {
	a.AccountName = strings.TrimSpace(a.AccountName)
	a.AccountNumber = strings.TrimSpace(a.AccountNumber)
	if a.AccountName == "" || a.AccountNumber == "" {
		return fmt.Errorf("%w: account_name and account_number are required", ErrInvalidInput)
	}
	if _, err := d.store.GetOrganization(ctx, a.OrgID); err != nil {
		return reference(err, "Invalid Organization id")
	}
	return nil
}

func (d *Directory) ListCurrencies(ctx context.Context) ([]Currency, error) {
	return d.store.ListCurrencies(ctx)
}

func (d *Directory) Currency(ctx context.Context, id string) (Currency, error) {
	c, err := d.store.GetCurrency(ctx, id)
	return c, describe(err, "Invalid Currency id")
}

func (d *Directory) CreateCurrency(ctx context.Context, c Currency) (Currency, error) {
	if err := checkCurrency(&c); err != nil {
		return Currency{}, err
	}
	created, err := d.store.CreateCurrency(ctx, c)
	return created, conflict(err, "Currency already exists")
}

func (d *Directory) UpdateCurrency(ctx context.Context, c Currency) (Currency, error) {
	if err := checkCurrency(&c); err != nil {
		return Currency{}, err
	}
	updated, err := d.store.UpdateCurrency(ctx, c)
	return updated, conflict(describe(err, "Invalid Currency id"), "Currency already exists")
}

func (d *Directory) DeleteCurrency(ctx context.Context, id string) error {
	return inUse(describe(d.store.DeleteCurrency(ctx, id), "Invalid Currency id"), "Currency")
}

func checkCurrency(c *Currency) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Abr = strings.TrimSpace(c.Abr)
	c.Symbol = strings.TrimSpace(c.Symbol)
	if c.Name == "" || c.Abr == "" || c.Symbol == "" {
		return fmt.Errorf("%w: name, abr and symbol are required", ErrInvalidInput)
	}
	return nil
}

// describe attaches a user facing message to a not-found error.
func describe(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return err
}

// reference turns a missing referenced row into a validation error.
func reference(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
	}
	return err
}

func conflict(err error, msg string) error {
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	}
	return err
}

// inUse reports a delete blocked by rows that still reference the target.
func inUse(err error, what string) error {
	return conflict(err, what+" is still referenced and cannot be deleted")
}

func orgConflict(err error, abr string) error {
	return conflict(err, fmt.Sprintf("Organization with abbreviation %s already exists", abr))
}

func clientConflict(err error, abr string) error {
	return conflict(err, fmt.Sprintf("Client with abbreviation %s already exists", abr))
}
