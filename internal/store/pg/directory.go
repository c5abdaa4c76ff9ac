package pg

import (
	"context"
	"database/sql"
	"errors"

	"tallybook.io/internal/billing"
	"tallybook.io/internal/ids"
)

const orgColumns = `id, name, abr, registration, default_currency_id, address_line1, address_line2, address_line3, city, country, zip, active, created_at, updated_at`

func scanOrganization(row scanner) (billing.Organization, error) {
	var o billing.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Abr, &o.Registration, &o.DefaultCurrencyID,
		&o.AddressLine1, &o.AddressLine2, &o.AddressLine3, &o.City, &o.Country, &o.Zip,
		&o.Active, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (s *Store) ListOrganizations(ctx context.Context) ([]billing.Organization, error) {
	return queryAll(ctx, s.db, scanOrganization, `select `+orgColumns+` from organizations order by name`)
}

func (s *Store) GetOrganization(ctx context.Context, id string) (billing.Organization, error) {
	return getOrganization(ctx, s.db, id)
}

func getOrganization(ctx context.Context, q querier, id string) (billing.Organization, error) {
	o, err := scanOrganization(q.QueryRowContext(ctx, `select `+orgColumns+` from organizations where id = $1`, id))
	return o, billingErr(err)
}

// OrganizationView loads the organization with its currency, accounts, clients and users
// from a single snapshot.
func (s *Store) OrganizationView(ctx context.Context, id string) (billing.OrganizationView, error) {
	var view billing.OrganizationView
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		org, err := getOrganization(ctx, tx, id)
		if err != nil {
			return err
		}
		view.Organization = org

		cur, err := getCurrency(ctx, tx, org.DefaultCurrencyID)
		switch {
		case err == nil:
			view.DefaultCurrency = &cur
		case !errors.Is(err, billing.ErrNotFound):
			return err
		}

		if view.Accounts, err = listAccounts(ctx, tx, id); err != nil {
			return err
		}
		if view.Clients, err = listClients(ctx, tx, id); err != nil {
			return err
		}
		view.Users, err = queryAll(ctx, tx, scanMember, `
			select id, email, name, coalesce(phone, ''), active, super_user, staff_user
			from users where org_id = $1 order by name, email
		`, id)
		return err
	})
	if err != nil {
		return billing.OrganizationView{}, err
	}
	return view, nil
}

func scanMember(row scanner) (billing.Member, error) {
	var m billing.Member
	err := row.Scan(&m.ID, &m.Email, &m.Name, &m.Phone, &m.Active, &m.SuperUser, &m.StaffUser)
	return m, err
}

func (s *Store) CreateOrganization(ctx context.Context, o billing.Organization) (billing.Organization, error) {
	if o.ID == "" {
		o.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into organizations (id, name, abr, registration, default_currency_id,
		    address_line1, address_line2, address_line3, city, country, zip, active)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		returning created_at, updated_at
	`, o.ID, o.Name, o.Abr, o.Registration, o.DefaultCurrencyID,
		o.AddressLine1, o.AddressLine2, o.AddressLine3, o.City, o.Country, o.Zip, o.Active).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return billing.Organization{}, billingErr(err)
	}
	return o, nil
}

func (s *Store) UpdateOrganization(ctx context.Context, o billing.Organization) (billing.Organization, error) {
	err := s.db.QueryRowContext(ctx, `
		update organizations
		set name = $2, abr = $3, registration = $4, default_currency_id = $5,
		    address_line1 = $6, address_line2 = $7, address_line3 = $8, city = $9, country = $10, zip = $11,
		    active = $12, updated_at = now()
		where id = $1
		returning created_at, updated_at
	`, o.ID, o.Name, o.Abr, o.Registration, o.DefaultCurrencyID,
		o.AddressLine1, o.AddressLine2, o.AddressLine3, o.City, o.Country, o.Zip, o.Active).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return billing.Organization{}, billingErr(err)
	}
	return o, nil
}

func (s *Store) DeleteOrganization(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from organizations where id = $1`, id)
	return billingErr(affected(res, err, billing.ErrNotFound))
}

const clientColumns = `id, org_id, name, abr, registration, domestic, internal, contact_name, contact_email, contact_phone, address_line1, address_line2, address_line3, city, country, zip, active, created_at, updated_at`

func scanClient(row scanner) (billing.Client, error) {
	var c billing.Client
	err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.Abr, &c.Registration, &c.Domestic, &c.Internal,
		&c.ContactName, &c.ContactEmail, &c.ContactPhone,
		&c.AddressLine1, &c.AddressLine2, &c.AddressLine3, &c.City, &c.Country, &c.Zip,
		&c.Active, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) ListClients(ctx context.Context, orgID string) ([]billing.Client, error) {
	return listClients(ctx, s.db, orgID)
}

func listClients(ctx context.Context, q querier, orgID string) ([]billing.Client, error) {
	return queryAll(ctx, q, scanClient, `select `+clientColumns+` from clients where org_id = $1 order by name`, orgID)
}

func (s *Store) GetClient(ctx context.Context, id string) (billing.Client, error) {
	return getClient(ctx, s.db, id)
}

func getClient(ctx context.Context, q querier, id string) (billing.Client, error) {
	c, err := scanClient(q.QueryRowContext(ctx, `select `+clientColumns+` from clients where id = $1`, id))
	return c, billingErr(err)
}

func (s *Store) CreateClient(ctx context.Context, c billing.Client) (billing.Client, error) {
	if c.ID == "" {
		c.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into clients (id, org_id, name, abr, registration, domestic, internal,
		    contact_name, contact_email, contact_phone,
		    address_line1, address_line2, address_line3, city, country, zip, active)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		returning created_at, updated_at
	`, c.ID, c.OrgID, c.Name, c.Abr, c.Registration, c.Domestic, c.Internal,
		c.ContactName, c.ContactEmail, c.ContactPhone,
		c.AddressLine1, c.AddressLine2, c.AddressLine3, c.City, c.Country, c.Zip, c.Active).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return billing.Client{}, billingErr(err)
	}
	return c, nil
}

func (s *Store) UpdateClient(ctx context.Context, c billing.Client) (billing.Client, error) {
	err := s.db.QueryRowContext(ctx, `
		update clients
		set org_id = $2, name = $3, abr = $4, registration = $5, domestic = $6, internal = $7,
		    contact_name = $8, contact_email = $9, contact_phone = $10,
		    address_line1 = $11, address_line2 = $12, address_line3 = $13, city = $14, country = $15, zip = $16,
		    active = $17, updated_at = now()
		where id = $1
		returning created_at, updated_at
	`, c.ID, c.OrgID, c.Name, c.Abr, c.Registration, c.Domestic, c.Internal,
		c.ContactName, c.ContactEmail, c.ContactPhone,
		c.AddressLine1, c.AddressLine2, c.AddressLine3, c.City, c.Country, c.Zip, c.Active).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return billing.Client{}, billingErr(err)
	}
	return c, nil
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from clients where id = $1`, id)
	return billingErr(affected(res, err, billing.ErrNotFound))
}

const accountColumns = `id, org_id, account_name, account_number, created_at, updated_at`

func scanAccount(row scanner) (billing.Account, error) {
	var a billing.Account
	err := row.Scan(&a.ID, &a.OrgID, &a.AccountName, &a.AccountNumber, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) ListAccounts(ctx context.Context, orgID string) ([]billing.Account, error) {
	return listAccounts(ctx, s.db, orgID)
}

func listAccounts(ctx context.Context, q querier, orgID string) ([]billing.Account, error) {
	return queryAll(ctx, q, scanAccount, `select `+accountColumns+` from accounts where org_id = $1 order by account_number`, orgID)
}

func (s *Store) GetAccount(ctx context.Context, id string) (billing.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where id = $1`, id))
	return a, billingErr(err)
}

func (s *Store) CreateAccount(ctx context.Context, a billing.Account) (billing.Account, error) {
	if a.ID == "" {
		a.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into accounts (id, org_id, account_name, account_number)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, a.ID, a.OrgID, a.AccountName, a.AccountNumber).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return billing.Account{}, billingErr(err)
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a billing.Account) (billing.Account, error) {
	err := s.db.QueryRowContext(ctx, `
		update accounts
		set org_id = $2, account_name = $3, account_number = $4, updated_at = now()
		where id = $1
		returning created_at, updated_at
	`, a.ID, a.OrgID, a.AccountName, a.AccountNumber).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return billing.Account{}, billingErr(err)
	}
	return a, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from accounts where id = $1`, id)
	return billingErr(affected(res, err, billing.ErrNotFound))
}

const currencyColumns = `id, name, abr, symbol, created_at, updated_at`

func scanCurrency(row scanner) (billing.Currency, error) {
	var c billing.Currency
	err := row.Scan(&c.ID, &c.Name, &c.Abr, &c.Symbol, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) ListCurrencies(ctx context.Context) ([]billing.Currency, error) {
	return queryAll(ctx, s.db, scanCurrency, `select `+currencyColumns+` from currencies order by abr`)
}

func (s *Store) GetCurrency(ctx context.Context, id string) (billing.Currency, error) {
	return getCurrency(ctx, s.db, id)
}

func getCurrency(ctx context.Context, q querier, id string) (billing.Currency, error) {
	c, err := scanCurrency(q.QueryRowContext(ctx, `select `+currencyColumns+` from currencies where id = $1`, id))
	return c, billingErr(err)
}

func (s *Store) CreateCurrency(ctx context.Context, c billing.Currency) (billing.Currency, error) {
	if c.ID == "" {
		c.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into currencies (id, name, abr, symbol)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, c.ID, c.Name, c.Abr, c.Symbol).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return billing.Currency{}, billingErr(err)
	}
	return c, nil
}

func (s *Store) UpdateCurrency(ctx context.Context, c billing.Currency) (billing.Currency, error) {
	err := s.db.QueryRowContext(ctx, `
		update currencies
		set name = $2, abr = $3, symbol = $4, updated_at = now()
		where id = $1
		returning created_at, updated_at
	`, c.ID, c.Name, c.Abr, c.Symbol).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return billing.Currency{}, billingErr(err)
	}
	return c, nil
}

func (s *Store) DeleteCurrency(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from currencies where id = $1`, id)
	return billingErr(affected(res, err, billing.ErrNotFound))
}
