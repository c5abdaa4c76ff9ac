package pg

import (
	"context"

	"github.com/volatiletech/null"

	"tallybook.io/internal/auth"
	"tallybook.io/internal/ids"
)

const userColumns = `id, org_id, email, password_hash, name, phone, gender, active, super_user, staff_user, api_token, created_at, updated_at`

func scanUser(row scanner) (auth.User, error) {
	var (
		u                    auth.User
		orgID, phone, apiTok null.String
	)
	err := row.Scan(&u.ID, &orgID, &u.Email, &u.PasswordHash, &u.Name, &phone, &u.Gender,
		&u.Active, &u.SuperUser, &u.StaffUser, &apiTok, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return auth.User{}, err
	}
	u.OrgID, u.Phone, u.APIToken = orgID.String, phone.String, apiTok.String
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	return u, authErr(err)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = lower($1)`, email))
	return u, authErr(err)
}

// ListUsers returns the members of an organization, or every user when orgID is empty.
func (s *Store) ListUsers(ctx context.Context, orgID string) ([]auth.User, error) {
	if orgID == "" {
		return queryAll(ctx, s.db, scanUser, `select `+userColumns+` from users order by name, email`)
	}
	return queryAll(ctx, s.db, scanUser, `select `+userColumns+` from users where org_id = $1 order by name, email`, orgID)
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	if u.ID == "" {
		u.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into users (id, org_id, email, password_hash, name, phone, gender, active, super_user, staff_user, api_token)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		returning created_at, updated_at
	`, u.ID, nullIfEmpty(u.OrgID), u.Email, u.PasswordHash, u.Name, nullIfEmpty(u.Phone), u.Gender,
		u.Active, u.SuperUser, u.StaffUser, nullIfEmpty(u.APIToken)).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return auth.User{}, authErr(err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u auth.User) (auth.User, error) {
	err := s.db.QueryRowContext(ctx, `
		update users
		set org_id = $2, email = $3, password_hash = $4, name = $5, phone = $6, gender = $7,
		    active = $8, super_user = $9, staff_user = $10, api_token = $11, updated_at = now()
		where id = $1
		returning created_at, updated_at
	`, u.ID, nullIfEmpty(u.OrgID), u.Email, u.PasswordHash, u.Name, nullIfEmpty(u.Phone), u.Gender,
		u.Active, u.SuperUser, u.StaffUser, nullIfEmpty(u.APIToken)).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return auth.User{}, authErr(err)
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	return authErr(affected(res, err, auth.ErrNotFound))
}

func (s *Store) OrganizationExists(ctx context.Context, orgID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from organizations where id = $1)`, orgID).Scan(&ok)
	return ok, err
}
