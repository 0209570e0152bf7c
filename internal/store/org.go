package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/repoflux/repoflux/schema"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

const orgCols = "id, name, credential_id, checkout_path, dir_allow, dir_deny, ext_allow, ext_deny"

// CreateOrganization inserts a new organization. Name must be unique.
func (s *Store) CreateOrganization(ctx context.Context, org *schema.Organization) error {
	query := s.rebind(`INSERT INTO organizations
		(name, credential_id, checkout_path, dir_allow, dir_deny, ext_allow, ext_deny)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		org.Name, int64Arg(org.CredentialID), org.CheckoutPath,
		org.DirectoryAllowList, org.DirectoryDenyList,
		org.ExtensionAllowList, org.ExtensionDenyList)
	if err != nil {
		return fmt.Errorf("create organization %q: %w", org.Name, err)
	}
	created, err := s.OrganizationByName(ctx, org.Name)
	if err != nil {
		return err
	}
	org.ID = created.ID
	return nil
}

// OrganizationByName looks up one organization.
func (s *Store) OrganizationByName(ctx context.Context, name string) (*schema.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+orgCols+" FROM organizations WHERE name = ?"), name)
	org, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("organization %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load organization %q: %w", name, err)
	}
	return org, nil
}

// Organizations lists all organizations by name.
func (s *Store) Organizations(ctx context.Context) ([]schema.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orgCols+" FROM organizations ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []schema.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("list organizations: %w", err)
		}
		out = append(out, *org)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(r rowScanner) (*schema.Organization, error) {
	var org schema.Organization
	var credID sql.NullInt64
	err := r.Scan(&org.ID, &org.Name, &credID, &org.CheckoutPath,
		&org.DirectoryAllowList, &org.DirectoryDenyList,
		&org.ExtensionAllowList, &org.ExtensionDenyList)
	if err != nil {
		return nil, err
	}
	org.CredentialID = nullInt64(credID)
	return &org, nil
}

// CreateCredential inserts login material. Name must be unique.
func (s *Store) CreateCredential(ctx context.Context, cred *schema.Credential) error {
	query := s.rebind(`INSERT INTO credentials (name, username, ssh_private_key)
		VALUES (?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, cred.Name, cred.Username, cred.SSHPrivateKey); err != nil {
		return fmt.Errorf("create credential %q: %w", cred.Name, err)
	}
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT id FROM credentials WHERE name = ?"), cred.Name)
	if err := row.Scan(&cred.ID); err != nil {
		return fmt.Errorf("load credential %q: %w", cred.Name, err)
	}
	return nil
}

// CredentialByID loads one credential; nil id yields nil without error.
func (s *Store) CredentialByID(ctx context.Context, id *int64) (*schema.Credential, error) {
	if id == nil {
		return nil, nil
	}
	var cred schema.Credential
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT id, name, username, ssh_private_key FROM credentials WHERE id = ?"), *id)
	err := row.Scan(&cred.ID, &cred.Name, &cred.Username, &cred.SSHPrivateKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential %d: %w", *id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential %d: %w", *id, err)
	}
	return &cred, nil
}
