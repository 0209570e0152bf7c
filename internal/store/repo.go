package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/repoflux/repoflux/schema"
)

const repoCols = `id, org_id, name, url, enabled, last_pulled, last_scanned,
	force_next_pull, force_nuclear_rescan, webhook_token,
	dir_allow, dir_deny, ext_allow, ext_deny`

// CreateRepository inserts a new repository. (org_id, name) must be unique.
func (s *Store) CreateRepository(ctx context.Context, repo *schema.Repository) error {
	query := s.rebind(`INSERT INTO repositories
		(org_id, name, url, enabled, webhook_token, dir_allow, dir_deny, ext_allow, ext_deny)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		repo.OrgID, repo.Name, repo.URL, boolInt(repo.Enabled), repo.WebhookToken,
		repo.DirectoryAllowList, repo.DirectoryDenyList,
		repo.ExtensionAllowList, repo.ExtensionDenyList)
	if err != nil {
		return fmt.Errorf("create repository %q: %w", repo.Name, err)
	}
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT id FROM repositories WHERE org_id = ? AND name = ?"), repo.OrgID, repo.Name)
	if err := row.Scan(&repo.ID); err != nil {
		return fmt.Errorf("load repository %q: %w", repo.Name, err)
	}
	return nil
}

// RepositoryByName looks up one repository within an organization.
func (s *Store) RepositoryByName(ctx context.Context, orgID int64, name string) (*schema.Repository, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT "+repoCols+" FROM repositories WHERE org_id = ? AND name = ?"), orgID, name)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load repository %q: %w", name, err)
	}
	return repo, nil
}

// ScanTarget bundles a repository with the organization and credential the
// scanner needs to process it.
type ScanTarget struct {
	Repo schema.Repository
	Org  schema.Organization
	Cred *schema.Credential
}

// ScanTargets lists enabled repositories for a scan run, optionally filtered
// to one organization by name. Credentials come from the owning organization.
func (s *Store) ScanTargets(ctx context.Context, orgName string) ([]ScanTarget, error) {
	query := `SELECT r.id, r.org_id, r.name, r.url, r.enabled, r.last_pulled, r.last_scanned,
		r.force_next_pull, r.force_nuclear_rescan, r.webhook_token,
		r.dir_allow, r.dir_deny, r.ext_allow, r.ext_deny
		FROM repositories r JOIN organizations o ON o.id = r.org_id
		WHERE r.enabled = 1`
	var args []any
	if orgName != "" {
		query += " AND o.name = ?"
		args = append(args, orgName)
	}
	query += " ORDER BY o.name, r.name"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list scan targets: %w", err)
	}
	defer rows.Close()

	var repos []schema.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("list scan targets: %w", err)
		}
		repos = append(repos, *repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scan targets: %w", err)
	}

	orgs := map[int64]*schema.Organization{}
	creds := map[int64]*schema.Credential{}
	var out []ScanTarget
	for _, repo := range repos {
		org, ok := orgs[repo.OrgID]
		if !ok {
			org, err = s.organizationByID(ctx, repo.OrgID)
			if err != nil {
				return nil, err
			}
			orgs[repo.OrgID] = org
		}
		var cred *schema.Credential
		if org.CredentialID != nil {
			cred, ok = creds[*org.CredentialID]
			if !ok {
				cred, err = s.CredentialByID(ctx, org.CredentialID)
				if err != nil {
					return nil, err
				}
				creds[*org.CredentialID] = cred
			}
		}
		out = append(out, ScanTarget{Repo: repo, Org: *org, Cred: cred})
	}
	return out, nil
}

func (s *Store) organizationByID(ctx context.Context, id int64) (*schema.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+orgCols+" FROM organizations WHERE id = ?"), id)
	org, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("organization %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load organization %d: %w", id, err)
	}
	return org, nil
}

// SetLastPulled records a completed pull and clears any force-pull flag.
func (s *Store) SetLastPulled(ctx context.Context, repoID int64, at time.Time) error {
	query := s.rebind(
		"UPDATE repositories SET last_pulled = ?, force_next_pull = 0 WHERE id = ?")
	if _, err := s.db.ExecContext(ctx, query, fmtTime(at), repoID); err != nil {
		return fmt.Errorf("record pull for repo %d: %w", repoID, err)
	}
	return nil
}

// SetLastScanned advances the rollup high-water mark.
func (s *Store) SetLastScanned(ctx context.Context, repoID int64, at time.Time) error {
	query := s.rebind("UPDATE repositories SET last_scanned = ? WHERE id = ?")
	if _, err := s.db.ExecContext(ctx, query, fmtTime(at), repoID); err != nil {
		return fmt.Errorf("record scan for repo %d: %w", repoID, err)
	}
	return nil
}

// NuclearReset deletes every commit, file, file change, and statistic for a
// repository and resets its scan cursors. Destructive; the caller warns first.
func (s *Store) NuclearReset(ctx context.Context, repoID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("nuclear reset repo %d: %w", repoID, err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []string{
		"DELETE FROM file_changes WHERE commit_id IN (SELECT id FROM commits WHERE repo_id = ?)",
		"DELETE FROM files WHERE repo_id = ?",
		"DELETE FROM commits WHERE repo_id = ?",
		"DELETE FROM statistics WHERE repo_id = ?",
		`UPDATE repositories SET last_scanned = NULL, last_pulled = NULL,
			force_nuclear_rescan = 0 WHERE id = ?`,
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, s.rebind(step), repoID); err != nil {
			return fmt.Errorf("nuclear reset repo %d: %w", repoID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("nuclear reset repo %d: %w", repoID, err)
	}
	return nil
}

func scanRepository(r rowScanner) (*schema.Repository, error) {
	var repo schema.Repository
	var enabled, forcePull, forceNuclear int
	var lastPulled, lastScanned sql.NullString
	err := r.Scan(&repo.ID, &repo.OrgID, &repo.Name, &repo.URL, &enabled,
		&lastPulled, &lastScanned, &forcePull, &forceNuclear, &repo.WebhookToken,
		&repo.DirectoryAllowList, &repo.DirectoryDenyList,
		&repo.ExtensionAllowList, &repo.ExtensionDenyList)
	if err != nil {
		return nil, err
	}
	repo.Enabled = enabled != 0
	repo.ForceNextPull = forcePull != 0
	repo.ForceNuclearRescan = forceNuclear != 0
	if repo.LastPulled, err = scanTimePtr(lastPulled); err != nil {
		return nil, err
	}
	if repo.LastScanned, err = scanTimePtr(lastScanned); err != nil {
		return nil, err
	}
	return &repo, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
