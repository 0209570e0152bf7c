// Package schema has the persistent entities and shared value types for all
// parts of repoflux.
package schema

import "time"

// Organization groups repositories that share credentials and scan policy.
// Its allow/deny lists are the defaults for every repository that does not
// set its own.
type Organization struct {
	ID           int64
	Name         string
	CredentialID *int64

	// CheckoutPath, when set, overrides the configured working directory
	// for this organization's clones.
	CheckoutPath string

	DirectoryAllowList string
	DirectoryDenyList  string
	ExtensionAllowList string
	ExtensionDenyList  string
}

// Credential carries the login material used for clones and pulls. The SSH
// key is stored as given; encryption at rest is out of scope here.
type Credential struct {
	ID            int64
	Name          string
	Username      string
	SSHPrivateKey string
}

// Repository is one scanned repository. (Name, OrgID) is unique.
type Repository struct {
	ID      int64
	OrgID   int64
	Name    string
	URL     string
	Enabled bool

	// Scan cursors. LastPulled gates the pull threshold, LastScanned marks
	// the rollup high-water mark.
	LastScanned *time.Time
	LastPulled  *time.Time

	ForceNextPull      bool
	ForceNuclearRescan bool

	// WebhookToken exists so an external webhook receiver can flag the repo
	// for a pull; no HTTP surface lives in this module.
	WebhookToken string

	// Per-repo filter lists. A non-empty list overrides the organization
	// list of the same kind entirely.
	DirectoryAllowList string
	DirectoryDenyList  string
	ExtensionAllowList string
	ExtensionDenyList  string
}

// Author is identified by email. AliasForID is bookkeeping for email
// deduplication only; it never owns history.
type Author struct {
	ID          int64
	Email       string
	DisplayName string
	AliasForID  *int64
}

// Commit is immutable once ingested. AuthorID is nil when the author email
// could not be resolved (merge or root commits without a usable identity).
type Commit struct {
	ID         int64
	RepoID     int64
	SHA        string
	AuthorID   *int64
	AuthorDate time.Time
	CommitDate time.Time
	Subject    string
}

// File is one path within a repository. CreatedByID is the commit that first
// introduced the path; later touches classify as edits because of it.
type File struct {
	ID          int64
	RepoID      int64
	Path        string
	Name        string
	Ext         string
	Binary      bool
	CreatedByID int64
}

// FileChange joins one File and one Commit. The three flags are integers so
// they can be summed directly in aggregation queries.
type FileChange struct {
	ID           int64
	FileID       int64
	CommitID     int64
	LinesAdded   int
	LinesRemoved int
	IsCreate     int
	IsEdit       int
	IsMove       int
}

// Statistic is one rollup row. AuthorID nil means the team aggregate.
// StartDate nil means the lifetime row, which has no period boundary.
type Statistic struct {
	ID        int64
	StartDate *time.Time
	Interval  Interval
	RepoID    int64
	AuthorID  *int64

	LinesAdded   int
	LinesRemoved int
	LinesChanged int
	CommitTotal  int
	FilesChanged int
	AuthorTotal  int
	DaysActive   int
	Creates      int
	Edits        int
	Moves        int

	// Derived fields, recomputable from the sums above.
	AverageCommitSize  int
	CommitsPerDay      int
	LinesChangedPerDay int
	FilesChangedPerDay int
	Bias               int
	Flux               int
	Commitment         float64

	// Lifetime context, denormalized onto every row of the (repo, author)
	// pair so time-series consumers need no join.
	EarliestCommitDate *time.Time
	LatestCommitDate   *time.Time
	DaysSinceSeen      int
	DaysBeforeJoined   int
	Longevity          int
	LastScanned        *time.Time
}

// CopyValuesFrom overwrites every numeric and lifetime field with the values
// from other, keeping identity (repo, author, interval, start date) intact.
// Used by the open-period replace path.
func (s *Statistic) CopyValuesFrom(other *Statistic) {
	s.LinesAdded = other.LinesAdded
	s.LinesRemoved = other.LinesRemoved
	s.LinesChanged = other.LinesChanged
	s.CommitTotal = other.CommitTotal
	s.FilesChanged = other.FilesChanged
	s.AuthorTotal = other.AuthorTotal
	s.DaysActive = other.DaysActive
	s.Creates = other.Creates
	s.Edits = other.Edits
	s.Moves = other.Moves
	s.AverageCommitSize = other.AverageCommitSize
	s.CommitsPerDay = other.CommitsPerDay
	s.LinesChangedPerDay = other.LinesChangedPerDay
	s.FilesChangedPerDay = other.FilesChangedPerDay
	s.Bias = other.Bias
	s.Flux = other.Flux
	s.Commitment = other.Commitment
	s.EarliestCommitDate = other.EarliestCommitDate
	s.LatestCommitDate = other.LatestCommitDate
	s.DaysSinceSeen = other.DaysSinceSeen
	s.DaysBeforeJoined = other.DaysBeforeJoined
	s.Longevity = other.Longevity
	s.LastScanned = other.LastScanned
}

// IngestStats summarizes one ingestion pass for logging and tests.
type IngestStats struct {
	CommitsSeen    int
	CommitsCreated int
	FilesCreated   int
	ChangesCreated int
	LinesFiltered  int
	LinesMalformed int
}
