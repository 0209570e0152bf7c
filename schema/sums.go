package schema

// StatSums is the single aggregate-sums shape shared by the daily and
// interval rollup paths. Both feed the same derivation methods, so there is
// exactly one set of divide-by-zero rules.
type StatSums struct {
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
}

// DivTrunc divides a by b as floats and truncates toward zero, returning 0
// when b is 0. The truncation (7/2 == 3, never 4) is a reproducible contract
// relied on by downstream consumers of stored statistics.
func DivTrunc(a, b int) int {
	if b == 0 {
		return 0
	}
	return int(float64(a) / float64(b))
}

// AverageCommitSize is lines changed per commit, truncated.
func (s StatSums) AverageCommitSize() int {
	return DivTrunc(s.LinesChanged, s.CommitTotal)
}

// CommitsPerDay is commits per active day, truncated.
func (s StatSums) CommitsPerDay() int {
	return DivTrunc(s.CommitTotal, s.DaysActive)
}

// LinesChangedPerDay is lines changed per active day, truncated.
func (s StatSums) LinesChangedPerDay() int {
	return DivTrunc(s.LinesChanged, s.DaysActive)
}

// FilesChangedPerDay is files changed per active day, truncated.
func (s StatSums) FilesChangedPerDay() int {
	return DivTrunc(s.FilesChanged, s.DaysActive)
}

// Flux is lines changed per file touched, a density measure of how
// concentrated the period's change was.
func (s StatSums) Flux() int {
	return DivTrunc(s.LinesChanged, s.FilesChanged)
}

// Bias is lines added minus lines removed. It stays 0 unless both operands
// are nonzero: a period that only ever added (or only removed) lines reads
// as neutral rather than extreme.
func (s StatSums) Bias() int {
	if s.LinesAdded == 0 || s.LinesRemoved == 0 {
		return 0
	}
	return s.LinesAdded - s.LinesRemoved
}

// ApplySums copies the raw sums onto the row and recomputes every derived
// ratio field from them. Lifetime fields are the rollup engine's to fill.
func (s *Statistic) ApplySums(sums StatSums) {
	s.LinesAdded = sums.LinesAdded
	s.LinesRemoved = sums.LinesRemoved
	s.LinesChanged = sums.LinesChanged
	s.CommitTotal = sums.CommitTotal
	s.FilesChanged = sums.FilesChanged
	s.AuthorTotal = sums.AuthorTotal
	s.DaysActive = sums.DaysActive
	s.Creates = sums.Creates
	s.Edits = sums.Edits
	s.Moves = sums.Moves
	s.AverageCommitSize = sums.AverageCommitSize()
	s.CommitsPerDay = sums.CommitsPerDay()
	s.LinesChangedPerDay = sums.LinesChangedPerDay()
	s.FilesChangedPerDay = sums.FilesChangedPerDay()
	s.Flux = sums.Flux()
	s.Bias = sums.Bias()
}

// Sums reconstructs the aggregate-sums view of a stored row, used when a
// coarser interval is derived from finer rows.
func (s *Statistic) Sums() StatSums {
	return StatSums{
		LinesAdded:   s.LinesAdded,
		LinesRemoved: s.LinesRemoved,
		LinesChanged: s.LinesChanged,
		CommitTotal:  s.CommitTotal,
		FilesChanged: s.FilesChanged,
		AuthorTotal:  s.AuthorTotal,
		DaysActive:   s.DaysActive,
		Creates:      s.Creates,
		Edits:        s.Edits,
		Moves:        s.Moves,
	}
}
