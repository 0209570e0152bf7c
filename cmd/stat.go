package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/repoflux/repoflux/internal/report"
	"github.com/repoflux/repoflux/internal/store"
	"github.com/repoflux/repoflux/schema"
)

// statCmd reports stored rollup rows for one repository.
var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Report rolled-up statistics for a repository.",
	Long: `Stat reads the statistics a previous scan produced and renders them
as a table, CSV, JSON, or Parquet. The default series is the team aggregate;
pass --author to select one contributor by email.

Parquet output goes to --output-file; the other formats stream to stdout
unless --output-file is set.`,
	PreRunE:  sharedSetup,
	PostRunE: sharedTeardown,
	RunE: func(cmd *cobra.Command, _ []string) error {
		orgName, _ := cmd.Flags().GetString("org")
		repoName, _ := cmd.Flags().GetString("repo")

		org, err := db.OrganizationByName(rootCtx, orgName)
		if err != nil {
			return err
		}
		repo, err := db.RepositoryByName(rootCtx, org.ID, repoName)
		if err != nil {
			return err
		}

		filter := store.StatFilter{RepoID: repo.ID}

		intervalStr, _ := cmd.Flags().GetString("interval")
		interval := schema.Interval(strings.ToLower(intervalStr))
		if !interval.Valid() {
			return fmt.Errorf("invalid interval %q: must be day, week, month, or lifetime", intervalStr)
		}
		filter.Interval = interval

		if email, _ := cmd.Flags().GetString("author"); email != "" {
			// Emails are stored as written, so the lookup is exact.
			author, err := db.AuthorByEmail(rootCtx, strings.TrimSpace(email))
			if err != nil {
				return err
			}
			filter.AuthorID = &author.ID
		}

		if filter.Start, err = parseDateFlag(cmd, "start"); err != nil {
			return err
		}
		if filter.End, err = parseDateFlag(cmd, "end"); err != nil {
			return err
		}

		formatStr, _ := cmd.Flags().GetString("format")
		format := report.Format(strings.ToLower(formatStr))
		if _, ok := report.ValidFormats[format]; !ok {
			return fmt.Errorf("invalid format %q: must be table, csv, json, or parquet", formatStr)
		}

		stats, err := db.Statistics(rootCtx, filter)
		if err != nil {
			return err
		}
		authors, err := db.AuthorsForRepo(rootCtx, repo.ID)
		if err != nil {
			return err
		}
		emails := make(map[int64]string, len(authors))
		for _, a := range authors {
			emails[a.ID] = a.Email
		}
		rows := report.BuildRows(repo.Name, emails, stats)

		outputFile, _ := cmd.Flags().GetString("output-file")
		var out io.Writer = cmd.OutOrStdout()
		if outputFile != "" && format != report.ParquetFormat {
			file, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer func() { _ = file.Close() }()
			out = file
		}
		return report.WriteRows(out, format, outputFile, rows)
	},
}

// parseDateFlag parses an optional YYYY-MM-DD flag as a UTC day boundary.
func parseDateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s date %q: want YYYY-MM-DD", name, value)
	}
	return &t, nil
}
