package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/repoflux/repoflux/schema"
)

// addRepoCmd registers a repository inside an existing organization.
var addRepoCmd = &cobra.Command{
	Use:   "addrepo <name> <url>",
	Short: "Register a repository for scanning.",
	Long: `Addrepo creates a repository under an organization. The URL is
whatever git accepts: https, ssh, or a local path. Repositories are enabled
by default; pass --disabled to register without scanning.

Non-empty per-repo filter lists override the organization's list of the
same kind entirely.`,
	Args:     cobra.ExactArgs(2),
	PreRunE:  sharedSetup,
	PostRunE: sharedTeardown,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		url := strings.TrimSpace(args[1])
		if name == "" || url == "" {
			return fmt.Errorf("repository name and url must not be empty")
		}

		orgName, _ := cmd.Flags().GetString("org")
		org, err := db.OrganizationByName(rootCtx, orgName)
		if err != nil {
			return err
		}

		disabled, _ := cmd.Flags().GetBool("disabled")
		repo := &schema.Repository{
			OrgID:   org.ID,
			Name:    name,
			URL:     url,
			Enabled: !disabled,
		}
		repo.DirectoryAllowList, _ = cmd.Flags().GetString("dir-allow")
		repo.DirectoryDenyList, _ = cmd.Flags().GetString("dir-deny")
		repo.ExtensionAllowList, _ = cmd.Flags().GetString("ext-allow")
		repo.ExtensionDenyList, _ = cmd.Flags().GetString("ext-deny")

		if err := db.CreateRepository(rootCtx, repo); err != nil {
			return err
		}
		cmd.Printf("Created repository %s/%s (id %d)\n", org.Name, repo.Name, repo.ID)
		return nil
	},
}
