package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/repoflux/repoflux/schema"
)

// addOrgCmd registers an organization, optionally with credentials.
var addOrgCmd = &cobra.Command{
	Use:   "addorg <name>",
	Short: "Register an organization to group repositories under.",
	Long: `Addorg creates an organization. Repositories belong to exactly one
organization and inherit its checkout path, credentials, and allow/deny
filter lists unless they set their own.

Pass --username together with --ssh-key-file to store clone credentials for
every repository in the organization.`,
	Args:     cobra.ExactArgs(1),
	PreRunE:  sharedSetup,
	PostRunE: sharedTeardown,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" {
			return fmt.Errorf("organization name must not be empty")
		}

		org := &schema.Organization{Name: name}
		org.CheckoutPath, _ = cmd.Flags().GetString("checkout-path")
		org.DirectoryAllowList, _ = cmd.Flags().GetString("dir-allow")
		org.DirectoryDenyList, _ = cmd.Flags().GetString("dir-deny")
		org.ExtensionAllowList, _ = cmd.Flags().GetString("ext-allow")
		org.ExtensionDenyList, _ = cmd.Flags().GetString("ext-deny")

		username, _ := cmd.Flags().GetString("username")
		keyFile, _ := cmd.Flags().GetString("ssh-key-file")
		if username != "" || keyFile != "" {
			cred := &schema.Credential{Name: name, Username: username}
			if keyFile != "" {
				key, err := os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("read ssh key file: %w", err)
				}
				cred.SSHPrivateKey = string(key)
			}
			if err := db.CreateCredential(rootCtx, cred); err != nil {
				return err
			}
			org.CredentialID = &cred.ID
		}

		if err := db.CreateOrganization(rootCtx, org); err != nil {
			return err
		}
		cmd.Printf("Created organization %s (id %d)\n", org.Name, org.ID)
		return nil
	},
}
