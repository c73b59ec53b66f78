package cmd

import (
	"fmt"

	"github.com/smazurov/framecast/internal/logging"
	"github.com/smazurov/framecast/internal/updater"
	"github.com/spf13/cobra"
)

// CreateUpdateCmd creates the update command, which replaces this binary
// with the latest release.
func CreateUpdateCmd() *cobra.Command {
	var checkOnly bool
	var opts updater.Options

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update framecast to the latest release",
		Long: `Downloads the latest release from GitHub and replaces the running binary. ` +
			`The previous binary is kept alongside with a .old suffix. Restart the service afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := updater.New(opts, logging.GetLogger("updater"))
			if err != nil {
				return err
			}

			var info updater.UpdateInfo
			if checkOnly {
				info, err = u.Check(cmd.Context())
			} else {
				info, err = u.Apply(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case !info.UpdateAvailable:
				_, err = fmt.Fprintf(out, "framecast %s is up to date (latest %s)\n", info.CurrentVersion, info.LatestVersion)
			case checkOnly:
				_, err = fmt.Fprintf(out, "framecast %s is available (running %s): %s\n", info.LatestVersion, info.CurrentVersion, info.ReleaseURL)
			default:
				_, err = fmt.Fprintf(out, "updated framecast %s -> %s, restart to apply\n", info.CurrentVersion, info.LatestVersion)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update is available")
	cmd.Flags().BoolVar(&opts.Prerelease, "prerelease", false, "Include prereleases")
	cmd.Flags().StringVar(&opts.Repository, "repo", updater.DefaultRepository, "GitHub repository slug")
	return cmd
}
