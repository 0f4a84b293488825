// File: cmd/browsers.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/hexfn/chauffeur/internal/browsers"
	"github.com/hexfn/chauffeur/internal/observability"
)

// newBrowsersCmd creates the `browsers` command, which lists the browsers
// installed on this machine.
func newBrowsersCmd() *cobra.Command {
	var asJSON bool

	browsersCmd := &cobra.Command{
		Use:   "browsers",
		Short: "List browsers installed on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			found, err := browsers.Discover(logger)
			if err != nil {
				return fmt.Errorf("browser discovery failed: %w", err)
			}

			out := cmd.OutOrStdout()

			if asJSON {
				data, err := jsoniter.ConfigCompatibleWithStandardLibrary.
					MarshalIndent(found, "", "  ")
				if err != nil {
					return fmt.Errorf("could not encode browser list: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if len(found) == 0 {
				fmt.Fprintln(out, "no browsers found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tNAME\tVERSION\tPATH")
			for _, b := range found {
				version := b.Version
				if version == "" {
					version = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Kind, b.Name, version, b.Path)
			}
			return w.Flush()
		},
	}

	browsersCmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return browsersCmd
}

func init() {
	rootCmd.AddCommand(newBrowsersCmd())
}
