package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdholdren/linkcal/internal/reconcile"
	"github.com/jdholdren/linkcal/internal/remote"
)

type exportOptions struct {
	Output string
}

func addExport(topLevel *cobra.Command, v *viper.Viper) {
	o := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole calendar as JSON",
		Long: `Writes the whole calendar as JSON. When the cloud can't be reached the local
cache is written instead, including changes that are still pending.`,
		Example: `
linkcal export -o link-calendar-export.json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}

			exp, local, err := a.syncer.Export(cmd.Context())
			if err != nil {
				return err
			}
			byts, err := json.MarshalIndent(exp, "", "  ")
			if err != nil {
				return fmt.Errorf("error encoding export: %s", err)
			}
			byts = append(byts, '\n')

			if o.Output == "" || o.Output == "-" {
				_, err = a.out.Write(byts)
			} else {
				err = os.WriteFile(o.Output, byts, 0o600)
			}
			if err != nil {
				return fmt.Errorf("error writing export: %w", err)
			}

			if local {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Cloud export failed; exported local cache instead.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&o.Output, "output", "o", "", "File to write, stdout if unset.")

	topLevel.AddCommand(cmd)
}

type importOptions struct {
	DryRun bool
	Yes    bool
}

func addImport(topLevel *cobra.Command, v *viper.Viper) {
	o := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Merge an exported file into the current calendar",
		Long: `Merges an exported file into the current calendar key. Days in the file
replace the same days in the calendar; other days are left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byts, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error reading %s: %w", args[0], err)
			}

			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}

			if o.DryRun {
				entries, err := reconcile.ParseImport(bytes.NewReader(byts))
				if err != nil {
					return err
				}
				for _, e := range entries {
					_, _ = fmt.Fprintf(a.out, "%s  %s  %s\n", e.Date, e.Title, e.URL)
				}
				_, _ = fmt.Fprintf(a.out, "%d entries would be imported.\n", len(entries))
				return nil
			}

			if !o.Yes && !a.confirm("Import will MERGE into your current calendar key. Continue?") {
				return nil
			}

			n, err := a.syncer.Import(cmd.Context(), bytes.NewReader(byts))
			if err != nil && !remote.IsConnectivity(err) {
				return err
			}
			_, _ = fmt.Fprintf(a.out, "Imported %d entries.\n", n)
			printSyncNote(a.out, a.syncer.Status())

			return nil
		},
	}

	cmd.Flags().BoolVar(&o.DryRun, "dry-run", false, "Only show what would be imported.")
	cmd.Flags().BoolVarP(&o.Yes, "yes", "y", false, "Don't ask for confirmation.")

	topLevel.AddCommand(cmd)
}
