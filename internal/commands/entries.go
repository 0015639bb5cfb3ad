package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdholdren/linkcal/internal/linkcal"
)

// Resolves the optional month argument, defaulting to this month.
func monthArg(args []string) (string, error) {
	if len(args) == 0 {
		return linkcal.MonthOf(time.Now()), nil
	}
	if !linkcal.IsMonth(args[0]) {
		return "", fmt.Errorf("%w: month must be YYYY-MM", linkcal.ErrValidation)
	}
	return args[0], nil
}

// Opens the calendar the way the app does at start, then loads month.
func (a *app) openMonth(cmd *cobra.Command, month string) error {
	ctx := cmd.Context()
	if err := a.syncer.Start(ctx); err != nil {
		return err
	}
	// Offline is fine, the cache is shown as is
	_ = a.syncer.LoadMonth(ctx, month)

	return nil
}

func addShow(topLevel *cobra.Command, v *viper.Viper) {
	cmd := &cobra.Command{
		Use:   "show [YYYY-MM]",
		Short: "Show a month as a calendar",
		Example: `
linkcal show
linkcal show 2024-03
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := monthArg(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			if err := a.openMonth(cmd, month); err != nil {
				return err
			}

			entries := a.syncer.MonthEntries(month)
			pending := a.syncer.Pending()
			if err := printMonth(a.out, month, linkcal.DateOf(time.Now()), entries, pending); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.out)
			printEntries(a.out, month, entries, pending)
			printSyncNote(a.out, a.syncer.Status())

			return nil
		},
	}

	topLevel.AddCommand(cmd)
}

func addList(topLevel *cobra.Command, v *viper.Viper) {
	cmd := &cobra.Command{
		Use:   "list [YYYY-MM]",
		Short: "List a month's entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := monthArg(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			if err := a.openMonth(cmd, month); err != nil {
				return err
			}

			printEntries(a.out, month, a.syncer.MonthEntries(month), a.syncer.Pending())
			return nil
		},
	}

	topLevel.AddCommand(cmd)
}

func addGet(topLevel *cobra.Command, v *viper.Viper) {
	cmd := &cobra.Command{
		Use:   "get YYYY-MM-DD",
		Short: "Show the entry for a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := args[0]
			if !linkcal.IsISODate(date) {
				return fmt.Errorf("%w: date must be YYYY-MM-DD", linkcal.ErrValidation)
			}
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			if err := a.openMonth(cmd, date[:7]); err != nil {
				return err
			}

			e, ok := a.syncer.Entry(date)
			if !ok {
				_, _ = fmt.Fprintf(a.out, "Nothing saved for %s.\n", date)
				return nil
			}
			_, pending := a.syncer.Pending()[date]
			printEntry(a.out, e, pending)

			return nil
		},
	}

	topLevel.AddCommand(cmd)
}

type setOptions struct {
	Title string
	URL   string
}

func addSet(topLevel *cobra.Command, v *viper.Viper) {
	o := &setOptions{}

	cmd := &cobra.Command{
		Use:   "set YYYY-MM-DD",
		Short: "Save a title and link for a day",
		Example: `
linkcal set 2024-03-05 --title "Conference talk" --url example.com/talk
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			// Send anything left from earlier runs first
			if err := a.syncer.Start(cmd.Context()); err != nil {
				return err
			}

			e, err := a.syncer.SetEntry(cmd.Context(), args[0], o.Title, o.URL)
			if err != nil {
				return err
			}
			if e.Empty() {
				_, _ = fmt.Fprintf(a.out, "Cleared %s.\n", args[0])
			} else {
				printEntry(a.out, e, false)
			}
			printSyncNote(a.out, a.syncer.Status())

			return nil
		},
	}

	cmd.Flags().StringVarP(&o.Title, "title", "t", "", "Title for the day.")
	cmd.Flags().StringVarP(&o.URL, "url", "u", "", "Link for the day.")

	topLevel.AddCommand(cmd)
}

func addClear(topLevel *cobra.Command, v *viper.Viper) {
	cmd := &cobra.Command{
		Use:   "clear YYYY-MM-DD",
		Short: "Remove a day's entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			if err := a.syncer.Start(cmd.Context()); err != nil {
				return err
			}

			if _, err := a.syncer.SetEntry(cmd.Context(), args[0], "", ""); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.out, "Cleared %s.\n", args[0])
			printSyncNote(a.out, a.syncer.Status())

			return nil
		},
	}

	topLevel.AddCommand(cmd)
}
