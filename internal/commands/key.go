package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func addKey(topLevel *cobra.Command, v *viper.Viper) {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Show or change the calendar key",
		Long: `The calendar key is the only thing that identifies a calendar. Anyone with
the key can read and change it, so share it only with your other devices.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the calendar key in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.out, a.syncer.CalendarID())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Start a new, empty calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			id, err := a.syncer.NewCalendar(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.out, "Now using calendar key %s\n", id)
			printSyncNote(a.out, a.syncer.Status())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "use KEY",
		Short: "Switch to a calendar key from another device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			if err := a.syncer.SwitchCalendar(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.out, "Now using calendar key %s\n", a.syncer.CalendarID())
			printSyncNote(a.out, a.syncer.Status())
			return nil
		},
	})

	topLevel.AddCommand(cmd)
}
