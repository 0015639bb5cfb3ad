package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdholdren/linkcal/internal/remote"
)

type syncOptions struct {
	Wait time.Duration
}

func addSync(topLevel *cobra.Command, v *viper.Viper) {
	o := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Send pending changes to the cloud",
		Example: `
linkcal sync
linkcal sync --wait 2m
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if o.Wait > 0 {
				err = a.syncer.WaitOnline(ctx, o.Wait)
			} else if err = a.syncer.DetectCloud(ctx); err == nil {
				err = a.syncer.FlushPending(ctx)
			}
			if err != nil && !remote.IsConnectivity(err) {
				return err
			}

			left := len(a.syncer.Pending())
			printSyncNote(a.out, a.syncer.Status())
			if left > 0 {
				return fmt.Errorf("%d change(s) still pending", left)
			}
			_, _ = fmt.Fprintln(a.out, "Nothing pending.")

			return nil
		},
	}

	cmd.Flags().DurationVar(&o.Wait, "wait", 0, "Keep trying for this long if the cloud is unavailable.")

	topLevel.AddCommand(cmd)
}

func addStatus(topLevel *cobra.Command, v *viper.Viper) {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the calendar key and cloud status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, v)
			if err != nil {
				return err
			}
			_ = a.syncer.DetectCloud(cmd.Context())

			printStatus(a.out, a.syncer.CalendarID(), a.server, a.syncer.Status(), len(a.syncer.Pending()))
			return nil
		},
	}

	topLevel.AddCommand(cmd)
}
