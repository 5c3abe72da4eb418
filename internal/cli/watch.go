package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/scops/internal/scheduler"
	"github.com/shaiso/scops/internal/telemetry"
)

// NewWatchCmd создаёт команду watch: обход каталога документов по
// расписанию и при появлении новых файлов.
func NewWatchCmd(opts *Options) *cobra.Command {
	var configDir string
	var schedule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process every pending configuration in a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.LoadSettings()
			if err != nil {
				return err
			}
			if configDir == "" {
				configDir = s.Watch.ConfigDir
			}
			if schedule == "" {
				schedule = s.Watch.Schedule
			}

			logger := telemetry.SetupLogger(cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *opts, s, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := scheduler.New(scheduler.Config{
				ConfigDir:  configDir,
				Schedule:   schedule,
				Runner:     runLogRunner{app: a, stderr: cmd.ErrOrStderr()},
				RunTimeout: s.Timeout,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			logger.Info("watching configurations", "dir", configDir, "schedule", schedule)
			return w.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&configDir, "configs", "", "Directory with run configurations (default from settings)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule of directory scans (default from settings)")

	return cmd
}
