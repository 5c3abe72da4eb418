package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/scops/internal/orchestrator"
	"github.com/shaiso/scops/internal/telemetry"
)

// NewRootCmd создаёт корневую команду: обработка одного документа
// конфигурации и подкоманда watch.
func NewRootCmd(version string) *cobra.Command {
	var opts Options
	var configPath string
	var output string

	cmd := &cobra.Command{
		Use:   "scops-qsub",
		Short: "Prepare and submit airborne hyperspectral processing runs",
		Long: `Reads a run configuration, prepares the output tree and DEM,
emits per-line status and submits every requested line to the
selected compute backend. Repeated calls for the same configuration
are no-ops once it is submitted or marked as errored.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd, opts, configPath, output)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.SettingsPath, "settings", "", "Settings file (default $"+SettingsEnv+")")
	pf.BoolVarP(&opts.Local, "local", "l", false, "Process lines locally instead of the configured backend")
	pf.DurationVar(&opts.Timeout, "timeout", 0, "Upper bound for one configuration (default from settings)")
	pf.IntVar(&opts.Parallel, "parallel", 0, "Lines submitted concurrently (default from settings)")
	pf.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	pf.BoolVar(&opts.JSON, "json", false, "Output in JSON format")

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Run configuration file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Force the output location")
	cmd.MarkFlagRequired("config")

	cmd.AddCommand(NewWatchCmd(&opts))

	return cmd
}

func runConfig(cmd *cobra.Command, opts Options, configPath, output string) error {
	s, err := opts.LoadSettings()
	if err != nil {
		return err
	}

	configPath, err = filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	runLog, err := telemetry.OpenRunLog(s.QsubLogDir, configPath)
	if err != nil {
		return err
	}
	defer runLog.Close()
	logger := telemetry.SetupLogger(io.MultiWriter(cmd.ErrOrStderr(), runLog))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	a, err := newApp(ctx, opts, s, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	report, runErr := a.orch.Run(ctx, orchestrator.Request{ConfigPath: configPath, Output: output})
	a.flushMetrics()

	NewOutput(opts.JSON, cmd.OutOrStdout(), cmd.ErrOrStderr()).PrintReport(report)
	return runErr
}
