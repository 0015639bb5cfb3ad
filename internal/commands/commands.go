// Package commands is the linkcal command line.
package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jdholdren/linkcal/internal/localcache"
	"github.com/jdholdren/linkcal/internal/logger"
	"github.com/jdholdren/linkcal/internal/reconcile"
	"github.com/jdholdren/linkcal/internal/remote"
)

const (
	defaultServer  = "http://localhost:4444"
	defaultDataDir = "~/.linkcal"
)

// New creates the root command.
func New() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "linkcal",
		Short: "A calendar with one link per day, synced to the cloud.",
		Long: `linkcal keeps a title and a link for each day of a calendar.

Everything is saved on this machine first and then sent to the server. Writes
the server hasn't confirmed stay pending and are sent on the next run or with
"linkcal sync".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("server", defaultServer, "Base URL of the linkcal server.")
	flags.String("data-dir", defaultDataDir, "Directory for the local cache and config.toml.")
	flags.String("log-file", "", "Log file, defaults to linkcal.log in the data directory.")
	flags.Bool("debug", false, "Log at debug level.")
	_ = v.BindPFlags(flags)

	v.SetEnvPrefix("LINKCAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	AddCommands(cmd, v)
	return cmd
}

// AddCommands registers every subcommand on topLevel.
func AddCommands(topLevel *cobra.Command, v *viper.Viper) {
	addShow(topLevel, v)
	addList(topLevel, v)
	addGet(topLevel, v)
	addSet(topLevel, v)
	addClear(topLevel, v)
	addSync(topLevel, v)
	addStatus(topLevel, v)
	addExport(topLevel, v)
	addImport(topLevel, v)
	addKey(topLevel, v)
}

// Reads config.toml from the data directory, if there is one. Flags and the
// environment take precedence.
func loadConfig(v *viper.Viper) error {
	dataDir, err := homedir.Expand(v.GetString("data-dir"))
	if err != nil {
		return fmt.Errorf("error resolving data directory: %s", err)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dataDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// app is what a command works with once config is resolved.
type app struct {
	syncer *reconcile.Syncer
	server string
	out    io.Writer
	in     *bufio.Reader
}

func newApp(cmd *cobra.Command, v *viper.Viper) (*app, error) {
	dataDir, err := homedir.Expand(v.GetString("data-dir"))
	if err != nil {
		return nil, fmt.Errorf("error resolving data directory: %s", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("error creating data directory: %w", err)
	}

	logFile := v.GetString("log-file")
	if logFile == "" {
		logFile = filepath.Join(dataDir, "linkcal.log")
	}
	if logFile, err = homedir.Expand(logFile); err != nil {
		return nil, fmt.Errorf("error resolving log file: %s", err)
	}
	level := slog.LevelInfo
	if v.GetBool("debug") {
		level = slog.LevelDebug
	}
	// Stdout is for output, so logs go to a file
	slog.SetDefault(logger.New(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, "text", level))

	a := &app{
		server: v.GetString("server"),
		out:    cmd.OutOrStdout(),
		in:     bufio.NewReader(cmd.InOrStdin()),
	}

	store := localcache.New(localcache.NewDiskKV(filepath.Join(dataDir, "cache")))
	a.syncer, err = reconcile.New(store, remote.New(a.server), reconcile.WithConfirm(func(count int) bool {
		return a.confirm(fmt.Sprintf("Found %d saved day link(s) from an older version.\nImport them into your cloud calendar now?", count))
	}))
	if err != nil {
		return nil, err
	}

	return a, nil
}
