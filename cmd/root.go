package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/j4cko/hdf5-metadataindex/internal/catalog"
	"github.com/j4cko/hdf5-metadataindex/internal/config"
	"github.com/j4cko/hdf5-metadataindex/internal/ingest"
	"github.com/j4cko/hdf5-metadataindex/internal/logger"
	"github.com/j4cko/hdf5-metadataindex/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	fsys    billy.Filesystem // files are addressed by absolute path
}

func (a *app) indexer() *ingest.Indexer {
	return ingest.NewIndexer(ingest.WithLogger(a.log), ingest.WithMetrics(a.metrics))
}

// openCatalog opens the configured catalog. Unless create is set, the
// catalog file must already exist.
func (a *app) openCatalog(create bool) (*catalog.Catalog, error) {
	if !create {
		if _, err := os.Stat(a.cfg.Catalog); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("catalog %s does not exist", a.cfg.Catalog)
		}
	}
	return catalog.Open(a.cfg.Catalog,
		catalog.WithLogger(a.log),
		catalog.WithMetrics(a.metrics),
		catalog.WithSynchronous(a.cfg.SQLite.Synchronous),
	)
}

// runFunc is the body of a subcommand.
type runFunc func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error

// runner turns a runFunc into a cobra RunE.
type runner func(runFunc) func(*cobra.Command, []string) error

// NewRootCmd builds the mdindex command tree. Every call returns an
// independent tree with its own configuration.
func NewRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	// run loads configuration, runs fn and writes the metrics textfile, even
	// when fn failed.
	var run runner = func(fn runFunc) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			a := &app{
				cfg: cfg,
				log: logger.New(logger.Config{
					Level:  cfg.Log.Level,
					Pretty: cfg.Log.Pretty,
					Output: cmd.ErrOrStderr(),
				}),
				metrics: metrics.New(),
				fsys:    osfs.New("/"),
			}
			err = fn(cmd.Context(), cmd, a, args)
			if werr := a.metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
				err = errors.Join(err, fmt.Errorf("write metrics: %w", werr))
			}
			return err
		}
	}

	root := &cobra.Command{
		Use:           "mdindex",
		Short:         "Index and query the metadata of hierarchical data files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default mdindex.yaml in . or ~/.config/mdindex)")
	pf.StringP("catalog", "c", "mdindex.db", "catalog database")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("log-pretty", false, "human readable log output")
	pf.String("metrics-textfile", "", "write Prometheus metrics to this file")
	bindFlags(v, root, map[string]string{
		"catalog":          "catalog",
		"log.level":        "log-level",
		"log.pretty":       "log-pretty",
		"metrics.textfile": "metrics-textfile",
	})

	root.AddCommand(
		indexCmd(run),
		removeCmd(run),
		updateCmd(run),
		updateAllCmd(run),
		filesCmd(run),
		attributesCmd(run),
		queryCmd(run),
		getCmd(run),
		readCmd(run),
		versionCmd(),
	)
	return root
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		// only fails for a nil flag
		_ = v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag))
	}
}

// absPaths resolves file arguments against the working directory, so that
// catalog entries do not depend on where a command was run.
func absPaths(args []string) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		p, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", a, err)
		}
		out[i] = p
	}
	return out, nil
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR", err)
		os.Exit(1)
	}
}
