package cmd

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/j4cko/hdf5-metadataindex/internal/index"
	"github.com/j4cko/hdf5-metadataindex/internal/payload"
	"github.com/j4cko/hdf5-metadataindex/internal/query"
	"github.com/spf13/cobra"
)

func queryCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "query [json]",
		Short: "Show all datasets matching a query, without reading their data",
		Example: `  mdindex query '{"attributes": {"hpe": {"min": 4}}, "dataset": {"matches": ".*/data"}}'
  mdindex query '[{"attributes": {"mom": [0, 0, 0]}}, {"file": {"newer": 1700000000}}]'`,
		Args: cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			reqs, err := query.ParseRequests(args[0])
			if err != nil {
				return err
			}
			c, err := a.openCatalog(false)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			for _, r := range reqs {
				idx, err := c.Query(ctx, r)
				if err != nil {
					return err
				}
				if err := index.Print(cmd.OutOrStdout(), idx); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func getCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "get [json]",
		Short: "Output the combined data of all datasets matching a query",
		Long: "Output the combined data of all datasets matching a query, one " +
			"complex number per line as real and imaginary part. The query's " +
			"searchmode selects how payloads are combined (default FIRST).",
		Args: cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			reqs, err := query.ParseRequests(args[0])
			if err != nil {
				return err
			}
			c, err := a.openCatalog(false)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			r := payload.NewReader(a.fsys, payload.WithLogger(a.log))
			defer func() { _ = r.Close() }()

			out := cmd.OutOrStdout()
			for _, req := range reqs {
				idx, err := c.Query(ctx, req)
				if err != nil {
					return err
				}
				if len(idx) == 0 {
					a.log.Warn().Msg("no dataset matches the query")
					continue
				}
				data, err := payload.Aggregate(idx, req.SearchMode, r)
				if err != nil {
					return err
				}
				writeData(out, data)
			}
			return nil
		}),
	}
}

func readCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "read [json]",
		Short: "Output the data of one dataset, bypassing the catalog",
		Example: `  mdindex read '{"datasetname": "/g/data", "file": {"filename": "run.json"}, "location": {"row": 3}}'`,
		Args: cobra.ExactArgs(1),
		RunE: run(func(_ context.Context, cmd *cobra.Command, a *app, args []string) error {
			d, err := query.ParseDatasetSpec(args[0])
			if err != nil {
				return err
			}
			paths, err := absPaths([]string{d.File.Filename})
			if err != nil {
				return err
			}
			d.File.Filename = paths[0]

			r := payload.NewReader(a.fsys, payload.WithLogger(a.log))
			defer func() { _ = r.Close() }()
			data, err := r.Read(d)
			if err != nil {
				return err
			}
			writeData(cmd.OutOrStdout(), data)
			return nil
		}),
	}
}

// writeData prints one complex number per line.
func writeData(w io.Writer, data []complex128) {
	for _, z := range data {
		fmt.Fprintf(w, "%.17g %.17g\n", real(z), imag(z))
	}
}

// version is set at build time with -ldflags "-X .../cmd.version=...".
var version = ""

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			v := version
			if v == "" {
				v = "(devel)"
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
					v = info.Main.Version
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "mdindex", v)
		},
	}
}
