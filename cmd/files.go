package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/j4cko/hdf5-metadataindex/internal/catalog"
	"github.com/j4cko/hdf5-metadataindex/internal/ingest"
	"github.com/spf13/cobra"
)

func indexCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:     "index [file...]",
		Aliases: []string{"add"},
		Short:   "Index container files into the catalog",
		Args:    cobra.MinimumNArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			paths, err := absPaths(args)
			if err != nil {
				return err
			}
			c, err := a.openCatalog(true)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ix := a.indexer()
			for _, p := range paths {
				if err := indexFile(ctx, a, c, ix, p); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func indexFile(ctx context.Context, a *app, c *catalog.Catalog, ix *ingest.Indexer, path string) error {
	src, err := ingest.OpenContainer(a.fsys, path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	idx, err := ix.Index(ctx, src)
	if err != nil {
		return err
	}
	if err := c.InsertIndex(ctx, idx); err != nil {
		return err
	}
	a.log.Info().Str("file", path).Int("datasets", len(idx)).Msg("indexed")
	return nil
}

func removeCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:     "rm [file...]",
		Aliases: []string{"remove"},
		Short:   "Remove files from the catalog",
		Args:    cobra.MinimumNArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			paths, err := absPaths(args)
			if err != nil {
				return err
			}
			c, err := a.openCatalog(false)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			for _, p := range paths {
				if err := c.RemoveFile(ctx, p); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

// ErrUpToDate is returned by update for a file that has not changed.
var ErrUpToDate = errors.New("file does not need an update")

func updateCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "update [file...]",
		Short: "Re-index modified files and drop vanished ones",
		Long: "Re-index modified files and drop vanished ones. To force re-indexing " +
			"of an unchanged file, remove it and add it again.",
		Args: cobra.MinimumNArgs(1),
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			paths, err := absPaths(args)
			if err != nil {
				return err
			}
			c, err := a.openCatalog(false)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			for _, p := range paths {
				f, err := c.File(ctx, p)
				if err != nil {
					return err
				}
				state, err := catalog.Check(a.fsys, f)
				if err != nil {
					return err
				}
				if state == catalog.Current {
					return fmt.Errorf("%w: %s", ErrUpToDate, p)
				}
				if _, err := c.UpdateFile(ctx, a.fsys, a.indexer(), p); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func updateAllCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "updateAll",
		Short: "Bring every catalogued file up to date",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			c, err := a.openCatalog(false)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			files, err := c.Files(ctx)
			if err != nil {
				return err
			}
			ix := a.indexer()
			out := cmd.OutOrStdout()
			for _, f := range files {
				state, err := c.UpdateFile(ctx, a.fsys, ix, f.Filename)
				if err != nil {
					return err
				}
				switch state {
				case catalog.Outdated:
					fmt.Fprintf(out, "updated %q\n", f.Filename)
				case catalog.Missing:
					fmt.Fprintf(out, "removed %q, it no longer exists\n", f.Filename)
				default:
					fmt.Fprintf(out, "%q is up to date\n", f.Filename)
				}
			}
			return nil
		}),
	}
}

func filesCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List catalogued files with their status",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			c, err := a.openCatalog(false)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			files, err := c.Files(ctx)
			if err != nil {
				return err
			}
			for _, f := range files {
				state, err := catalog.Check(a.fsys, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%5s %s\n", state.Marker(), f.Filename)
			}
			return nil
		}),
	}
}

func attributesCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "attributes",
		Short: "List attribute names and types",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			c, err := a.openCatalog(false)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			defs, err := c.Attributes(ctx)
			if err != nil {
				return err
			}
			for _, d := range defs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.Name, d.Type)
			}
			return nil
		}),
	}
}
