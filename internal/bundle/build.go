package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/evanw/esbuild/pkg/api"
)

// ReportFunc receives the outcome of every build, including each rebuild in
// watch mode. Exactly one of res and err is non-nil.
type ReportFunc func(res *Result, err error)

// Run performs a one-shot build, or a watch build when opts.Watch is set.
// In one-shot mode the build error is returned; in watch mode errors go to
// report and Run only returns once ctx is cancelled.
func Run(ctx context.Context, opts Options, report ReportFunc) error {
	if report == nil {
		report = func(*Result, error) {}
	}

	if opts.Watch {
		return Watch(ctx, opts, report)
	}

	res, err := Build(ctx, opts)
	report(res, err)

	return err
}

// Build bundles opts.EntryPoints once and writes the artifacts. A failed
// build returns a *BuildError and writes nothing.
func Build(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.resolve(opts.OutDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	opts.Logger.Debug("bundling",
		slog.Any("entryPoints", opts.EntryPoints),
		slog.String("outdir", opts.OutDir),
		slog.Bool("sourcemap", opts.Sourcemap),
		slog.Bool("minify", opts.Minify),
	)

	r := api.Build(opts.esbuildOptions())

	return finish(&r, opts)
}

// Watch starts esbuild in watch mode and blocks until ctx is cancelled. The
// initial build and every rebuild are passed to report; compile errors do
// not stop watching.
func Watch(ctx context.Context, opts Options, report ReportFunc) error {
	if err := opts.validate(); err != nil {
		return err
	}

	if report == nil {
		report = func(*Result, error) {}
	}

	if err := os.MkdirAll(opts.resolve(opts.OutDir), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	buildOpts := opts.esbuildOptions()
	buildOpts.Plugins = append(buildOpts.Plugins, api.Plugin{
		Name: "devsync-report",
		Setup: func(b api.PluginBuild) {
			b.OnEnd(func(r *api.BuildResult) (api.OnEndResult, error) {
				res, err := finish(r, opts)
				report(res, err)

				return api.OnEndResult{}, nil
			})
		},
	})

	bctx, ctxErr := api.Context(buildOpts)
	if ctxErr != nil {
		return &BuildError{Messages: formatMessages(ctxErr.Errors)}
	}
	defer bctx.Dispose()

	if err := bctx.Watch(api.WatchOptions{}); err != nil {
		return fmt.Errorf("starting watch mode: %w", err)
	}

	opts.Logger.Info("watching for changes", slog.Any("entryPoints", opts.EntryPoints))

	<-ctx.Done()

	return nil
}

// finish converts an esbuild result and persists the metafile.
func finish(r *api.BuildResult, opts Options) (*Result, error) {
	if berr := newBuildError(r.Errors); berr != nil {
		return nil, berr
	}

	res, err := newResult(r, opts.WorkDir)
	if err != nil {
		return nil, err
	}

	if opts.MetafilePath != "" {
		if err := os.WriteFile(opts.resolve(opts.MetafilePath), []byte(r.Metafile), 0o600); err != nil {
			return nil, fmt.Errorf("writing metafile: %w", err)
		}
	}

	for _, o := range res.Outputs {
		opts.Logger.Debug("built file", slog.String("file", o.Path), slog.Int64("bytes", o.Size))
	}

	return res, nil
}
