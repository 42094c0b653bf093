package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/evanw/esbuild/pkg/api"
)

const elmNamespace = "elm"

// DefaultElmConstraint is the compiler range the generated wrapper expects.
const DefaultElmConstraint = ">= 0.19.0"

// ElmOptions configures ElmPlugin.
type ElmOptions struct {
	// Binary is the elm executable. Defaults to "elm" on PATH.
	Binary string

	// Constraint is a semver range the compiler version must satisfy.
	Constraint string

	// Optimize passes --optimize to elm make.
	Optimize bool

	// Debug passes --debug to elm make. Ignored when Optimize is set.
	Debug bool
}

// ElmPlugin returns an esbuild plugin that compiles imported *.elm modules
// with `elm make` and exposes them as an ES module exporting Elm.
func ElmPlugin(opts ElmOptions) api.Plugin {
	if opts.Binary == "" {
		opts.Binary = "elm"
	}

	if opts.Constraint == "" {
		opts.Constraint = DefaultElmConstraint
	}

	var (
		once     sync.Once
		checkErr error
	)

	return api.Plugin{
		Name: "elm",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `\.elm$`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					p := args.Path
					if !filepath.IsAbs(p) {
						p = filepath.Join(args.ResolveDir, p)
					}

					return api.OnResolveResult{Path: p, Namespace: elmNamespace}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: elmNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					once.Do(func() { checkErr = checkElmVersion(opts) })
					if checkErr != nil {
						return api.OnLoadResult{}, checkErr
					}

					js, err := compileElm(opts, args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}

					contents := wrapElm(js)

					return api.OnLoadResult{
						Contents:   &contents,
						Loader:     api.LoaderJS,
						ResolveDir: filepath.Dir(args.Path),
						WatchFiles: elmSources(filepath.Dir(args.Path)),
					}, nil
				})
		},
	}
}

// checkElmVersion runs `elm --version` and matches it against the constraint.
func checkElmVersion(opts ElmOptions) error {
	out, err := exec.CommandContext(context.Background(), opts.Binary, "--version").Output() //nolint:gosec
	if err != nil {
		return fmt.Errorf("running %s --version: %w", opts.Binary, err)
	}

	raw := strings.TrimSpace(string(out))

	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("parsing elm version %q: %w", raw, err)
	}

	c, err := semver.NewConstraint(opts.Constraint)
	if err != nil {
		return fmt.Errorf("parsing elm constraint %q: %w", opts.Constraint, err)
	}

	if !c.Check(v) {
		return fmt.Errorf("elm %s does not satisfy %s", v, opts.Constraint)
	}

	return nil
}

// compileElm runs elm make for path and returns the generated JavaScript.
func compileElm(opts ElmOptions, path string) (string, error) {
	tmp, err := os.MkdirTemp("", "devsync-elm-")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	out := filepath.Join(tmp, "elm.js")
	args := []string{"make", path, "--output=" + out}

	switch {
	case opts.Optimize:
		args = append(args, "--optimize")
	case opts.Debug:
		args = append(args, "--debug")
	}

	cmd := exec.CommandContext(context.Background(), opts.Binary, args...) //nolint:gosec
	cmd.Dir = filepath.Dir(path)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("elm make %s: %w", filepath.Base(path), err)
		}

		return "", errors.New(msg)
	}

	js, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("reading elm output: %w", err)
	}

	return string(js), nil
}

// wrapElm turns the compiler's `(function(scope){...}(this));` IIFE into
// an ES module. Bundled modules have no usable `this`.
func wrapElm(js string) string {
	const tail = "}(this));"

	if i := strings.LastIndex(js, tail); i >= 0 {
		js = js[:i] + "}(scope));" + js[i+len(tail):]
	}

	return "const scope = {};\n" + js + "\nexport const Elm = scope.Elm;\nexport default scope.Elm;\n"
}

// elmSources lists the *.elm files next to the compiled module so that
// watch mode rebuilds when an imported Elm module changes.
func elmSources(dir string) []string {
	var files []string

	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.IsDir() && p != dir && (strings.HasPrefix(d.Name(), ".") ||
			d.Name() == "elm-stuff" || d.Name() == "node_modules") {
			return filepath.SkipDir
		}

		if !d.IsDir() && filepath.Ext(p) == ".elm" {
			files = append(files, p)
		}

		return nil
	})

	return files
}
