package bundle

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Output is one artifact written by a build.
type Output struct {
	Path string
	Size int64
}

// Result describes a finished build.
type Result struct {
	Outputs  []Output
	Warnings []string
	Metafile *Metafile
}

// Scripts returns the JavaScript outputs, excluding source maps.
func (r *Result) Scripts() []Output {
	var out []Output

	for _, o := range r.Outputs {
		if filepath.Ext(o.Path) == ".js" {
			out = append(out, o)
		}
	}

	return out
}

// Metafile is the subset of esbuild's metafile devsync reads.
type Metafile struct {
	Inputs  map[string]MetaInput  `json:"inputs"`
	Outputs map[string]MetaOutput `json:"outputs"`
}

// MetaInput is a source file that took part in the build.
type MetaInput struct {
	Bytes int64 `json:"bytes"`
}

// MetaOutput is an emitted file. Keys in Metafile.Outputs are relative to
// the build's working directory.
type MetaOutput struct {
	Bytes      int64        `json:"bytes"`
	EntryPoint string       `json:"entryPoint,omitempty"`
	Imports    []MetaImport `json:"imports"`
}

// MetaImport is a chunk or file imported by an output.
type MetaImport struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// ParseMetafile decodes esbuild's metafile JSON.
func ParseMetafile(data []byte) (*Metafile, error) {
	var m Metafile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing metafile: %w", err)
	}

	return &m, nil
}

// BuildError carries the messages of a failed esbuild run.
type BuildError struct {
	Messages []string
}

func (e *BuildError) Error() string {
	switch len(e.Messages) {
	case 0:
		return "build failed"
	case 1:
		return "build failed: " + e.Messages[0]
	default:
		return fmt.Sprintf("build failed with %d errors:\n  %s",
			len(e.Messages), strings.Join(e.Messages, "\n  "))
	}
}

// newBuildError converts esbuild messages; nil when msgs is empty.
func newBuildError(msgs []api.Message) *BuildError {
	if len(msgs) == 0 {
		return nil
	}

	return &BuildError{Messages: formatMessages(msgs)}
}

func formatMessages(msgs []api.Message) []string {
	out := make([]string, 0, len(msgs))

	for _, m := range msgs {
		text := m.Text
		if m.PluginName != "" {
			text = fmt.Sprintf("[plugin %s] %s", m.PluginName, text)
		}

		if loc := m.Location; loc != nil {
			text = fmt.Sprintf("%s:%d:%d: %s", loc.File, loc.Line, loc.Column, text)
		}

		out = append(out, text)
	}

	return out
}

// newResult builds a Result from an esbuild result. Output paths come from
// the metafile so that they are known regardless of the Write setting.
func newResult(r *api.BuildResult, workDir string) (*Result, error) {
	res := &Result{Warnings: formatMessages(r.Warnings)}

	if r.Metafile == "" {
		return res, nil
	}

	meta, err := ParseMetafile([]byte(r.Metafile))
	if err != nil {
		return nil, err
	}

	res.Metafile = meta

	for p, o := range meta.Outputs {
		res.Outputs = append(res.Outputs, Output{
			Path: filepath.Join(workDir, filepath.FromSlash(p)),
			Size: o.Bytes,
		})
	}

	sort.Slice(res.Outputs, func(i, j int) bool {
		return res.Outputs[i].Path < res.Outputs[j].Path
	})

	return res, nil
}
