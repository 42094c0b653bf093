// Package bundle invokes esbuild for devsync. It covers one-shot builds,
// persistent watch builds, the per-doodle output layout, metafile parsing,
// and an esbuild plugin that compiles Elm modules imported from JavaScript.
package bundle
