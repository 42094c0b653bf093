// Package output renders, diffs and writes the files devsync generates for
// a project, currently the .devsync.yaml config written by `devsync init`.
package output
