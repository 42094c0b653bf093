// Package watch provides recursive file watching for devsync's
// development workflow. It monitors a source tree, drops ignored paths
// (dotfiles by default), classifies fsnotify operations into add, change
// and unlink events, and optionally debounces bursts before handing events
// to a single subscriber.
package watch
