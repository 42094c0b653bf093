// Package livereload pushes reload notifications to connected browsers.
//
// A Hub keeps the websocket connections opened by the client script. A
// Bridge watches the build output, matches changed artifacts against the
// script and stylesheet glob sets, and broadcasts a full reload for
// scripts or a stylesheet swap for CSS. The bridge never looks at sources
// and never triggers a build.
package livereload
