// devsync bundles browser sources with esbuild and serves them with live reload.
package main

import (
	"os"

	"github.com/hupe1980/devsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
