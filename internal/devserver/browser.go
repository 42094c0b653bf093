package devserver

import (
	"os/exec"
	"runtime"
)

// openBrowser launches the platform's default browser. Tests replace it.
var openBrowser = func(url string) error {
	return browserCommand(runtime.GOOS, url).Start()
}

func browserCommand(goos, url string) *exec.Cmd {
	switch goos {
	case "darwin":
		return exec.Command("open", url)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return exec.Command("xdg-open", url)
	}
}
