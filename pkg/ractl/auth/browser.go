package auth

import (
	"errors"
	"os/exec"
	"runtime"
)

// OpenBrowser asks the operating system to open url in the default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		path, err := exec.LookPath("xdg-open")
		if err != nil {
			return errors.New("no browser command available")
		}
		cmd = exec.Command(path, url)
	}
	return cmd.Start()
}
