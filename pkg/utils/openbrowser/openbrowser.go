// Package openbrowser opens URLs in the desktop browser.
package openbrowser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// start is replaced in tests.
var start = func(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

func command(goos string, url string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return "xdg-open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	case "darwin":
		return "open", []string{url}, nil
	}
	return "", nil, fmt.Errorf("unsupported platform: %s", goos)
}

// Open starts the platform's URL handler without waiting for it.
func Open(url string) error {
	name, args, err := command(runtime.GOOS, url)
	if err != nil {
		return err
	}
	return start(name, args...)
}

// LocalURL is the address of a forwarded local port.
func LocalURL(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}
