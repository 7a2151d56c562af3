package platform

import (
	"runtime"
)

// NewTab returns the tab of the running browser. Outside a js/wasm build
// there is no tab and the caller should use a Page instead.
func NewTab() (Tab, error) {
	switch runtime.GOOS {
	case "js":
		return newBrowserTab()
	default:
		return nil, &UnsupportedPlatformError{OS: runtime.GOOS}
	}
}

// UnsupportedPlatformError represents an error for unsupported platforms
type UnsupportedPlatformError struct {
	OS string
}

func (e *UnsupportedPlatformError) Error() string {
	return "unsupported platform: " + e.OS
}
