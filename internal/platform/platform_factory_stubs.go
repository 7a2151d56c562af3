//go:build !(js && wasm)

package platform

// Stub implementation for builds without a browser
func newBrowserTab() (Tab, error) {
	return nil, &UnsupportedPlatformError{OS: "js (not compiled for this platform)"}
}
