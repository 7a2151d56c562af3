package platform

// Tab is the browsing context the tracker runs in
type Tab interface {
	NavigationObserver
	VisibilitySource

	// Path returns the current location path
	Path() string

	// Referrer returns the document referrer, empty when there is none
	Referrer() string

	// Storage returns the tab-scoped session storage
	Storage() SessionStorage
}

// NavigationObserver reports in-page navigations such as history pushes,
// replaces and back/forward moves. Callbacks run synchronously with the
// navigation. The returned function removes the callback.
type NavigationObserver interface {
	OnNavigate(callback func(path string)) (unsubscribe func())
}

// VisibilitySource reports page visibility changes and the unload of the
// document
type VisibilitySource interface {
	OnVisibilityChange(callback func(Visibility)) (unsubscribe func())
	OnUnload(callback func()) (unsubscribe func())
}

// SessionStorage is key/value storage that lives as long as the tab
type SessionStorage interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string)
}

// Visibility is the page visibility state
type Visibility string

const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)
