//go:build js && wasm

package platform

import (
	"syscall/js"
)

// BrowserTab is the tab the wasm module was loaded into. It wraps
// history.pushState and history.replaceState and listens to popstate so
// every in-page navigation reaches the observers.
type BrowserTab struct {
	window   js.Value
	document js.Value
	storage  *browserStorage

	navigate   listeners[func(string)]
	visibility listeners[func(Visibility)]
	unload     listeners[func()]

	funcs []js.Func

	// unloaded is set by the first of beforeunload and pagehide and
	// cleared when the page is shown again from the back/forward cache
	unloaded bool
}

var _ Tab = (*BrowserTab)(nil)

func newBrowserTab() (Tab, error) {
	window := js.Global()
	t := &BrowserTab{
		window:   window,
		document: window.Get("document"),
		storage:  &browserStorage{store: window.Get("sessionStorage")},
	}
	t.install()
	return t, nil
}

func (t *BrowserTab) Path() string {
	return t.window.Get("location").Get("pathname").String()
}

func (t *BrowserTab) Referrer() string {
	return t.document.Get("referrer").String()
}

func (t *BrowserTab) Storage() SessionStorage {
	return t.storage
}

func (t *BrowserTab) OnNavigate(callback func(path string)) func() {
	return t.navigate.add(callback)
}

func (t *BrowserTab) OnVisibilityChange(callback func(Visibility)) func() {
	return t.visibility.add(callback)
}

func (t *BrowserTab) OnUnload(callback func()) func() {
	return t.unload.add(callback)
}

func (t *BrowserTab) install() {
	history := t.window.Get("history")
	for _, method := range []string{"pushState", "replaceState"} {
		original := history.Get(method).Call("bind", history)
		wrapper := js.FuncOf(func(this js.Value, args []js.Value) any {
			jsArgs := make([]any, len(args))
			for i, a := range args {
				jsArgs[i] = a
			}
			result := original.Invoke(jsArgs...)
			t.fireNavigate()
			return result
		})
		t.funcs = append(t.funcs, wrapper)
		history.Set(method, wrapper)
	}

	t.listen(t.window, "popstate", func() { t.fireNavigate() })

	t.listen(t.document, "visibilitychange", func() {
		state := VisibilityVisible
		if t.document.Get("visibilityState").String() == string(VisibilityHidden) {
			state = VisibilityHidden
		}
		for _, cb := range t.visibility.snapshot() {
			cb(state)
		}
	})

	// beforeunload does not fire when mobile browsers discard a tab
	t.listen(t.window, "beforeunload", t.fireUnload)
	t.listen(t.window, "pagehide", t.fireUnload)
	t.listen(t.window, "pageshow", func() { t.unloaded = false })
}

func (t *BrowserTab) fireUnload() {
	if t.unloaded {
		return
	}
	t.unloaded = true
	for _, cb := range t.unload.snapshot() {
		cb()
	}
}

func (t *BrowserTab) listen(target js.Value, event string, handler func()) {
	fn := js.FuncOf(func(this js.Value, args []js.Value) any {
		handler()
		return nil
	})
	t.funcs = append(t.funcs, fn)
	target.Call("addEventListener", event, fn)
}

func (t *BrowserTab) fireNavigate() {
	path := t.Path()
	for _, cb := range t.navigate.snapshot() {
		cb(path)
	}
}

// browserStorage is window.sessionStorage
type browserStorage struct {
	store js.Value
}

func (s *browserStorage) GetItem(key string) (string, bool) {
	if s.store.IsUndefined() || s.store.IsNull() {
		return "", false
	}
	v := s.store.Call("getItem", key)
	if v.IsNull() || v.IsUndefined() {
		return "", false
	}
	return v.String(), true
}

func (s *browserStorage) SetItem(key, value string) {
	if s.store.IsUndefined() || s.store.IsNull() {
		return
	}
	s.store.Call("setItem", key, value)
}
