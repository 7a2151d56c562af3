package platform

import "sync"

// Page is a headless tab. It keeps a history stack and session storage in
// memory and fires the same notices a browser tab would, synchronously and
// on the caller's goroutine.
type Page struct {
	mu       sync.Mutex
	history  []string
	index    int
	referrer string
	visible  bool
	storage  *MemoryStorage

	navigate   listeners[func(string)]
	visibility listeners[func(Visibility)]
	unload     listeners[func()]
}

var _ Tab = (*Page)(nil)

// NewPage opens a visible page at path, arriving from referrer
func NewPage(path, referrer string) *Page {
	return &Page{
		history:  []string{path},
		referrer: referrer,
		visible:  true,
		storage:  NewMemoryStorage(),
	}
}

func (p *Page) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history[p.index]
}

func (p *Page) Referrer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.referrer
}

func (p *Page) Storage() SessionStorage {
	return p.storage
}

func (p *Page) OnNavigate(callback func(path string)) func() {
	return p.navigate.add(callback)
}

func (p *Page) OnVisibilityChange(callback func(Visibility)) func() {
	return p.visibility.add(callback)
}

func (p *Page) OnUnload(callback func()) func() {
	return p.unload.add(callback)
}

// PushState adds an entry after the current one and drops forward history
func (p *Page) PushState(path string) {
	p.mu.Lock()
	p.history = append(p.history[:p.index+1], path)
	p.index++
	p.mu.Unlock()

	p.fireNavigate(path)
}

// ReplaceState swaps the current entry
func (p *Page) ReplaceState(path string) {
	p.mu.Lock()
	p.history[p.index] = path
	p.mu.Unlock()

	p.fireNavigate(path)
}

// Back moves one entry back. It reports false at the start of history.
func (p *Page) Back() bool {
	return p.traverse(-1)
}

// Forward moves one entry forward. It reports false at the end of history.
func (p *Page) Forward() bool {
	return p.traverse(1)
}

func (p *Page) traverse(delta int) bool {
	p.mu.Lock()
	next := p.index + delta
	if next < 0 || next >= len(p.history) {
		p.mu.Unlock()
		return false
	}
	p.index = next
	path := p.history[next]
	p.mu.Unlock()

	p.fireNavigate(path)
	return true
}

// SetVisible changes the visibility state. Setting the current state is a
// no-op.
func (p *Page) SetVisible(visible bool) {
	p.mu.Lock()
	if p.visible == visible {
		p.mu.Unlock()
		return
	}
	p.visible = visible
	p.mu.Unlock()

	state := VisibilityHidden
	if visible {
		state = VisibilityVisible
	}
	for _, cb := range p.visibility.snapshot() {
		cb(state)
	}
}

// Visible reports the visibility state
func (p *Page) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Reload unloads the document and loads it again at the same path.
// Subscriptions are dropped and session storage survives.
func (p *Page) Reload() {
	p.Unload()

	p.mu.Lock()
	p.visible = true
	p.mu.Unlock()
}

// Unload fires the unload notice and drops every subscription
func (p *Page) Unload() {
	for _, cb := range p.unload.snapshot() {
		cb()
	}
	p.navigate.clear()
	p.visibility.clear()
	p.unload.clear()
}

// Close unloads the page and discards its session storage
func (p *Page) Close() {
	p.Unload()
	p.storage.Clear()
}

// Subscribers returns the number of live subscriptions
func (p *Page) Subscribers() int {
	return p.navigate.count() + p.visibility.count() + p.unload.count()
}

func (p *Page) fireNavigate(path string) {
	for _, cb := range p.navigate.snapshot() {
		cb(path)
	}
}
