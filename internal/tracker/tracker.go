package tracker

import (
	"sync"
	"time"

	"Mansoor88-6/site-analytics/internal/models"
	"Mansoor88-6/site-analytics/internal/platform"
	"Mansoor88-6/site-analytics/internal/session"

	"go.uber.org/zap"
)

// ActivityState says whether on-page time is being counted
type ActivityState string

const (
	StateActive ActivityState = "active"
	StateHidden ActivityState = "hidden"
)

// Tracker emits page views, durations and interactions for one tab
type Tracker struct {
	tab        platform.Tab
	sessions   *session.Manager
	dispatcher *Dispatcher
	logger     *zap.Logger
	now        func() time.Time

	mu           sync.Mutex
	started      bool
	sessionID    string
	currentPath  string
	marker       time.Time
	currentState ActivityState
	unsubscribe  []func()
}

// NewTracker creates a tracker for tab. now may be nil.
func NewTracker(tab platform.Tab, dispatcher *Dispatcher, logger *zap.Logger, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		tab:          tab,
		sessions:     session.NewManager(tab.Storage()),
		dispatcher:   dispatcher,
		logger:       logger,
		now:          now,
		currentState: StateActive,
	}
}

// Start sends the landing page view and begins observing the tab.
// Calling it again is a no-op.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.sessionID = t.sessions.GetOrCreate()
	t.currentPath = t.tab.Path()
	t.marker = t.now()
	t.currentState = StateActive

	req := models.TrackPageViewRequest{
		Path:      t.currentPath,
		SessionID: t.sessionID,
	}
	if referrer := t.tab.Referrer(); referrer != "" {
		req.Referer = &referrer
	}
	t.mu.Unlock()

	t.dispatcher.PageView(req)

	unsubscribe := []func(){
		t.tab.OnNavigate(t.handleNavigate),
		t.tab.OnVisibilityChange(t.handleVisibility),
		t.tab.OnUnload(t.handleUnload),
	}

	t.mu.Lock()
	t.unsubscribe = unsubscribe
	t.mu.Unlock()

	t.logger.Debug("Tracker started",
		zap.String("session_id", req.SessionID),
		zap.String("path", req.Path),
	)
}

// Stop detaches from the tab without sending anything
func (t *Tracker) Stop() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.started = false
	t.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
}

// SessionID returns the session id, creating it if the tracker has not
// started yet
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID == "" {
		t.sessionID = t.sessions.GetOrCreate()
	}
	return t.sessionID
}

// CurrentPath returns the last path a page view was sent for
func (t *Tracker) CurrentPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.currentPath == "" {
		return t.tab.Path()
	}
	return t.currentPath
}

// GetCurrentState returns whether on-page time is being counted
func (t *Tracker) GetCurrentState() ActivityState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentState
}

func (t *Tracker) handleNavigate(path string) {
	t.mu.Lock()
	if path == t.currentPath {
		t.mu.Unlock()
		return
	}

	duration, hasDuration := t.elapsedLocked()
	previous := t.currentPath
	t.currentPath = path
	t.marker = t.now()
	sessionID := t.sessionID
	t.mu.Unlock()

	if hasDuration {
		t.sendDuration(sessionID, previous, duration)
	}
	t.dispatcher.PageView(models.TrackPageViewRequest{
		Path:      path,
		SessionID: sessionID,
	})
}

func (t *Tracker) handleVisibility(state platform.Visibility) {
	t.mu.Lock()
	if state == platform.VisibilityVisible {
		t.marker = t.now()
		t.currentState = StateActive
		t.mu.Unlock()
		return
	}

	duration, hasDuration := t.elapsedLocked()
	t.currentState = StateHidden
	path, sessionID := t.currentPath, t.sessionID
	t.mu.Unlock()

	if hasDuration {
		t.sendDuration(sessionID, path, duration)
	}
}

func (t *Tracker) handleUnload() {
	t.mu.Lock()
	duration, hasDuration := t.elapsedLocked()
	t.currentState = StateHidden
	path, sessionID := t.currentPath, t.sessionID
	t.mu.Unlock()

	if hasDuration {
		t.sendDuration(sessionID, path, duration)
	}
}

// elapsedLocked returns the active time since the marker. Hidden time is
// never counted.
func (t *Tracker) elapsedLocked() (time.Duration, bool) {
	if t.currentState != StateActive {
		return 0, false
	}
	return t.now().Sub(t.marker), true
}

func (t *Tracker) sendDuration(sessionID, path string, elapsed time.Duration) {
	seconds := elapsed.Seconds()
	if seconds < models.MinDurationSeconds {
		t.logger.Debug("Dropping short duration",
			zap.String("path", path),
			zap.Duration("elapsed", elapsed),
		)
		return
	}

	t.dispatcher.PageView(models.TrackPageViewRequest{
		Path:      path,
		SessionID: sessionID,
		Duration:  &seconds,
	})
}

// TrackInteraction sends an interaction stamped with the current path and
// session id
func (t *Tracker) TrackInteraction(typ models.InteractionType, element, value string, metadata map[string]any) {
	req := models.TrackInteractionRequest{
		Type:      string(typ),
		SessionID: t.SessionID(),
		Path:      t.CurrentPath(),
		Metadata:  metadata,
	}
	if element != "" {
		req.Element = &element
	}
	if value != "" {
		req.Value = &value
	}
	t.dispatcher.Interaction(req)
}

func (t *Tracker) TrackFormSubmission(formName string, metadata map[string]any) {
	t.TrackInteraction(models.InteractionFormSubmission, formName, "", metadata)
}

func (t *Tracker) TrackButtonClick(label string, metadata map[string]any) {
	t.TrackInteraction(models.InteractionButtonClick, label, "", metadata)
}

// TrackDownload records a file download. element names what was
// downloaded, such as "cv".
func (t *Tracker) TrackDownload(element, fileURL string) {
	t.TrackInteraction(models.InteractionDownload, element, fileURL, nil)
}

func (t *Tracker) TrackExternalLink(label, href string) {
	t.TrackInteraction(models.InteractionExternalLink, label, href, nil)
}

func (t *Tracker) TrackCustomEvent(name, value string, metadata map[string]any) {
	t.TrackInteraction(models.InteractionCustomEvent, name, value, metadata)
}
