// Package reconciler keeps document records current by polling the
// extraction service and merging lightweight status updates with cached full
// payloads.
package reconciler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

// Collaborator is the part of the extraction service the reconciler polls.
type Collaborator interface {
	ListDocuments(ctx context.Context) ([]models.Document, error)
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
}

// StatusChecker is implemented by collaborators with a per-document status
// endpoint. When only the selected document is in flight, most ticks poll
// it instead of the whole list.
type StatusChecker interface {
	GetStatus(ctx context.Context, documentID string) (*models.Document, error)
}

// Sanitizer cleans a record before it is shown.
type Sanitizer interface {
	Sanitize(doc *models.Document) *models.Document
}

type Config struct {
	PollInterval    time.Duration
	MaxPollDuration time.Duration
	FetchTimeout    time.Duration
	// ListEvery forces a full list poll every n ticks while status polling.
	ListEvery int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    2 * time.Second,
		MaxPollDuration: 5 * time.Minute,
		FetchTimeout:    30 * time.Second,
		ListEvery:       5,
	}
}

type EventType string

const (
	EventUpdated        EventType = "document.updated"
	EventPayload        EventType = "document.payload"
	EventSelected       EventType = "document.selected"
	EventOverdue        EventType = "document.overdue"
	EventPollingStarted EventType = "polling.started"
	EventPollingStopped EventType = "polling.stopped"
)

type Event struct {
	Type       EventType             `json:"type"`
	DocumentID string                `json:"documentId,omitempty"`
	Status     models.DocumentStatus `json:"status,omitempty"`
	Message    string                `json:"message,omitempty"`
}

// Reconciler owns the only polling timer in the process.
type Reconciler struct {
	mu        sync.Mutex
	client    Collaborator
	cache     Cache
	sanitizer Sanitizer
	logger    logger.Logger
	cfg       Config
	now       func() time.Time

	records    map[string]*models.Document
	order      []string
	prevStatus map[string]models.DocumentStatus
	fetching   map[string]bool

	selected   string
	selectedAt time.Time
	state      *DocumentState

	// root scopes every fetch and poll; Stop cancels it.
	root        context.Context
	cancelRoot  context.CancelFunc
	started     bool
	stopped     bool
	polling     bool
	stopPolling context.CancelFunc
	pollStarted time.Time

	subscribers map[int]func(Event)
	nextSub     int

	wg sync.WaitGroup
}

type Option func(*Reconciler)

func WithCache(c Cache) Option { return func(r *Reconciler) { r.cache = c } }

func WithSanitizer(s Sanitizer) Option { return func(r *Reconciler) { r.sanitizer = s } }

func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

func New(client Collaborator, cfg Config, log logger.Logger, opts ...Option) *Reconciler {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxPollDuration <= 0 {
		cfg.MaxPollDuration = def.MaxPollDuration
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.ListEvery <= 0 {
		cfg.ListEvery = def.ListEvery
	}
	r := &Reconciler{
		client:      client,
		cache:       NewMemoryCache(),
		logger:      log.Named("reconciler"),
		cfg:         cfg,
		now:         time.Now,
		records:     make(map[string]*models.Document),
		prevStatus:  make(map[string]models.DocumentStatus),
		fetching:    make(map[string]bool),
		subscribers: make(map[int]func(Event)),
	}
	r.root, r.cancelRoot = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start loads the document list once and begins polling if anything is
// still in flight. Polling goroutines stop when ctx is done.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	r.cancelRoot()
	r.root, r.cancelRoot = context.WithCancel(ctx)
	r.started = true
	r.stopped = false
	ctx = r.root
	r.mu.Unlock()

	err := r.Refresh(ctx)
	if err != nil {
		r.logger.Warn("Initial document list failed, polling will retry", logger.Error(err))
	}

	r.mu.Lock()
	if err != nil || !r.settledLocked() {
		r.ensurePollingLocked()
	}
	r.mu.Unlock()
	return err
}

// Stop halts polling, cancels in-flight fetches and waits for them. Nothing
// restarts the timer afterwards until the next Start.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.cancelRoot()
	if r.stopPolling != nil {
		r.stopPolling()
	}
	r.polling = false
	r.mu.Unlock()
	r.wg.Wait()
}

// Refresh performs one poll: list every document and apply each summary in
// arrival order.
func (r *Reconciler) Refresh(ctx context.Context) error {
	docs, err := r.client.ListDocuments(ctx)
	if err != nil {
		return err
	}
	for i := range docs {
		r.Apply(ctx, &docs[i])
	}
	return nil
}

// Apply merges one update. An update without payload never replaces a
// record that has one; only its status is noted for transition tracking.
func (r *Reconciler) Apply(ctx context.Context, update *models.Document) {
	if update == nil || update.ID == "" {
		return
	}
	update = r.sanitize(update.Clone())

	if update.HasPayload() {
		if err := r.cache.Set(ctx, update); err != nil {
			r.logger.Warn("Failed to cache document", logger.DocumentID(update.ID), logger.Error(err))
		}
	}
	cached := r.cachedPayload(ctx, update)

	r.mu.Lock()
	id := update.ID
	prev, seen := r.prevStatus[id]
	r.prevStatus[id] = update.Status

	current := r.records[id]
	if !current.HasPayload() && cached != nil {
		current = cached
	}
	kept := false
	if !update.HasPayload() && current.HasPayload() {
		r.records[id] = current
		kept = true
	} else {
		r.records[id] = update
	}
	r.track(id)

	shown := r.records[id]
	if id == r.selected && shown.HasPayload() {
		r.state.Labels.Preassign(shown.Chunks)
	}

	fetch := update.Status == models.StatusComplete &&
		(!seen || prev != models.StatusComplete) &&
		!shown.HasPayload() &&
		!r.fetching[id]
	if fetch {
		r.fetching[id] = true
	}
	if !update.Status.IsTerminal() {
		r.ensurePollingLocked()
	}
	r.mu.Unlock()

	if kept {
		r.logger.Debug("Discarded partial update, keeping full record",
			logger.DocumentID(id),
			logger.String("status", string(update.Status)),
		)
	}
	if !seen || prev != update.Status {
		r.publish(Event{Type: EventUpdated, DocumentID: id, Status: update.Status, Message: update.StatusMessage})
	}
	if fetch {
		r.fetchDetail(id)
	}
}

// cachedPayload returns the cached full record when the displayed one lacks
// payload and the update does too.
func (r *Reconciler) cachedPayload(ctx context.Context, update *models.Document) *models.Document {
	if update.HasPayload() {
		return nil
	}
	r.mu.Lock()
	current := r.records[update.ID]
	r.mu.Unlock()
	if current.HasPayload() {
		return nil
	}
	doc, err := r.cache.Get(ctx, update.ID)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			r.logger.Warn("Failed to read document cache", logger.DocumentID(update.ID), logger.Error(err))
		}
		return nil
	}
	return doc
}

// fetchDetail loads the full record in the background. The result is always
// cached; it only touches view state if the document is still selected.
func (r *Reconciler) fetchDetail(id string) {
	r.mu.Lock()
	if r.stopped {
		r.fetching[id] = false
		r.mu.Unlock()
		return
	}
	base := r.root
	r.fetching[id] = true
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(base, r.cfg.FetchTimeout)
		defer cancel()

		doc, err := r.client.GetDocument(ctx, id)
		if err == nil && doc != nil && doc.ID == "" {
			doc.ID = id
		}
		if err != nil || doc == nil || !doc.HasPayload() {
			if err != nil {
				r.logger.Warn("Full document fetch failed", logger.DocumentID(id), logger.Error(err))
			} else if doc != nil {
				// status only; fetching[id] is still set, so this cannot refetch
				r.Apply(ctx, doc)
			}
			r.mu.Lock()
			r.fetching[id] = false
			// the next poll that reports complete retries the fetch
			delete(r.prevStatus, id)
			r.ensurePollingLocked()
			r.mu.Unlock()
			return
		}
		r.acceptFull(ctx, doc)
	}()
}

// acceptFull stores a full payload even if a newer poll changed the status
// in the meantime. Later partial updates cannot erase it.
func (r *Reconciler) acceptFull(ctx context.Context, doc *models.Document) {
	doc = r.sanitize(doc)
	if err := r.cache.Set(ctx, doc); err != nil {
		r.logger.Warn("Failed to cache document", logger.DocumentID(doc.ID), logger.Error(err))
	}

	r.mu.Lock()
	r.fetching[doc.ID] = false
	r.records[doc.ID] = doc
	r.track(doc.ID)
	selected := doc.ID == r.selected
	if selected {
		r.state.Labels.Preassign(doc.Chunks)
	}
	r.mu.Unlock()

	r.logger.Info("Full document payload cached",
		logger.DocumentID(doc.ID),
		logger.Int("chunks", len(doc.Chunks)),
		logger.Bool("selected", selected),
	)
	r.publish(Event{Type: EventPayload, DocumentID: doc.ID, Status: doc.Status})
}

// Select surfaces a document. It never starts a second timer; it resumes
// the single one when the document is still in flight.
func (r *Reconciler) Select(ctx context.Context, documentID string) *DocumentState {
	r.mu.Lock()
	if r.state == nil || r.selected != documentID {
		r.selected = documentID
		r.selectedAt = r.now()
		r.state = NewDocumentState(documentID)
	}
	state := r.state
	doc := r.records[documentID]
	r.mu.Unlock()

	if !doc.HasPayload() {
		if cached, err := r.cache.Get(ctx, documentID); err == nil {
			r.mu.Lock()
			if current := r.records[documentID]; !current.HasPayload() {
				if current != nil {
					cached.Status = current.Status
				}
				r.records[documentID] = cached
				r.track(documentID)
			}
			doc = r.records[documentID]
			r.mu.Unlock()
		}
	}

	r.mu.Lock()
	if doc.HasPayload() && r.selected == documentID {
		state.Labels.Preassign(doc.Chunks)
	}
	needDetail := (doc == nil || (doc.Status == models.StatusComplete && !doc.HasPayload())) && !r.fetching[documentID]
	if doc == nil || !doc.Status.IsTerminal() || !doc.HasPayload() && doc.Status == models.StatusComplete {
		r.ensurePollingLocked()
	}
	r.mu.Unlock()

	r.publish(Event{Type: EventSelected, DocumentID: documentID})
	if needDetail {
		r.fetchDetail(documentID)
	}
	return state
}

// Current returns the selected record and its view state. Partial records
// are returned as-is; callers check IsComplete.
func (r *Reconciler) Current() (*models.Document, *DocumentState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == "" {
		return nil, nil
	}
	return r.records[r.selected].Clone(), r.state
}

// State returns the view state if documentID is the current selection.
func (r *Reconciler) State(documentID string) (*DocumentState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil || r.selected != documentID {
		return nil, false
	}
	return r.state, true
}

// Document returns the displayed record for any tracked document.
func (r *Reconciler) Document(documentID string) (*models.Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.records[documentID]
	return doc.Clone(), ok
}

// Summaries returns every tracked record in first-seen order.
func (r *Reconciler) Summaries() []models.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Document, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.records[id].Clone())
	}
	return out
}

// Polling reports whether the timer is running.
func (r *Reconciler) Polling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polling
}

// Subscribe registers fn for every event; the returned func unregisters it.
func (r *Reconciler) Subscribe(fn func(Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subscribers, id)
	}
}

func (r *Reconciler) publish(ev Event) {
	r.mu.Lock()
	subs := make([]func(Event), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (r *Reconciler) sanitize(doc *models.Document) *models.Document {
	if r.sanitizer == nil {
		return doc
	}
	return r.sanitizer.Sanitize(doc)
}

func (r *Reconciler) track(id string) {
	for _, known := range r.order {
		if known == id {
			return
		}
	}
	r.order = append(r.order, id)
}

// settledLocked reports that every tracked document is terminal and every
// complete one has its payload.
func (r *Reconciler) settledLocked() bool {
	for id, doc := range r.records {
		if !doc.Status.IsTerminal() || r.fetching[id] {
			return false
		}
		if doc.Status == models.StatusComplete && !doc.HasPayload() {
			return false
		}
	}
	return true
}

func (r *Reconciler) ensurePollingLocked() {
	if r.stopped || r.polling || !r.started || r.root.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.root)
	r.polling = true
	r.stopPolling = cancel
	r.pollStarted = r.now()

	r.wg.Add(1)
	go r.poll(ctx)
	r.logger.Debug("Polling started", logger.Duration("interval", r.cfg.PollInterval))
	go r.publish(Event{Type: EventPollingStarted})
}

func (r *Reconciler) poll(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.pollOnce(ctx, tick); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Warn("Status poll failed, retrying next tick", logger.Error(err))
			}
			r.checkOverdue()
			if r.stopIfSettled(ctx) {
				return
			}
		}
	}
}

// pollOnce asks for the status of the selected document alone when it is
// the only one in flight, and for the whole list otherwise.
func (r *Reconciler) pollOnce(ctx context.Context, tick int) error {
	checker, ok := r.client.(StatusChecker)
	if !ok || tick%r.cfg.ListEvery == 0 {
		return r.Refresh(ctx)
	}
	r.mu.Lock()
	id, single := r.selected, r.onlyPendingLocked(r.selected)
	r.mu.Unlock()
	if !single {
		return r.Refresh(ctx)
	}

	doc, err := checker.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	if doc.ID == "" {
		doc.ID = id
	}
	r.Apply(ctx, doc)
	return nil
}

// onlyPendingLocked reports whether id is tracked, still processing, and the
// only record that keeps polling alive.
func (r *Reconciler) onlyPendingLocked(id string) bool {
	doc, ok := r.records[id]
	if id == "" || !ok || doc.Status.IsTerminal() {
		return false
	}
	for other, d := range r.records {
		if other == id {
			continue
		}
		if !d.Status.IsTerminal() || r.fetching[other] || d.Status == models.StatusComplete && !d.HasPayload() {
			return false
		}
	}
	return true
}

func (r *Reconciler) checkOverdue() {
	r.mu.Lock()
	since := r.pollStarted
	if r.selectedAt.After(since) {
		since = r.selectedAt
	}
	if r.state == nil || r.now().Sub(since) < r.cfg.MaxPollDuration {
		r.mu.Unlock()
		return
	}
	doc := r.records[r.selected]
	state := r.state
	r.mu.Unlock()

	if doc != nil && doc.Status.IsTerminal() {
		return
	}
	if state.markOverdue() {
		r.logger.Warn("Processing is taking too long",
			logger.DocumentID(state.DocumentID),
			logger.Duration("limit", r.cfg.MaxPollDuration),
		)
		r.publish(Event{Type: EventOverdue, DocumentID: state.DocumentID, Message: "processing is taking too long"})
	}
}

func (r *Reconciler) stopIfSettled(ctx context.Context) bool {
	r.mu.Lock()
	if ctx.Err() != nil || !r.settledLocked() {
		r.mu.Unlock()
		return false
	}
	r.polling = false
	r.stopPolling()
	r.mu.Unlock()

	r.logger.Debug("All documents settled, polling stopped")
	r.publish(Event{Type: EventPollingStopped})
	return true
}

// DedupeByFilename collapses records sharing a filename to the most recently
// uploaded one. It is a list-display helper; the tracked records are untouched.
func DedupeByFilename(docs []models.Document) []models.Document {
	latest := make(map[string]int, len(docs))
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if i, ok := latest[d.Filename]; ok {
			if d.UploadedAt.After(out[i].UploadedAt) {
				out[i] = d
			}
			continue
		}
		latest[d.Filename] = len(out)
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out
}
