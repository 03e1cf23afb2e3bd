package render

import (
	"context"
	"sync"
	"time"

	"github.com/feichai0017/document-viewer/internal/models"
)

// Debouncer coalesces a burst of triggers into one call, made after wait has
// passed without a new trigger.
type Debouncer struct {
	mu    sync.Mutex
	wait  time.Duration
	timer *time.Timer
}

func NewDebouncer(wait time.Duration) *Debouncer {
	return &Debouncer{wait: wait}
}

// Trigger schedules fn, replacing any call still pending.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, fn)
}

// Stop cancels the pending call, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// RenderFunc receives every render outcome of a ResizeController.
type RenderFunc func(documentID string, surfaces []models.RenderSurface, err error)

// ResizeController re-renders the current source when it changes (at once)
// and when the container is resized (debounced).
type ResizeController struct {
	mu        sync.Mutex
	ctx       context.Context
	renderer  *Renderer
	debouncer *Debouncer
	onRender  RenderFunc
	source    *Source
	width     float64
	dpr       float64
}

func NewResizeController(ctx context.Context, renderer *Renderer, wait time.Duration, onRender RenderFunc) *ResizeController {
	return &ResizeController{
		ctx:       ctx,
		renderer:  renderer,
		debouncer: NewDebouncer(wait),
		onRender:  onRender,
		dpr:       1,
	}
}

// SetSource swaps the document and renders immediately.
func (c *ResizeController) SetSource(src Source, width, dpr float64) {
	c.debouncer.Stop()
	c.mu.Lock()
	c.source = &src
	c.width, c.dpr = width, dpr
	c.mu.Unlock()
	c.render()
}

// Resize records the new container width and schedules a render.
func (c *ResizeController) Resize(width, dpr float64) {
	c.mu.Lock()
	c.width, c.dpr = width, dpr
	c.mu.Unlock()
	c.debouncer.Trigger(c.render)
}

// DocumentID names the current source, or "" before the first SetSource.
func (c *ResizeController) DocumentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return ""
	}
	return c.source.DocumentID
}

// Close cancels any pending render.
func (c *ResizeController) Close() {
	c.debouncer.Stop()
}

func (c *ResizeController) render() {
	c.mu.Lock()
	src, width, dpr := c.source, c.width, c.dpr
	c.mu.Unlock()
	if src == nil || c.ctx.Err() != nil {
		return
	}
	surfaces, err := c.renderer.Render(c.ctx, *src, width, dpr)
	c.onRender(src.DocumentID, surfaces, err)
}
