package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

const (
	a4WidthMM  = 210.0
	a4HeightMM = 297.0
)

// Capturer produces a full-height PNG of an HTML page laid out at width
// CSS pixels. cloneID names the off-screen copy used for the capture.
type Capturer interface {
	Capture(ctx context.Context, cloneID, html string, width int) ([]byte, error)
}

// RasterResult is a paginated raster export.
type RasterResult struct {
	CloneID string
	PDF     []byte
	Pages   int
}

// ChromeConfig controls the headless browser used for captures.
type ChromeConfig struct {
	ExecPath     string
	NoSandbox    bool
	ImageTimeout time.Duration
	Timeout      time.Duration
}

// ChromeCapturer renders each capture in its own browser tab, which is torn
// down when the capture returns.
type ChromeCapturer struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	cfg         ChromeConfig
	logger      logger.Logger
}

func NewChromeCapturer(cfg ChromeConfig, log logger.Logger) *ChromeCapturer {
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeCapturer{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		cfg:         cfg,
		logger:      log.Named("chrome"),
	}
}

func (c *ChromeCapturer) Capture(ctx context.Context, cloneID, html string, width int) ([]byte, error) {
	tabCtx, cancelTab := chromedp.NewContext(c.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.cfg.Timeout)
	defer cancelTimeout()

	// abandon the tab if the caller gives up first
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	wrapped := fmt.Sprintf(`<div id="export-clone-%s">%s</div>`, cloneID, html)
	var shot []byte
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(width), 1024),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, wrapped).Do(ctx)
		}),
		chromedp.WaitReady("#export-clone-"+cloneID, chromedp.ByQuery),
		chromedp.Poll(`Array.from(document.images).every(img => img.complete)`, nil,
			chromedp.WithPollingTimeout(c.cfg.ImageTimeout)),
		chromedp.FullScreenshot(&shot, 100),
	)
	if err != nil {
		c.logger.Error("Capture failed", logger.String("cloneId", cloneID), logger.Error(err))
		return nil, fmt.Errorf("failed to capture clone %s: %w", cloneID, err)
	}
	return shot, nil
}

// Close shuts the browser down.
func (c *ChromeCapturer) Close() {
	c.allocCancel()
}

// Exporter produces the binary exports.
type Exporter struct {
	capturer Capturer
	width    int
	logger   logger.Logger
}

func NewExporter(capturer Capturer, log logger.Logger) *Exporter {
	return &Exporter{capturer: capturer, width: a4WidthPx, logger: log.Named("exporter")}
}

// ToPaginatedRaster captures html through a fresh off-screen clone and
// slices the screenshot into A4 pages. Every call uses its own clone, so
// concurrent exports never share layout state.
func (e *Exporter) ToPaginatedRaster(ctx context.Context, html string) (*RasterResult, error) {
	if e.capturer == nil {
		return nil, &models.ExportError{Op: "capture", Err: errors.New("no capturer configured")}
	}
	cloneID := uuid.New().String()
	e.logger.Info("Starting raster export", logger.String("cloneId", cloneID))

	shot, err := e.capturer.Capture(ctx, cloneID, html, e.width)
	if err != nil {
		return nil, &models.ExportError{Op: "capture", Err: err}
	}
	img, err := imaging.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, &models.ExportError{Op: "decode", Err: err}
	}

	pdfBytes, pages, err := paginate(img)
	if err != nil {
		return nil, &models.ExportError{Op: "paginate", Err: err}
	}
	e.logger.Info("Raster export finished",
		logger.String("cloneId", cloneID),
		logger.Int("pages", pages),
		logger.Int("bytes", len(pdfBytes)),
	)
	return &RasterResult{CloneID: cloneID, PDF: pdfBytes, Pages: pages}, nil
}

// paginate slices img top to bottom into A4-proportioned pieces, one per
// PDF page. The last page is padded with white.
func paginate(img image.Image) ([]byte, int, error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, 0, errors.New("empty capture")
	}
	sliceHeight := int(float64(bounds.Dx()) * a4HeightMM / a4WidthMM)

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)

	pages := 0
	for top := bounds.Min.Y; top < bounds.Max.Y; top += sliceHeight {
		bottom := top + sliceHeight
		if bottom > bounds.Max.Y {
			bottom = bounds.Max.Y
		}
		slice := imaging.Crop(img, image.Rect(bounds.Min.X, top, bounds.Max.X, bottom))
		if slice.Bounds().Dy() < sliceHeight {
			canvas := imaging.New(bounds.Dx(), sliceHeight, color.White)
			slice = imaging.Paste(canvas, slice, image.Pt(0, 0))
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, slice, imaging.PNG); err != nil {
			return nil, 0, fmt.Errorf("failed to encode page %d: %w", pages+1, err)
		}
		name := fmt.Sprintf("page-%d", pages+1)
		doc.AddPage()
		doc.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, &buf)
		doc.ImageOptions(name, 0, 0, a4WidthMM, a4HeightMM, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		pages++
	}
	if err := doc.Error(); err != nil {
		return nil, 0, fmt.Errorf("failed to build pdf: %w", err)
	}

	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return nil, 0, fmt.Errorf("failed to write pdf: %w", err)
	}
	return out.Bytes(), pages, nil
}
