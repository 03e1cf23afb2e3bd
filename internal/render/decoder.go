package render

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
)

// PageSource is a decoded document. Sizes are in the source's native units:
// points for paginated documents, pixels for raster images.
type PageSource interface {
	PageCount() int
	PageSize(index int) (width, height float64, err error)
	RenderPage(index int, scale float64) (image.Image, error)
	Close() error
}

// Decoder turns raw bytes into a PageSource.
type Decoder interface {
	Decode(data []byte) (PageSource, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte) (PageSource, error)

func (f DecoderFunc) Decode(data []byte) (PageSource, error) { return f(data) }

// SniffDecoder picks the PDF or raster decoder from the content type.
type SniffDecoder struct {
	PDF   Decoder
	Image Decoder
}

// NewSniffDecoder returns the default decoder set: MuPDF for paginated
// documents and imaging for raster images.
func NewSniffDecoder() *SniffDecoder {
	return &SniffDecoder{PDF: FitzDecoder{}, Image: ImageDecoder{}}
}

func (d *SniffDecoder) Decode(data []byte) (PageSource, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty source")
	}
	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("application/pdf"):
		return d.PDF.Decode(data)
	case strings.HasPrefix(mtype.String(), "image/"):
		return d.Image.Decode(data)
	default:
		return nil, fmt.Errorf("unsupported source type %s", mtype.String())
	}
}

// FitzDecoder decodes paginated documents with MuPDF.
type FitzDecoder struct{}

func (FitzDecoder) Decode(data []byte) (PageSource, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	if doc.NumPage() == 0 {
		doc.Close()
		return nil, fmt.Errorf("document has no pages")
	}
	return &fitzSource{doc: doc}, nil
}

type fitzSource struct {
	doc *fitz.Document
}

func (s *fitzSource) PageCount() int { return s.doc.NumPage() }

func (s *fitzSource) PageSize(index int) (float64, float64, error) {
	bound, err := s.doc.Bound(index)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read page %d bounds: %w", index, err)
	}
	return float64(bound.Dx()), float64(bound.Dy()), nil
}

// RenderPage rasterizes at scale × 72 dpi, since page bounds are in points.
func (s *fitzSource) RenderPage(index int, scale float64) (image.Image, error) {
	img, err := s.doc.ImageDPI(index, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", index, err)
	}
	return img, nil
}

func (s *fitzSource) Close() error { return s.doc.Close() }

// ImageDecoder decodes a single raster image, honoring EXIF orientation.
type ImageDecoder struct{}

func (ImageDecoder) Decode(data []byte) (PageSource, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("image has no pixels")
	}
	return &imageSource{img: img}, nil
}

type imageSource struct {
	img image.Image
}

func (s *imageSource) PageCount() int { return 1 }

func (s *imageSource) PageSize(index int) (float64, float64, error) {
	if index != 0 {
		return 0, 0, fmt.Errorf("page %d out of range", index)
	}
	b := s.img.Bounds()
	return float64(b.Dx()), float64(b.Dy()), nil
}

func (s *imageSource) RenderPage(index int, scale float64) (image.Image, error) {
	w, h, err := s.PageSize(index)
	if err != nil {
		return nil, err
	}
	if scale == 1 {
		return s.img, nil
	}
	tw := int(math.Max(1, math.Round(w*scale)))
	th := int(math.Max(1, math.Round(h*scale)))
	return imaging.Resize(s.img, tw, th, imaging.Lanczos), nil
}

func (s *imageSource) Close() error { return nil }
