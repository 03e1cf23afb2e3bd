package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-viewer/internal/models"
	"github.com/feichai0017/document-viewer/pkg/logger"
)

type fakeSource struct {
	sizes [][2]float64
}

func (s *fakeSource) PageCount() int { return len(s.sizes) }

func (s *fakeSource) PageSize(i int) (float64, float64, error) {
	return s.sizes[i][0], s.sizes[i][1], nil
}

func (s *fakeSource) RenderPage(i int, scale float64) (image.Image, error) {
	w := int(math.Round(s.sizes[i][0] * scale))
	h := int(math.Round(s.sizes[i][1] * scale))
	return imaging.New(w, h, color.White), nil
}

func (s *fakeSource) Close() error { return nil }

func countingDecoder(calls *int32, sizes ...[2]float64) Decoder {
	return DecoderFunc(func(data []byte) (PageSource, error) {
		atomic.AddInt32(calls, 1)
		return &fakeSource{sizes: sizes}, nil
	})
}

func TestRender_StacksPagesAtContainerWidth(t *testing.T) {
	var calls int32
	r := NewRenderer(countingDecoder(&calls, [2]float64{612, 792}, [2]float64{612, 792}), logger.NewTestLogger())

	surfaces, err := r.Render(context.Background(), Source{DocumentID: "d1", Data: []byte("x")}, 800, 1.5)
	require.NoError(t, err)
	require.Len(t, surfaces, 2)

	for i, s := range surfaces {
		assert.Equal(t, i, s.PageIndex)
		assert.Equal(t, "d1", s.DocumentID)
		assert.InDelta(t, 800, s.Width, 1e-9)
		assert.InDelta(t, 792*800.0/612, s.Height, 1e-9)
		assert.Equal(t, 1200, s.BackingWidth)
		assert.Equal(t, int(math.Round(s.Height*1.5)), s.BackingHeight)
		assert.Equal(t, image.Rect(0, 0, s.BackingWidth, s.BackingHeight), s.Image.Bounds())
	}
	assert.Zero(t, surfaces[0].OffsetY)
	assert.InDelta(t, surfaces[0].Height, surfaces[1].OffsetY, 1e-9)
}

func TestRender_Idempotent(t *testing.T) {
	var calls int32
	r := NewRenderer(countingDecoder(&calls, [2]float64{600, 800}, [2]float64{600, 800}), logger.NewTestLogger())
	src := Source{DocumentID: "d1", Data: []byte("pdf")}

	first, err := r.Render(context.Background(), src, 640, 2)
	require.NoError(t, err)
	second, err := r.Render(context.Background(), src, 640, 2)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Width, second[i].Width)
		assert.Equal(t, first[i].Height, second[i].Height)
		assert.Equal(t, first[i].BackingWidth, second[i].BackingWidth)
		assert.Equal(t, first[i].BackingHeight, second[i].BackingHeight)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = r.Render(context.Background(), src, 700, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRender_DecodeErrorIsTerminal(t *testing.T) {
	var calls int32
	dec := DecoderFunc(func(data []byte) (PageSource, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("corrupt xref")
	})
	r := NewRenderer(dec, logger.NewTestLogger())
	src := Source{DocumentID: "bad", Data: []byte("garbage")}

	surfaces, err := r.Render(context.Background(), src, 500, 1)
	assert.Empty(t, surfaces)
	var derr *models.DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "bad", derr.DocumentID)

	_, err = r.Render(context.Background(), src, 500, 1)
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	r.Forget("bad")
	_, err = r.Render(context.Background(), src, 500, 1)
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFail_RecordsTerminalFailure(t *testing.T) {
	var calls int32
	dec := DecoderFunc(func(data []byte) (PageSource, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("unreachable")
	})
	r := NewRenderer(dec, logger.NewTestLogger())

	recorded := r.Fail("empty", errors.New("file is empty"))
	got, ok := r.Failure("empty")
	require.True(t, ok)
	assert.Same(t, recorded, got)

	_, err := r.Render(context.Background(), Source{DocumentID: "empty"}, 500, 1)
	assert.Same(t, recorded, err)
	assert.Zero(t, atomic.LoadInt32(&calls))

	r.Forget("empty")
	_, ok = r.Failure("empty")
	assert.False(t, ok)
}

func TestRender_InvalidWidth(t *testing.T) {
	r := NewRenderer(nil, logger.NewTestLogger())
	_, err := r.Render(context.Background(), Source{DocumentID: "d"}, 0, 1)
	require.Error(t, err)
	var derr *models.DecodeError
	assert.False(t, errors.As(err, &derr))
}

func TestSniffDecoder_RasterImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(400, 200, color.Black), imaging.PNG))

	r := NewRenderer(NewSniffDecoder(), logger.NewTestLogger())
	surfaces, err := r.Render(context.Background(), Source{DocumentID: "img", Data: buf.Bytes()}, 200, 2)
	require.NoError(t, err)
	require.Len(t, surfaces, 1)
	assert.InDelta(t, 100, surfaces[0].Height, 1e-9)
	assert.Equal(t, 400, surfaces[0].BackingWidth)
	assert.Equal(t, 200, surfaces[0].BackingHeight)
}

func TestSniffDecoder_Unsupported(t *testing.T) {
	r := NewRenderer(NewSniffDecoder(), logger.NewTestLogger())
	_, err := r.Render(context.Background(), Source{DocumentID: "txt", Data: []byte("just some text")}, 200, 1)
	var derr *models.DecodeError
	require.ErrorAs(t, err, &derr)
}

func TestCountPages(t *testing.T) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.AddPage()
	doc.AddPage()
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))

	n, err := CountPages(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = CountPages([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestResizeController_Debounces(t *testing.T) {
	var calls int32
	r := NewRenderer(countingDecoder(&calls, [2]float64{100, 100}), logger.NewTestLogger())

	var renders int32
	var lastWidth atomic.Value
	c := NewResizeController(context.Background(), r, 30*time.Millisecond, func(documentID string, s []models.RenderSurface, err error) {
		atomic.AddInt32(&renders, 1)
		if err == nil && len(s) > 0 {
			lastWidth.Store(s[0].Width)
		}
	})
	defer c.Close()
	assert.Empty(t, c.DocumentID())

	c.SetSource(Source{DocumentID: "d", Data: []byte("a")}, 300, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&renders))
	assert.Equal(t, "d", c.DocumentID())

	for w := 301.0; w <= 320; w++ {
		c.Resize(w, 1)
	}
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&renders) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&renders))
	assert.Equal(t, 320.0, lastWidth.Load())
}
