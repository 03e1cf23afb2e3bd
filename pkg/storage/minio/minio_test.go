package minio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", contentType("exports/doc/raster.pdf"))
	assert.Equal(t, "text/markdown; charset=utf-8", contentType("exports/doc/export.md"))
	assert.Equal(t, "application/octet-stream", contentType("blob"))
}
