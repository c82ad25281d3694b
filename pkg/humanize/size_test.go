package humanize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	assert.Equal(t, "512 B", Bytes(512))
	assert.Equal(t, "1.5 KiB", Bytes(1536))
	assert.Equal(t, "92.3 MiB", Bytes(96780000))
	assert.Equal(t, "2.0 GiB", Bytes(2*1024*1024*1024))
}
