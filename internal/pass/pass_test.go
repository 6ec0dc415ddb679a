package pass

import (
	"bytes"
	"encoding/base64"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeIsDeterministic(t *testing.T) {
	m := New(DefaultOptions())

	a, err := m.Encode("MNT-TECH-M1ABCDXYZ")
	require.NoError(t, err)
	b, err := m.Encode("MNT-TECH-M1ABCDXYZ")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, dataURLPrefix))

	c, err := m.Encode("MNT-TECH-M1ABCDXY0")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestEncodeProducesPNGOfRequestedSize(t *testing.T) {
	m := New(Options{Size: 256})
	url, err := m.Encode("MNT-SPOR-M1ABCD123")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, dataURLPrefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestEncodeRejectsEmptyTicket(t *testing.T) {
	_, err := New(DefaultOptions()).Encode("")
	require.ErrorIs(t, err, ErrEmptyTicket)
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#1a2b3c")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x1a, G: 0x2b, B: 0x3c, A: 0xff}, c)

	_, err = ParseHexColor("blue")
	require.Error(t, err)
}
