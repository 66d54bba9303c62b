package download

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipost/internal/recipe"
)

// 1x1 lossless WebP
const tinyWebP = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func TestImageExt(t *testing.T) {
	tests := map[string]string{
		"https://x.com/a.JPG":           "jpg",
		"https://x.com/a.jpeg?w=300":    "jpeg",
		"https://x.com/a.png#frag":      "png",
		"https://x.com/a.webp":          "webp",
		"https://x.com/a.gif":           "jpg",
		"https://x.com/image":           "jpg",
		"https://x.com/a.php?img=1.png": "jpg",
	}
	for in, want := range tests {
		assert.Equal(t, want, ImageExt(in), in)
	}
}

func TestImagesKeepsOrderAndSkipsFailures(t *testing.T) {
	var referers atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referers.Store(r.Header.Get("Referer"))
		switch r.URL.Path {
		case "/missing.jpg":
			http.NotFound(w, r)
		default:
			w.Write([]byte("img:" + r.URL.Path))
		}
	}))
	defer srv.Close()

	d := New(t.TempDir(), srv.Client(), nil, WithConcurrency(2))
	paths, err := d.Images(context.Background(), []string{
		srv.URL + "/1.jpg", srv.URL + "/missing.jpg", srv.URL + "/2.png", srv.URL + "/3.jpg",
	}, "https://food.example.com/recipes/x")
	require.NoError(t, err)
	require.Len(t, paths, 3)

	for i, want := range []string{"img:/1.jpg", "img:/2.png", "img:/3.jpg"} {
		data, err := os.ReadFile(paths[i])
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
	assert.Equal(t, ".png", filepath.Ext(paths[1]))
	assert.Equal(t, "https://food.example.com/", referers.Load())
}

func TestOversizeImagesAreSkippedNotTruncated(t *testing.T) {
	big := strings.Repeat("x", 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/declared.jpg":
			w.Write([]byte(big))
		case "/streamed.jpg":
			// flushing first drops Content-Length, so only the read can tell
			w.(http.Flusher).Flush()
			w.Write([]byte(big))
		default:
			w.Write([]byte("small"))
		}
	}))
	defer srv.Close()

	d := New(t.TempDir(), srv.Client(), nil, WithMaxImageBytes(32))
	paths, err := d.Images(context.Background(), []string{
		srv.URL + "/declared.jpg", srv.URL + "/small.jpg", srv.URL + "/streamed.jpg",
	}, "")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "small", string(data))

	_, err = d.image(context.Background(), srv.URL+"/streamed.jpg", "")
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestImageAtTheCapIsKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 32)))
	}))
	defer srv.Close()

	paths, err := New(t.TempDir(), srv.Client(), nil, WithMaxImageBytes(32)).Images(context.Background(), []string{srv.URL + "/a.jpg"}, "")
	require.NoError(t, err)
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Len(t, data, 32)
}

func TestImagesAllFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(t.TempDir(), srv.Client(), nil).Images(context.Background(), []string{srv.URL + "/a.jpg"}, "")
	assert.ErrorIs(t, err, ErrNoMedia)
}

func TestWebPIsConvertedToJPEG(t *testing.T) {
	data, err := base64.StdEncoding.DecodeString(tinyWebP)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		w.Write(data)
	}))
	defer srv.Close()

	paths, err := New(t.TempDir(), srv.Client(), nil).Images(context.Background(), []string{srv.URL + "/photo.webp"}, "")
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(paths[0]))

	out, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(out))
	assert.NoError(t, err)
}

func TestMediaFallsBackToImagesWhenVideoFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	d := New(t.TempDir(), srv.Client(), nil, WithYTDLP(filepath.Join(t.TempDir(), "no-such-yt-dlp")))
	r := &recipe.ExtractedRecipe{
		URL:       srv.URL,
		VideoURL:  srv.URL + "/v.mp4",
		ImageURLs: []string{srv.URL + "/1.jpg", srv.URL + "/2.jpg", srv.URL + "/3.jpg"},
	}
	paths, err := d.Media(context.Background(), r, 2)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}
