package compose

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/kimhsiao/mastofy/internal/logging"
	"github.com/kimhsiao/mastofy/internal/models"
)

// DefaultMaxImageDimension is the longest side an uploaded image keeps.
const DefaultMaxImageDimension = 1920

// PrepareMedia downscales still images whose longest side exceeds maxDim so
// they fit within maxDim x maxDim. Other files, GIFs and images that cannot
// be decoded are returned unchanged; the server has the final word on them.
func PrepareMedia(file models.MediaFile, maxDim int) models.MediaFile {
	if maxDim <= 0 || len(file.Data) == 0 {
		return file
	}

	mime := mimetype.Detect(file.Data)
	var format imaging.Format
	switch {
	case mime.Is("image/jpeg"):
		format = imaging.JPEG
	case mime.Is("image/png"):
		format = imaging.PNG
	case mime.Is("image/webp"):
		// No webp encoder; the result is written as PNG.
		format = imaging.PNG
	default:
		return file
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(file.Data))
	if err != nil {
		logging.Warn("Cannot read image size, uploading as is",
			map[string]interface{}{"file": file.Name, "error": err.Error()})
		return file
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return file
	}

	img, err := imaging.Decode(bytes.NewReader(file.Data), imaging.AutoOrientation(true))
	if err != nil {
		logging.Warn("Cannot decode image, uploading as is",
			map[string]interface{}{"file": file.Name, "error": err.Error()})
		return file
	}

	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(85)); err != nil {
		logging.Warn("Cannot encode resized image, uploading original",
			map[string]interface{}{"file": file.Name, "error": err.Error()})
		return file
	}

	name := file.Name
	if mime.Is("image/webp") {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".png"
	}

	bounds := resized.Bounds()
	logging.Debug("Image downscaled before upload", map[string]interface{}{
		"file":      file.Name,
		"from":      []int{cfg.Width, cfg.Height},
		"to":        []int{bounds.Dx(), bounds.Dy()},
		"bytes_in":  len(file.Data),
		"bytes_out": buf.Len(),
	})
	return models.MediaFile{Name: name, Data: buf.Bytes()}
}
