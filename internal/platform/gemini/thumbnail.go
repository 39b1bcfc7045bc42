package gemini

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// Thumbnail bounds; the aspect ratio is kept
const (
	ThumbnailMaxWidth  = 256
	ThumbnailMaxHeight = 256
	thumbnailQuality   = 85
)

// makeThumbnail decodes an image and re-encodes it as a JPEG that fits the
// thumbnail bounds. Images already inside the bounds are not enlarged.
func makeThumbnail(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := imaging.Fit(src, ThumbnailMaxWidth, ThumbnailMaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
