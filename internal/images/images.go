package images

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Capture is a decoded screenshot together with its encoded form.
type Capture struct {
	Image   image.Image
	PNG     []byte
	Source  string
	TakenAt time.Time
}

// FromBytes decodes raw image data (PNG, JPEG, GIF or WebP). The stored
// encoding is always PNG so corpus entries are lossless.
func FromBytes(data []byte, source string) (*Capture, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image: %w", source, err)
	}

	encoded := data
	if format != "png" {
		encoded, err = EncodePNG(img)
		if err != nil {
			return nil, err
		}
	}

	return &Capture{
		Image:   img,
		PNG:     encoded,
		Source:  source,
		TakenAt: time.Now(),
	}, nil
}

// FromImage wraps an already decoded image.
func FromImage(img image.Image, source string) (*Capture, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return &Capture{Image: img, PNG: data, Source: source, TakenAt: time.Now()}, nil
}

// Load reads and decodes an image file.
func Load(path string) (*Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	c, err := FromBytes(data, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(path); err == nil {
		c.TakenAt = info.ModTime()
	}
	return c, nil
}

// Save writes the PNG encoding to path.
func (c *Capture) Save(path string) error {
	if err := os.WriteFile(path, c.PNG, 0644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}
	return nil
}

// Checksum is the hex MD5 of the PNG encoding.
func (c *Capture) Checksum() string {
	return CalculateDataMD5(c.PNG)
}

// Size returns the image dimensions.
func (c *Capture) Size() (int, int) {
	b := c.Image.Bounds()
	return b.Dx(), b.Dy()
}

// CalculateDataMD5 returns the hex MD5 of data.
func CalculateDataMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail scales img so its longest side is at most maxSide. Smaller images
// are returned unchanged.
func Thumbnail(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}

	var tw, th int
	if w >= h {
		tw = maxSide
		th = h * maxSide / w
	} else {
		th = maxSide
		tw = w * maxSide / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// ThumbnailPNG is Thumbnail followed by EncodePNG.
func ThumbnailPNG(c *Capture, maxSide int) ([]byte, error) {
	w, h := c.Size()
	if w <= maxSide && h <= maxSide {
		return c.PNG, nil
	}
	return EncodePNG(Thumbnail(c.Image, maxSide))
}
