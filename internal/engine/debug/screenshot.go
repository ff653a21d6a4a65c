package debug

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/bmp"
)

// Screenshot file formats.
const (
	FormatPNG = "png"
	FormatBMP = "bmp"
)

// Screenshots writes captured frames as PNG or BMP files.
type Screenshots struct {
	outputDir string
	prefix    string
	format    string
	now       func() time.Time
}

// NewScreenshots creates a screenshot writer.
func NewScreenshots(outputDir, prefix string) *Screenshots {
	return &Screenshots{
		outputDir: outputDir,
		prefix:    prefix,
		format:    FormatPNG,
		now:       time.Now,
	}
}

// SetFormat selects the file format. Unknown formats are rejected.
func (s *Screenshots) SetFormat(format string) error {
	switch format {
	case FormatPNG, FormatBMP:
		s.format = format
		return nil
	}
	return fmt.Errorf("unknown screenshot format %q", format)
}

// FromPixels builds an image from bottom-up RGBA rows as read back from
// OpenGL.
func FromPixels(pixels []byte, width, height int) (*image.RGBA, error) {
	if len(pixels) != width*height*4 {
		return nil, fmt.Errorf("pixel data size mismatch: expected %d, got %d", width*height*4, len(pixels))
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rowSize := width * 4
	for y := 0; y < height; y++ {
		src := (height - 1 - y) * rowSize
		dst := y * img.Stride
		copy(img.Pix[dst:dst+rowSize], pixels[src:src+rowSize])
	}
	return img, nil
}

// SavePixels writes bottom-up RGBA pixels and returns the file name.
func (s *Screenshots) SavePixels(pixels []byte, width, height int) (string, error) {
	img, err := FromPixels(pixels, width, height)
	if err != nil {
		return "", err
	}
	return s.Save(img)
}

// Save writes img and returns the file name.
func (s *Screenshots) Save(img image.Image) (string, error) {
	if s.outputDir != "" {
		if err := os.MkdirAll(s.outputDir, 0755); err != nil {
			return "", fmt.Errorf("creating output dir: %w", err)
		}
	}
	filename := s.Filename()
	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	if err := s.encode(file, img); err != nil {
		return "", fmt.Errorf("encoding %s: %w", s.format, err)
	}
	return filename, nil
}

func (s *Screenshots) encode(w io.Writer, img image.Image) error {
	if s.format == FormatBMP {
		return bmp.Encode(w, img)
	}
	return png.Encode(w, img)
}

// Filename returns the name the next screenshot gets.
func (s *Screenshots) Filename() string {
	name := fmt.Sprintf("%s_%s.%s", s.prefix, s.now().Format("2006-01-02_15-04-05.000"), s.format)
	if s.outputDir != "" {
		name = filepath.Join(s.outputDir, name)
	}
	return name
}
