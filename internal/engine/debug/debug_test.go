package debug

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/image/bmp"

	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

func TestAppendBoxLines(t *testing.T) {
	v := AppendBoxLines(nil, math.V3(0, 0, 0), math.V3(1, 2, 3))
	if len(v) != BoxLineVertexCount*3 {
		t.Fatalf("got %d floats, want %d", len(v), BoxLineVertexCount*3)
	}
	for i := 0; i < len(v); i += 3 {
		if v[i] != 0 && v[i] != 1 || v[i+1] != 0 && v[i+1] != 2 || v[i+2] != 0 && v[i+2] != 3 {
			t.Fatalf("vertex %d = %v is not a corner", i/3, v[i:i+3])
		}
	}
}

func TestAppendVolumeLines(t *testing.T) {
	box := bounds.NewBox(math.V3(-1, -1, -1), math.V3(1, 1, 1))
	v := AppendVolumeLines(nil, box, math.Translate(10, 0, 0), 0.5)
	if len(v) != BoxLineVertexCount*3 {
		t.Fatalf("got %d floats", len(v))
	}
	// First vertex is the low corner.
	if v[0] != 8.5 || v[1] != -1.5 || v[2] != -1.5 {
		t.Errorf("low corner = %v", v[:3])
	}

	if got := AppendVolumeLines(nil, bounds.Void{}, math.Identity(), 0); len(got) != 0 {
		t.Errorf("void volume produced %d floats", len(got))
	}
	if got := AppendVolumeLines(v, nil, math.Identity(), 0); len(got) != len(v) {
		t.Error("nil volume should append nothing")
	}
}

func TestFromPixelsFlips(t *testing.T) {
	// 1x2 image: bottom row red, top row blue.
	pixels := []byte{255, 0, 0, 255, 0, 0, 255, 255}
	img, err := FromPixels(pixels, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if r, _, b, _ := img.At(0, 0).RGBA(); r != 0 || b == 0 {
		t.Errorf("top pixel should be blue, got r=%d b=%d", r, b)
	}
	if _, err := FromPixels(pixels, 2, 2); err == nil {
		t.Error("expected size mismatch error")
	}
}

func TestSavePixels(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	s := NewScreenshots(dir, "frame")
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	name, err := s.SavePixels(make([]byte, 2*2*4), 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "frame_2024-01-02_03-04-05.000.png"); name != want {
		t.Errorf("name = %s, want %s", name, want)
	}
	f, err := os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 2 {
		t.Errorf("width = %d, want 2", img.Bounds().Dx())
	}
}

func TestSaveBMP(t *testing.T) {
	dir := t.TempDir()
	s := NewScreenshots(dir, "frame")
	if err := s.SetFormat("gif"); err == nil {
		t.Error("gif accepted")
	}
	if err := s.SetFormat(FormatBMP); err != nil {
		t.Fatal(err)
	}

	name, err := s.SavePixels(make([]byte, 3*2*4), 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(name) != ".bmp" {
		t.Errorf("name = %s, want .bmp", name)
	}
	f, err := os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := bmp.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Errorf("size = %v, want 3x2", b)
	}
}
