package lib

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
)

// Image is a packed 24-bit RGB frame.
type Image struct {
	Width  int
	Height int
	Bytes  []byte
}

func NewImage(width int, height int) Image {
	return Image{
		Width:  width,
		Height: height,
		Bytes:  make([]byte, 3*width*height),
	}
}

// ImageFromFile decodes a PNG or JPEG frame.
func ImageFromFile(fname string) (Image, error) {
	im, err := imgio.Open(fname)
	if err != nil {
		return Image{}, fmt.Errorf("decoding %s: %w", fname, err)
	}
	return *fromImage(im), nil
}

func (im Image) AsImage() image.Image {
	return ImagetoNRGBA(&im)
}

func (im Image) SetRGB(i int, j int, color [3]uint8) {
	if i < 0 || i >= im.Width || j < 0 || j >= im.Height {
		return
	}
	for channel := 0; channel < 3; channel++ {
		im.Bytes[(j*im.Width+i)*3+channel] = color[channel]
	}
}

func (im Image) GetRGB(i int, j int) [3]uint8 {
	var color [3]uint8
	for channel := 0; channel < 3; channel++ {
		color[channel] = im.Bytes[(j*im.Width+i)*3+channel]
	}
	return color
}

func (im Image) FillRectangle(left, top, right, bottom int, color [3]uint8) {
	for i := left; i < right; i++ {
		for j := top; j < bottom; j++ {
			im.SetRGB(i, j, color)
		}
	}
}

// Crop returns a copy of the region [sx, ex) x [sy, ey).
func (im Image) Crop(sx int, sy int, ex int, ey int) Image {
	cropped := imaging.Crop(ImagetoNRGBA(&im), image.Rect(sx, sy, ex, ey))
	return *fromImage(cropped)
}

func (im Image) Resize(newWidth, newHeight int) Image {
	if im.Width == newWidth && im.Height == newHeight {
		return im
	}
	resized := imaging.Resize(ImagetoNRGBA(&im), newWidth, newHeight, imaging.Linear)
	return *fromImage(resized)
}

// Normalize converts the image to a CHW float tensor scaled to [0, 1] and
// standardized per channel.
func (im Image) Normalize(mean [3]float64, std [3]float64) []float32 {
	plane := im.Width * im.Height
	out := make([]float32, 3*plane)
	for p := 0; p < plane; p++ {
		for c := 0; c < 3; c++ {
			v := float64(im.Bytes[p*3+c]) / 255
			out[c*plane+p] = float32((v - mean[c]) / std[c])
		}
	}
	return out
}

func ImagetoNRGBA(img *Image) *image.NRGBA {
	rgba := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))

	idx := 0
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			r := img.Bytes[idx]
			g := img.Bytes[idx+1]
			b := img.Bytes[idx+2]
			rgba.SetNRGBA(x, y, color.NRGBA{r, g, b, 255})
			idx += 3
		}
	}
	return rgba
}

func fromImage(img image.Image) *Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	bytes := make([]byte, width*height*3)

	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			bytes[idx] = byte(r >> 8)
			bytes[idx+1] = byte(g >> 8)
			bytes[idx+2] = byte(b >> 8)
			idx += 3
		}
	}
	return &Image{Width: width, Height: height, Bytes: bytes}
}
