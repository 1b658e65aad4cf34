package vision

import "github.com/banshee-data/avc/internal/payload"

// RGB is one interleaved colour sample.
type RGB struct {
	R, G, B uint8
}

// YUVToRGB converts a luma plane and its half-width chroma plane into dst.
// Each chroma sample covers two horizontally adjacent luma samples. dst must
// hold w*h samples.
func YUVToRGB(luma []uint8, chroma []payload.Chroma, dst []RGB, w, h int) {
	cw := w / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			c := chroma[y*cw+x/2]
			l := float64(luma[i])
			cb := float64(int(c.Cb) - 128)
			cr := float64(int(c.Cr) - 128)

			dst[i] = RGB{
				R: clampByte(l + 1.14*cb),
				G: clampByte(l - 0.395*cr - 0.581*cb),
				B: clampByte(l + 2.033*cr),
			}
		}
	}
}

// clampByte limits v to [0, 255] and truncates toward zero.
func clampByte(v float64) uint8 {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return uint8(v)
}
