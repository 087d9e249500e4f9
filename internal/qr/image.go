package qr

import qrcode "github.com/skip2/go-qrcode"

// DefaultImageSize is the pixel width of rendered QR codes.
const DefaultImageSize = 256

// EncodePNG renders an encoded payload string as a QR code PNG.
func EncodePNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}
