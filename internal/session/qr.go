package session

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
)

// Challenge is a pending pairing QR code. It only exists while the session
// is not open.
type Challenge struct {
	Token    string
	DataURL  string
	IssuedAt time.Time
}

// RenderQR encodes token as a PNG data URL suitable for an <img> tag.
func RenderQR(token string, issuedAt time.Time) (*Challenge, error) {
	png, err := qrcode.Encode(token, qrcode.Medium, config.QRImageSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrQRRender, err)
	}
	return &Challenge{
		Token:    token,
		DataURL:  config.MimePNGDataURL + base64.StdEncoding.EncodeToString(png),
		IssuedAt: issuedAt,
	}, nil
}
