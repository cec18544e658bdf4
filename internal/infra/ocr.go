package infra

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/gabework/tradeguard/internal/domain"
	"github.com/gabework/tradeguard/internal/platform"
)

// charWhitelist restricts recognition to what a P&L widget can contain. The
// tilde and semicolon are kept on purpose: the extractor knows how to repair
// those misreads, but only if Tesseract is allowed to emit them.
const charWhitelist = "0123456789.,-+()$€£¥%~; "

// TesseractEngine implements domain.OCREngine via Tesseract with an OpenCV
// preprocessing pass tuned per platform profile.
type TesseractEngine struct {
	profile platform.OCRProfile
	logger  *zap.Logger
}

// NewTesseractEngine creates an OCR engine tuned for one platform.
func NewTesseractEngine(profile platform.OCRProfile, logger *zap.Logger) *TesseractEngine {
	return &TesseractEngine{profile: profile, logger: logger}
}

// Recognize preprocesses the image and runs Tesseract on it. A fresh client
// per call: gosseract clients are not safe for reuse across goroutines, and
// sample frequency is far below the client setup cost mattering.
func (e *TesseractEngine) Recognize(img image.Image) (string, error) {
	prepared, err := e.preprocess(img)
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetWhitelist(charWhitelist); err != nil {
		return "", fmt.Errorf("setting OCR whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(e.profile.PageSegMode)); err != nil {
		return "", fmt.Errorf("setting page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(prepared); err != nil {
		return "", fmt.Errorf("loading image into OCR engine: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}

	e.logger.Debug("ocr result", zap.String("text", text))
	return text, nil
}

// preprocess grayscales, upsamples and binarizes the capture. Trading
// platforms render P&L in small anti-aliased fonts that raw Tesseract reads
// poorly; the OpenCV pass is what makes recognition reliable.
func (e *TesseractEngine) preprocess(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding capture: %w", err)
	}

	src, err := gocv.IMDecode(buf.Bytes(), gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decoding capture: %w", err)
	}
	defer src.Close()
	if src.Empty() {
		return nil, fmt.Errorf("empty capture")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	scaled := gocv.NewMat()
	defer scaled.Close()
	scale := e.profile.ScaleFactor
	if scale < 1 {
		scale = 1
	}
	gocv.Resize(gray, &scaled, image.Point{}, scale, scale, gocv.InterpolationCubic)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(scaled, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	// Tesseract wants dark text on light background.
	if e.profile.Invert {
		gocv.BitwiseNot(binary, &binary)
	}

	encoded, err := gocv.IMEncode(gocv.PNGFileExt, binary)
	if err != nil {
		return nil, fmt.Errorf("encoding preprocessed image: %w", err)
	}
	defer encoded.Close()

	out := make([]byte, len(encoded.GetBytes()))
	copy(out, encoded.GetBytes())
	return out, nil
}

// Ensure TesseractEngine implements domain.OCREngine.
var _ domain.OCREngine = (*TesseractEngine)(nil)
