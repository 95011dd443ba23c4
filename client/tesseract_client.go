package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"github.com/facturio/bank-statement-ocr/dto"
)

// bankingCharWhitelist restricts recognition to the glyphs that appear in
// banking identifiers. Anything else is OCR noise for this document class.
const bankingCharWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789.-/ "

type TesseractClient struct {
	dataPath string
	language string
	logger   *zap.Logger
}

func NewTesseractClient(dataPath, language string, logger *zap.Logger) *TesseractClient {
	return &TesseractClient{
		dataPath: dataPath,
		language: language,
		logger:   logger,
	}
}

// Validate checks that the trained-data file for the configured language is
// present. Its absence is a configuration error, not a per-document one, so
// callers should fail the whole extraction with guidance for the operator.
func (tc *TesseractClient) Validate() error {
	trainedData := filepath.Join(tc.dataPath, tc.language+".traineddata")
	if _, err := os.Stat(trainedData); err != nil {
		return fmt.Errorf("%w: %s is missing; install the tesseract language pack "+
			"(e.g. tesseract-ocr-%s) or point TESSDATA_PREFIX at a directory containing it",
			dto.ErrOcrEngineUnavailable, trainedData, tc.language)
	}
	return nil
}

// ExtractFromFile runs OCR on an image file and returns the recognized text
// together with the mean word confidence in [0,100].
func (tc *TesseractClient) ExtractFromFile(imagePath string) (string, float64, error) {
	engine, err := tc.newEngine()
	if err != nil {
		return "", 0, err
	}
	defer engine.Close()

	if err := engine.SetImage(imagePath); err != nil {
		return "", 0, fmt.Errorf("failed to set image: %w", err)
	}
	return tc.recognize(engine)
}

// ExtractFromBytes runs OCR on an in-memory encoded image (e.g. a PNG of a
// rasterized PDF page).
func (tc *TesseractClient) ExtractFromBytes(imageData []byte) (string, float64, error) {
	engine, err := tc.newEngine()
	if err != nil {
		return "", 0, err
	}
	defer engine.Close()

	if err := engine.SetImageFromBytes(imageData); err != nil {
		return "", 0, fmt.Errorf("failed to set image: %w", err)
	}
	return tc.recognize(engine)
}

// Engine instances are call-scoped: gosseract clients are not documented as
// safe for concurrent Process calls, so each extraction gets its own.
func (tc *TesseractClient) newEngine() (*gosseract.Client, error) {
	engine := gosseract.NewClient()

	engine.SetTessdataPrefix(tc.dataPath)
	if err := engine.SetLanguage(tc.language); err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to set language: %w", err)
	}

	engine.SetPageSegMode(gosseract.PSM_AUTO)
	engine.SetVariable("tessedit_char_whitelist", bankingCharWhitelist)
	engine.SetVariable("preserve_interword_spaces", "1")

	return engine, nil
}

func (tc *TesseractClient) recognize(engine *gosseract.Client) (string, float64, error) {
	text, err := engine.Text()
	if err != nil {
		return "", 0, fmt.Errorf("failed to extract text: %w", err)
	}

	boxes, err := engine.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Confidence is advisory; text alone is still a usable result.
		tc.logger.Warn("failed to read word confidences", zap.Error(err))
		return text, 0, nil
	}

	var totalConf float64
	for _, box := range boxes {
		totalConf += box.Confidence
	}

	avgConf := 0.0
	if len(boxes) > 0 {
		avgConf = totalConf / float64(len(boxes))
	}

	return text, avgConf, nil
}
