package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"SERVER_PORT", "TESSDATA_PREFIX", "OCR_LANGUAGE",
		"OCR_DPI", "MAX_FILE_SIZE", "MIN_CONFIDENCE",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "/usr/share/tesseract-ocr/5/tessdata", cfg.TesseractDataPath)
	assert.Equal(t, "eng", cfg.OcrLanguage)
	assert.Equal(t, 300, cfg.OcrDPI)
	assert.Equal(t, 30.0, cfg.MinOcrConfidence)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("OCR_LANGUAGE", "fra")
	t.Setenv("OCR_DPI", "600")
	t.Setenv("MIN_CONFIDENCE", "45.5")

	cfg := LoadConfig()

	assert.Equal(t, "fra", cfg.OcrLanguage)
	assert.Equal(t, 600, cfg.OcrDPI)
	assert.Equal(t, 45.5, cfg.MinOcrConfidence)
}

func TestLoadConfigIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("OCR_DPI", "high")
	t.Setenv("MIN_CONFIDENCE", "lots")

	cfg := LoadConfig()

	assert.Equal(t, 300, cfg.OcrDPI)
	assert.Equal(t, 30.0, cfg.MinOcrConfidence)
}
