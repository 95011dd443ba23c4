package config

import (
	"os"
	"strconv"
)

type Config struct {
	ServerPort        string
	TesseractDataPath string
	OcrLanguage       string
	OcrDPI            int
	MaxFileSize       int64
	MinOcrConfidence  float64
}

func LoadConfig() *Config {
	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	tesseractDataPath := os.Getenv("TESSDATA_PREFIX")
	if tesseractDataPath == "" {
		tesseractDataPath = "/usr/share/tesseract-ocr/5/tessdata"
	}

	ocrLanguage := os.Getenv("OCR_LANGUAGE")
	if ocrLanguage == "" {
		ocrLanguage = "eng"
	}

	return &Config{
		ServerPort:        serverPort,
		TesseractDataPath: tesseractDataPath,
		OcrLanguage:       ocrLanguage,
		OcrDPI:            getEnvInt("OCR_DPI", 300),
		MaxFileSize:       int64(getEnvInt("MAX_FILE_SIZE", 10*1024*1024)),
		MinOcrConfidence:  getEnvFloat("MIN_CONFIDENCE", 30.0),
	}
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return f
}
