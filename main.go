package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/facturio/bank-statement-ocr/client"
	"github.com/facturio/bank-statement-ocr/config"
	"github.com/facturio/bank-statement-ocr/handler"
	"github.com/facturio/bank-statement-ocr/service"
)

func main() {
	// Optional .env for local development; env vars win either way.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.LoadConfig()

	// Initialize Tesseract client
	tesseractClient := client.NewTesseractClient(cfg.TesseractDataPath, cfg.OcrLanguage, logger)
	if err := tesseractClient.Validate(); err != nil {
		// Surface missing language data at startup rather than on the
		// first upload.
		logger.Warn("OCR language data check failed", zap.Error(err))
	}

	// Initialize service layer
	statementService := service.NewStatementService(tesseractClient, logger, cfg.OcrDPI, cfg.MinOcrConfidence)

	// Initialize handler layer
	statementHandler := handler.NewStatementHandler(statementService, logger)

	// Setup Gin router
	router := gin.Default()
	router.MaxMultipartMemory = cfg.MaxFileSize

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "Bank Statement OCR",
		})
	})

	// API routes
	api := router.Group("/api/v1")
	{
		statement := api.Group("/bank-statement")
		{
			statement.POST("/extract", statementHandler.ExtractBankingInfo)
		}
	}

	logger.Info("starting bank statement OCR service", zap.String("port", cfg.ServerPort))
	if err := router.Run(":" + cfg.ServerPort); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
