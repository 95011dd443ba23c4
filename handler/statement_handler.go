package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/facturio/bank-statement-ocr/dto"
	"github.com/facturio/bank-statement-ocr/service"
)

type StatementHandler struct {
	statementService *service.StatementService
	logger           *zap.Logger
}

func NewStatementHandler(statementService *service.StatementService, logger *zap.Logger) *StatementHandler {
	return &StatementHandler{
		statementService: statementService,
		logger:           logger,
	}
}

// ExtractBankingInfo handles POST /bank-statement/extract
func (h *StatementHandler) ExtractBankingInfo(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.sendError(c, http.StatusBadRequest, "No file provided", err)
		return
	}

	if !h.statementService.IsSupportedFormat(fileHeader.Filename) {
		h.sendError(c, http.StatusBadRequest,
			"Unsupported file format, expected PDF or image (png, jpg, jpeg, bmp, tiff)", nil)
		return
	}

	password := c.PostForm("password")

	tempPath, cleanup, err := saveUpload(c, fileHeader)
	if err != nil {
		h.sendError(c, http.StatusInternalServerError, "Failed to store uploaded file", err)
		return
	}
	defer cleanup()

	h.logger.Info("processing bank statement",
		zap.String("filename", fileHeader.Filename),
		zap.Int64("size", fileHeader.Size))

	progress := func(status string) {
		h.logger.Info("extraction progress",
			zap.String("filename", fileHeader.Filename),
			zap.String("status", status))
	}

	response, err := h.statementService.ExtractStatement(c.Request.Context(), tempPath, password, progress)
	if err != nil {
		h.sendPipelineError(c, fileHeader.Filename, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *StatementHandler) sendPipelineError(c *gin.Context, filename string, err error) {
	switch {
	case errors.Is(err, dto.ErrUnsupportedFormat):
		h.sendError(c, http.StatusBadRequest, "Unsupported file format", err)
	case errors.Is(err, dto.ErrFileNotFound):
		h.sendError(c, http.StatusNotFound, "File not found", err)
	case errors.Is(err, dto.ErrOcrEngineUnavailable):
		h.sendError(c, http.StatusServiceUnavailable, "OCR engine is not provisioned", err)
	case errors.Is(err, dto.ErrNoTextFound):
		h.sendError(c, http.StatusUnprocessableEntity, "Could not read any text from the document", err)
	default:
		h.logger.Error("statement extraction failed",
			zap.String("filename", filename),
			zap.Error(err))
		h.sendError(c, http.StatusInternalServerError, "Failed to extract banking information", err)
	}
}

// saveUpload writes the uploaded statement to a temp file keeping its
// extension, which the extractor routes on.
func saveUpload(c *gin.Context, fileHeader *multipart.FileHeader) (string, func(), error) {
	tempFile, err := os.CreateTemp("", "stmt-upload-*"+filepath.Ext(fileHeader.Filename))
	if err != nil {
		return "", nil, err
	}
	tempFile.Close()

	if err := c.SaveUploadedFile(fileHeader, tempFile.Name()); err != nil {
		os.Remove(tempFile.Name())
		return "", nil, err
	}

	return tempFile.Name(), func() { os.Remove(tempFile.Name()) }, nil
}

// sendError sends a structured error response
func (h *StatementHandler) sendError(c *gin.Context, statusCode int, message string, err error) {
	errorMsg := message
	if err != nil {
		errorMsg = err.Error()
		h.logger.Warn(message, zap.Error(err))
	}

	c.JSON(statusCode, dto.ErrorResponse{
		Error:   "EXTRACTION_FAILED",
		Message: errorMsg,
		Code:    statusCode,
	})
}
