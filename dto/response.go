package dto

import "errors"

// Pipeline errors. Handlers match on these with errors.Is to pick a status.
var (
	ErrFileNotFound         = errors.New("file not found")
	ErrUnsupportedFormat    = errors.New("unsupported file format")
	ErrOcrEngineUnavailable = errors.New("OCR language data unavailable")
	ErrNoTextFound          = errors.New("no text could be read from the document")
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// StatementExtractResponse is the final response structure. AccountHolder
// is only known when the statement carries an EPC payment QR naming the
// beneficiary.
type StatementExtractResponse struct {
	BankingInfo   BankingInfoResult `json:"banking_info"`
	AccountHolder string            `json:"account_holder,omitempty"`
	TextLength    int               `json:"text_length"`
	OcrConfidence float64           `json:"ocr_confidence"`
	LowConfidence bool              `json:"low_confidence"`
	NeedsReview   bool              `json:"needs_review"`
	ProcessedAt   string            `json:"processed_at"`
}
