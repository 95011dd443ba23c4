package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/facturio/bank-statement-ocr/dto"
	"github.com/facturio/bank-statement-ocr/utils"
)

// ProgressFunc receives human-readable status milestones during extraction.
// It is purely informational: a nil or panicking callback never affects the
// extraction result.
type ProgressFunc func(status string)

// OcrEngine is the OCR capability the extractor consumes.
type OcrEngine interface {
	Validate() error
	ExtractFromFile(imagePath string) (string, float64, error)
	ExtractFromBytes(imageData []byte) (string, float64, error)
}

// pageRasterizer is the slice of fitz.Document the page loop needs.
type pageRasterizer interface {
	NumPage() int
	ImageDPI(pageNumber int, dpi float64) (image.Image, error)
}

type fitzRasterizer struct {
	doc *fitz.Document
}

func (r fitzRasterizer) NumPage() int { return r.doc.NumPage() }

func (r fitzRasterizer) ImageDPI(pageNumber int, dpi float64) (image.Image, error) {
	return r.doc.ImageDPI(pageNumber, dpi)
}

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
}

// Below this many characters the embedded PDF text layer is treated as
// absent (scanned document) and pages go through OCR instead.
const minTextLayerChars = 32

type StatementService struct {
	ocr           OcrEngine
	logger        *zap.Logger
	dpi           int
	minConfidence float64
}

func NewStatementService(ocr OcrEngine, logger *zap.Logger, dpi int, minConfidence float64) *StatementService {
	return &StatementService{
		ocr:           ocr,
		logger:        logger,
		dpi:           dpi,
		minConfidence: minConfidence,
	}
}

// IsSupportedFormat reports whether the file extension is one the pipeline
// can process. The check is case-insensitive.
func (s *StatementService) IsSupportedFormat(filePath string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filePath))]
}

// ExtractText converts a bank statement document (PDF or image) into plain
// text via OCR. Page text is newline-joined in page order; an empty string
// is a valid result, not an error. The context is checked between pages
// only, so cancellation is coarse-grained.
func (s *StatementService) ExtractText(ctx context.Context, filePath string, progress ProgressFunc) (string, error) {
	text, _, err := s.extract(ctx, filePath, progress)
	return text, err
}

// ExtractStatement runs the full pipeline: text extraction, banking-info
// parsing and the EPC QR pass, producing the response the caller can
// auto-fill from. Password applies to encrypted PDFs only.
func (s *StatementService) ExtractStatement(ctx context.Context, filePath, password string, progress ProgressFunc) (*dto.StatementExtractResponse, error) {
	path := filePath
	if password != "" && strings.EqualFold(filepath.Ext(filePath), ".pdf") {
		decrypted, cleanup, err := s.decryptPDF(filePath, password)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		path = decrypted
	}

	text, ocrConfidence, err := s.extract(ctx, path, progress)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", dto.ErrNoTextFound, filepath.Base(filePath))
	}

	info := utils.ParseBankingInfo(text)
	var accountHolder string
	if payment := s.scanEPCQR(path); payment != nil {
		mergeEPCPayment(payment, &info)
		accountHolder = payment.BeneficiaryName
	}

	return &dto.StatementExtractResponse{
		BankingInfo:   info,
		AccountHolder: accountHolder,
		TextLength:    len(text),
		OcrConfidence: ocrConfidence,
		LowConfidence: ocrConfidence < s.minConfidence,
		NeedsReview:   info.ConfidenceScore <= 0.3,
		ProcessedAt:   time.Now().Format(time.RFC3339),
	}, nil
}

func (s *StatementService) extract(ctx context.Context, filePath string, progress ProgressFunc) (string, float64, error) {
	progress = safeProgress(progress)

	if _, err := os.Stat(filePath); err != nil {
		return "", 0, fmt.Errorf("%w: %s", dto.ErrFileNotFound, filePath)
	}
	if !s.IsSupportedFormat(filePath) {
		return "", 0, fmt.Errorf("%w: %q", dto.ErrUnsupportedFormat, filepath.Ext(filePath))
	}
	if err := s.ocr.Validate(); err != nil {
		return "", 0, err
	}

	progress("Initializing OCR engine...")

	if strings.EqualFold(filepath.Ext(filePath), ".pdf") {
		return s.extractFromPDF(ctx, filePath, progress)
	}
	return s.extractFromImage(filePath, progress)
}

func (s *StatementService) extractFromImage(filePath string, progress ProgressFunc) (string, float64, error) {
	progress("Loading image...")

	text, confidence, err := s.ocr.ExtractFromFile(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("OCR extraction failed: %w", err)
	}

	s.logConfidence(filePath, confidence)
	progress("Extraction complete.")
	return text, confidence, nil
}

func (s *StatementService) extractFromPDF(ctx context.Context, filePath string, progress ProgressFunc) (string, float64, error) {
	progress("Loading PDF document...")

	// Digital statements carry a usable text layer; only scanned ones
	// need rasterization and OCR.
	if text, err := s.pdfTextLayer(filePath); err == nil && len(strings.TrimSpace(text)) >= minTextLayerChars {
		s.logger.Info("using embedded PDF text layer", zap.String("file", filePath))
		progress("Extraction complete.")
		return text, 100, nil
	}

	doc, err := fitz.New(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	text, confidence, err := s.ocrPages(ctx, filePath, fitzRasterizer{doc}, progress)
	if err != nil {
		return "", 0, err
	}

	s.logConfidence(filePath, confidence)
	progress("Extraction complete.")
	return text, confidence, nil
}

func (s *StatementService) ocrPages(ctx context.Context, filePath string, doc pageRasterizer, progress ProgressFunc) (string, float64, error) {
	total := doc.NumPage()

	var pages []string
	var confidenceSum float64
	var pagesScored int

	for pageNum := 0; pageNum < total; pageNum++ {
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		default:
		}

		progress(fmt.Sprintf("Processing page %d of %d...", pageNum+1, total))

		img, err := doc.ImageDPI(pageNum, float64(s.dpi))
		if err != nil {
			// One damaged page must not abort the whole statement.
			s.logger.Warn("skipping page: rasterization failed",
				zap.String("file", filePath),
				zap.Int("page", pageNum+1),
				zap.Error(err))
			continue
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			s.logger.Warn("skipping page: PNG encode failed",
				zap.String("file", filePath),
				zap.Int("page", pageNum+1),
				zap.Error(err))
			continue
		}

		pageText, confidence, err := s.ocr.ExtractFromBytes(buf.Bytes())
		if err != nil {
			s.logger.Warn("skipping page: OCR failed",
				zap.String("file", filePath),
				zap.Int("page", pageNum+1),
				zap.Error(err))
			continue
		}

		pages = append(pages, pageText)
		confidenceSum += confidence
		pagesScored++
	}

	meanConfidence := 0.0
	if pagesScored > 0 {
		meanConfidence = confidenceSum / float64(pagesScored)
	}

	return strings.Join(pages, "\n"), meanConfidence, nil
}

// pdfTextLayer reads the embedded text layer of a digital PDF. The reader
// panics on some malformed documents, hence the recover.
func (s *StatementService) pdfTextLayer(filePath string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf text layer: %v", r)
		}
	}()

	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var builder strings.Builder
	total := reader.NumPage()

	for pageNum := 1; pageNum <= total; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			for _, word := range row.Content {
				builder.WriteString(word.S)
				builder.WriteByte(' ')
			}
			builder.WriteByte('\n')
		}
	}

	return builder.String(), nil
}

// decryptPDF writes a decrypted copy of a password-protected statement to a
// temp file. The caller owns the returned cleanup.
func (s *StatementService) decryptPDF(filePath, password string) (string, func(), error) {
	tempFile, err := os.CreateTemp("", "stmt-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempFile.Close()

	conf := model.NewDefaultConfiguration()
	conf.UserPW = password

	if err := api.DecryptFile(filePath, tempFile.Name(), conf); err != nil {
		os.Remove(tempFile.Name())
		return "", nil, fmt.Errorf("failed to decrypt PDF: %w", err)
	}

	cleanup := func() { os.Remove(tempFile.Name()) }
	return tempFile.Name(), cleanup, nil
}

// scanEPCQR looks for an EPC payment QR code on the first page. Any failure
// just means the statement has no usable QR.
func (s *StatementService) scanEPCQR(filePath string) *utils.EPCPayment {
	img, err := s.firstPageImage(filePath)
	if err != nil {
		return nil
	}

	payment, err := utils.DecodeEPCQR(img)
	if err != nil {
		return nil
	}

	s.logger.Info("EPC payment QR found",
		zap.String("file", filePath),
		zap.String("bic", payment.BIC))
	return payment
}

// mergeEPCPayment merges QR banking fields into the parse result. QR fields
// fill gaps only; they never displace what the text parser already found.
func mergeEPCPayment(payment *utils.EPCPayment, info *dto.BankingInfoResult) {
	if payment.IBAN != "" {
		canonical := utils.CanonicalizeIBAN(payment.IBAN)
		if !containsString(info.AllIBANsFound, canonical) {
			info.AllIBANsFound = append(info.AllIBANsFound, canonical)
		}
		if info.IBAN == "" {
			info.IBAN = canonical
		}
	}
	if payment.BIC != "" {
		if !containsString(info.AllSwiftCodesFound, payment.BIC) {
			info.AllSwiftCodesFound = append(info.AllSwiftCodesFound, payment.BIC)
		}
		if info.SWIFT == "" {
			info.SWIFT = payment.BIC
			info.BIC = payment.BIC
		}
	}

	info.ConfidenceScore = utils.ScoreBankingInfo(info)
}

func (s *StatementService) firstPageImage(filePath string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(filePath), ".pdf") {
		doc, err := fitz.New(filePath)
		if err != nil {
			return nil, err
		}
		defer doc.Close()

		if doc.NumPage() == 0 {
			return nil, fmt.Errorf("pdf has no pages")
		}
		return doc.ImageDPI(0, float64(s.dpi))
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

func (s *StatementService) logConfidence(filePath string, confidence float64) {
	s.logger.Info("OCR mean confidence",
		zap.String("file", filePath),
		zap.Float64("confidence", confidence))

	if confidence < s.minConfidence {
		s.logger.Warn("low OCR confidence, extracted text may be unreliable",
			zap.String("file", filePath),
			zap.Float64("confidence", confidence),
			zap.Float64("threshold", s.minConfidence))
	}
}

func safeProgress(progress ProgressFunc) ProgressFunc {
	if progress == nil {
		return func(string) {}
	}
	return func(status string) {
		defer func() { _ = recover() }()
		progress(status)
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
