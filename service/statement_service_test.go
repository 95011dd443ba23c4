package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/facturio/bank-statement-ocr/dto"
	"github.com/facturio/bank-statement-ocr/utils"
)

type ocrResult struct {
	text       string
	confidence float64
	err        error
}

type fakeOcr struct {
	validateErr error
	fileResult  ocrResult
	pageResults []ocrResult
	pageCalls   int
}

func (f *fakeOcr) Validate() error { return f.validateErr }

func (f *fakeOcr) ExtractFromFile(string) (string, float64, error) {
	return f.fileResult.text, f.fileResult.confidence, f.fileResult.err
}

func (f *fakeOcr) ExtractFromBytes([]byte) (string, float64, error) {
	if f.pageCalls >= len(f.pageResults) {
		return "", 0, errors.New("unexpected OCR call")
	}
	r := f.pageResults[f.pageCalls]
	f.pageCalls++
	return r.text, r.confidence, r.err
}

type fakeRasterizer struct {
	pages     int
	failPages map[int]bool
}

func (f *fakeRasterizer) NumPage() int { return f.pages }

func (f *fakeRasterizer) ImageDPI(pageNumber int, dpi float64) (image.Image, error) {
	if f.failPages[pageNumber] {
		return nil, errors.New("damaged page")
	}
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}

func newTestService(ocr OcrEngine) *StatementService {
	return NewStatementService(ocr, zap.NewNop(), 300, 30.0)
}

func TestIsSupportedFormat(t *testing.T) {
	svc := newTestService(&fakeOcr{})

	supported := []string{
		"statement.pdf", "statement.PDF", "scan.png", "scan.PnG",
		"scan.jpg", "scan.jpeg", "scan.bmp", "scan.tiff", "scan.tif",
	}
	for _, name := range supported {
		assert.True(t, svc.IsSupportedFormat(name), name)
	}

	unsupported := []string{"statement.docx", "notes.txt", "statement", ""}
	for _, name := range unsupported {
		assert.False(t, svc.IsSupportedFormat(name), name)
	}
}

func TestExtractTextFileNotFound(t *testing.T) {
	svc := newTestService(&fakeOcr{})

	_, err := svc.ExtractText(context.Background(), "/nonexistent/statement.pdf", nil)
	assert.ErrorIs(t, err, dto.ErrFileNotFound)
}

func TestExtractTextUnsupportedFormat(t *testing.T) {
	svc := newTestService(&fakeOcr{})
	path := writeTempFile(t, "statement.docx")

	_, err := svc.ExtractText(context.Background(), path, nil)
	assert.ErrorIs(t, err, dto.ErrUnsupportedFormat)
}

func TestExtractTextEngineUnavailable(t *testing.T) {
	unavailable := fmt.Errorf("%w: eng.traineddata is missing", dto.ErrOcrEngineUnavailable)
	svc := newTestService(&fakeOcr{validateErr: unavailable})
	path := writeTempFile(t, "scan.png")

	var statuses []string
	_, err := svc.ExtractText(context.Background(), path, func(s string) {
		statuses = append(statuses, s)
	})

	assert.ErrorIs(t, err, dto.ErrOcrEngineUnavailable)
	// Configuration errors surface before any work is reported.
	assert.Empty(t, statuses)
}

func TestExtractTextFromImage(t *testing.T) {
	ocr := &fakeOcr{fileResult: ocrResult{text: "IBAN FR76", confidence: 85}}
	svc := newTestService(ocr)
	path := writeTempFile(t, "scan.png")

	var statuses []string
	text, err := svc.ExtractText(context.Background(), path, func(s string) {
		statuses = append(statuses, s)
	})

	require.NoError(t, err)
	assert.Equal(t, "IBAN FR76", text)
	assert.Equal(t, []string{
		"Initializing OCR engine...",
		"Loading image...",
		"Extraction complete.",
	}, statuses)
}

func TestExtractTextProgressPanicIgnored(t *testing.T) {
	ocr := &fakeOcr{fileResult: ocrResult{text: "hello", confidence: 90}}
	svc := newTestService(ocr)
	path := writeTempFile(t, "scan.png")

	text, err := svc.ExtractText(context.Background(), path, func(string) {
		panic("observer blew up")
	})

	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestOcrPagesSkipsDamagedPage(t *testing.T) {
	ocr := &fakeOcr{pageResults: []ocrResult{
		{text: "text from page 1", confidence: 80},
		{text: "text from page 3", confidence: 90},
	}}
	svc := newTestService(ocr)
	doc := &fakeRasterizer{pages: 3, failPages: map[int]bool{1: true}}

	var statuses []string
	text, confidence, err := svc.ocrPages(context.Background(), "stmt.pdf", doc, func(s string) {
		statuses = append(statuses, s)
	})

	require.NoError(t, err)
	assert.Equal(t, "text from page 1\ntext from page 3", text)
	assert.Equal(t, 85.0, confidence)
	assert.Equal(t, []string{
		"Processing page 1 of 3...",
		"Processing page 2 of 3...",
		"Processing page 3 of 3...",
	}, statuses)
}

func TestOcrPagesSkipsFailedOcr(t *testing.T) {
	ocr := &fakeOcr{pageResults: []ocrResult{
		{text: "page one", confidence: 70},
		{err: errors.New("engine hiccup")},
		{text: "page three", confidence: 90},
	}}
	svc := newTestService(ocr)
	doc := &fakeRasterizer{pages: 3}

	text, confidence, err := svc.ocrPages(context.Background(), "stmt.pdf", doc, func(string) {})

	require.NoError(t, err)
	assert.Equal(t, "page one\npage three", text)
	assert.Equal(t, 80.0, confidence)
}

func TestOcrPagesEmptyResultIsNotAnError(t *testing.T) {
	ocr := &fakeOcr{pageResults: []ocrResult{{text: "", confidence: 40}}}
	svc := newTestService(ocr)
	doc := &fakeRasterizer{pages: 1}

	text, _, err := svc.ocrPages(context.Background(), "stmt.pdf", doc, func(string) {})

	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestOcrPagesCancelledBetweenPages(t *testing.T) {
	ocr := &fakeOcr{pageResults: []ocrResult{{text: "page one", confidence: 70}}}
	svc := newTestService(ocr)
	doc := &fakeRasterizer{pages: 5}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.ocrPages(ctx, "stmt.pdf", doc, func(string) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeEPCPaymentFillsEmptyResult(t *testing.T) {
	info := dto.BankingInfoResult{
		AllIBANsFound:      []string{},
		AllSwiftCodesFound: []string{},
	}
	payment := &utils.EPCPayment{
		BIC:             "BNPAFRPP",
		BeneficiaryName: "ACME SARL",
		IBAN:            "fr7630006000011234567890189",
	}

	mergeEPCPayment(payment, &info)

	assert.Equal(t, "FR76 3000 6000 0112 3456 7890 189", info.IBAN)
	assert.Equal(t, []string{"FR76 3000 6000 0112 3456 7890 189"}, info.AllIBANsFound)
	assert.Equal(t, "BNPAFRPP", info.SWIFT)
	assert.Equal(t, "BNPAFRPP", info.BIC)
	assert.Equal(t, []string{"BNPAFRPP"}, info.AllSwiftCodesFound)
	assert.InDelta(t, 0.7, info.ConfidenceScore, 1e-9)
}

func TestMergeEPCPaymentDoesNotDisplaceParsedFields(t *testing.T) {
	info := utils.ParseBankingInfo(
		"Bank: BNP Paribas IBAN: FR76 3000 6000 0112 3456 7890 189 SWIFT: BNPAFRPPXXX")
	payment := &utils.EPCPayment{BIC: "DABADKKK", IBAN: "DK5000400440116243"}

	mergeEPCPayment(payment, &info)

	assert.Equal(t, "FR76 3000 6000 0112 3456 7890 189", info.IBAN)
	assert.Equal(t, "BNPAFRPPXXX", info.SWIFT)
	assert.Contains(t, info.AllIBANsFound, "DK50 0040 0440 1162 43")
	assert.Contains(t, info.AllSwiftCodesFound, "DABADKKK")
	assert.InDelta(t, 0.9, info.ConfidenceScore, 1e-9)
}

func TestMergeEPCPaymentDedupes(t *testing.T) {
	info := utils.ParseBankingInfo("IBAN FR76 1234 5678 9012 3456 7890 123")
	payment := &utils.EPCPayment{IBAN: "FR7612345678901234567890123"}

	mergeEPCPayment(payment, &info)

	assert.Equal(t, []string{"FR76 1234 5678 9012 3456 7890 123"}, info.AllIBANsFound)
	assert.InDelta(t, 0.4, info.ConfidenceScore, 1e-9)
}

func writeTempFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o644))
	return path
}
