package utils

import (
	"errors"
	"image"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNotEPCPayload is returned when a decoded QR code is not an EPC
// (SEPA credit transfer) payment code.
var ErrNotEPCPayload = errors.New("not an EPC payment QR payload")

// EPCPayment holds the banking fields of an EPC "BCD" QR code, the machine
// readable payment slips printed on many European statements and giros.
type EPCPayment struct {
	BIC             string `json:"bic,omitempty"`
	BeneficiaryName string `json:"beneficiary_name,omitempty"`
	IBAN            string `json:"iban,omitempty"`
	Amount          string `json:"amount,omitempty"`
	Remittance      string `json:"remittance,omitempty"`
}

// DecodeEPCQR scans an image for a QR code and interprets it as an EPC
// payment payload. Any failure just means "no usable QR on this page".
func DecodeEPCQR(img image.Image) (*EPCPayment, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, err
	}

	reader := qrcode.NewQRCodeReader()
	decoded, err := reader.Decode(bmp, nil)
	if err != nil {
		return nil, err
	}

	return ParseEPCPayload(decoded.GetText())
}

// ParseEPCPayload parses the line-oriented EPC payload. Layout (EPC069-12):
// service tag, version, charset, identification, BIC, name, IBAN, amount,
// purpose, reference, remittance.
func ParseEPCPayload(payload string) (*EPCPayment, error) {
	payload = strings.ReplaceAll(payload, "\r\n", "\n")
	lines := strings.Split(payload, "\n")
	if len(lines) < 7 {
		return nil, ErrNotEPCPayload
	}
	if strings.TrimSpace(lines[0]) != "BCD" {
		return nil, ErrNotEPCPayload
	}
	if strings.TrimSpace(lines[3]) != "SCT" {
		return nil, ErrNotEPCPayload
	}

	payment := &EPCPayment{
		BIC:             strings.TrimSpace(lines[4]),
		BeneficiaryName: strings.TrimSpace(lines[5]),
		IBAN:            strings.TrimSpace(lines[6]),
	}
	if len(lines) > 7 {
		payment.Amount = strings.TrimSpace(lines[7])
	}
	if len(lines) > 10 {
		payment.Remittance = strings.TrimSpace(lines[10])
	}

	if payment.IBAN == "" && payment.BIC == "" {
		return nil, ErrNotEPCPayload
	}
	return payment, nil
}
