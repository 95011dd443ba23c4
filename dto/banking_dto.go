package dto

// AdditionalInfo keys for country-specific account formats.
const (
	InfoKeyFrenchRIB     = "FrenchRIB"
	InfoKeyDanishBanking = "DanishBanking"
)

// CountryAccountDetail is implemented by country-specific structured
// account records stored under BankingInfoResult.AdditionalInfo.
type CountryAccountDetail interface {
	countryAccountDetail()
}

// FrenchRIB is a Relevé d'Identité Bancaire: bank code, branch code,
// account number and check key.
type FrenchRIB struct {
	BankCode      string `json:"bank_code"`
	BranchCode    string `json:"branch_code"`
	AccountNumber string `json:"account_number"`
	Key           string `json:"key"`
}

func (FrenchRIB) countryAccountDetail() {}

// DanishBanking holds a Danish registration number + account number pair.
// No extraction currently populates it; the type exists so callers that
// auto-fill Danish fields have a stable shape to consume.
type DanishBanking struct {
	RegistrationNumber string `json:"registration_number"`
	AccountNumber      string `json:"account_number"`
}

func (DanishBanking) countryAccountDetail() {}

// BankingInfoResult is the structured output of parsing bank statement text.
// All fields are optional; empty means "not found", never an error.
type BankingInfoResult struct {
	BankName      string `json:"bank_name,omitempty"`
	IBAN          string `json:"iban,omitempty"`
	SWIFT         string `json:"swift,omitempty"`
	BIC           string `json:"bic,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`

	AllIBANsFound      []string `json:"all_ibans_found"`
	AllSwiftCodesFound []string `json:"all_swift_codes_found"`

	ConfidenceScore float64 `json:"confidence_score"`

	AdditionalInfo map[string]CountryAccountDetail `json:"additional_info,omitempty"`
}
