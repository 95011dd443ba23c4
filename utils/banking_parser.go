package utils

import (
	"regexp"
	"strings"

	"github.com/facturio/bank-statement-ocr/dto"
)

// Confidence weights per recovered field. Additive, capped at 1.0.
const (
	ibanWeight     = 0.4
	swiftWeight    = 0.3
	bankNameWeight = 0.2
	accountWeight  = 0.1
	maxConfidence  = 1.0
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// IBAN patterns, tried in order. OCR routinely injects spaces inside fixed
// width codes, so the spaced variants are not redundant with the plain one;
// candidates from every pattern are validated and deduplicated.
var ibanPatterns = []*regexp.Regexp{
	// French IBAN in its printed grouping: FR76 3000 6000 0112 3456 7890 189
	regexp.MustCompile(`(?i)\bFR ?\d{2}(?: ?\d{4}){5} ?\d{3}\b`),
	// Generic: country code + check digits + alphanumerics in the usual
	// print grouping of four, with an optional short tail group
	regexp.MustCompile(`(?i)\b[A-Z]{2}\d{2}(?:[ -]?[A-Z0-9]{4}){2,7}(?:[ -]?[A-Z0-9]{1,3})?\b`),
}

// Despaced IBAN shape: 2 letters, 2 digits, 11-30 alphanumerics (15-34 total).
var ibanShapeRegex = regexp.MustCompile(`^[A-Za-z]{2}\d{2}[A-Za-z0-9]{11,30}$`)

// SWIFT/BIC patterns, tried in order. The first tolerates OCR that spaced
// out every character of the code; the second is the canonical 8/11 form.
var swiftPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z](?: [A-Z]){5}(?: [A-Z0-9]){2}(?: [A-Z0-9]){0,3}\b`),
	regexp.MustCompile(`\b[A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`),
}

// French RIB: bank code, branch code, account number, check key.
var frenchRibRegex = regexp.MustCompile(`\b(\d{5}) ?(\d{5}) ?([A-Za-z0-9]{10,11}) ?(\d{2})\b`)

type bankAlias struct {
	name    string
	aliases []string
}

// Alias table checked in declaration order; first matching entry wins.
var bankAliases = []bankAlias{
	{"BNP Paribas", []string{"bnp paribas", "bnp", "paribas"}},
	{"Société Générale", []string{"société générale", "societe generale", "socgen"}},
	{"Crédit Agricole", []string{"crédit agricole", "credit agricole"}},
	{"Crédit Mutuel", []string{"crédit mutuel", "credit mutuel"}},
	{"Banque Populaire", []string{"banque populaire"}},
	{"Caisse d'Épargne", []string{"caisse d'épargne", "caisse d'epargne", "caisse depargne"}},
	{"La Banque Postale", []string{"banque postale"}},
	{"LCL", []string{"lcl", "crédit lyonnais", "credit lyonnais"}},
	{"HSBC", []string{"hsbc"}},
	{"Danske Bank", []string{"danske"}},
	{"Nordea", []string{"nordea"}},
	{"Jyske Bank", []string{"jyske"}},
	{"Sydbank", []string{"sydbank"}},
}

// French bank codes (positions 5-9 of a FR IBAN) to institution names,
// used when no alias appears in the text itself.
var frenchBankCodes = map[string]string{
	"30004": "BNP Paribas",
	"30003": "Société Générale",
	"30002": "LCL",
	"30006": "Crédit Agricole",
	"20041": "La Banque Postale",
	"30056": "HSBC",
	"10278": "Crédit Mutuel",
	"13807": "Banque Populaire",
	"11315": "Caisse d'Épargne",
}

// ParseBankingInfo recovers structured banking identifiers from raw OCR
// text. It never fails: fields that cannot be found stay empty and only
// lower the confidence score.
func ParseBankingInfo(text string) dto.BankingInfoResult {
	result := dto.BankingInfoResult{
		AllIBANsFound:      []string{},
		AllSwiftCodesFound: []string{},
	}

	// Collapse whitespace runs only. No character "corrections" here:
	// rewriting 0<->O would corrupt real account numbers.
	normalized := strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
	if normalized == "" {
		return result
	}

	result.AllIBANsFound = extractIBANs(normalized)
	if len(result.AllIBANsFound) > 0 {
		result.IBAN = result.AllIBANsFound[0]
	}

	result.AllSwiftCodesFound = extractSwiftCodes(normalized)
	if len(result.AllSwiftCodesFound) > 0 {
		result.SWIFT = result.AllSwiftCodesFound[0]
		result.BIC = result.SWIFT
	}

	result.BankName = matchBankName(normalized, result.AllIBANsFound)

	if rib, ok := extractFrenchRIB(normalized); ok {
		result.AccountNumber = strings.Join([]string{
			rib.BankCode, rib.BranchCode, rib.AccountNumber, rib.Key,
		}, " ")
		result.AdditionalInfo = map[string]dto.CountryAccountDetail{
			dto.InfoKeyFrenchRIB: rib,
		}
	}

	result.ConfidenceScore = ScoreBankingInfo(&result)
	return result
}

// ScoreBankingInfo derives the confidence score from which fields were
// recovered. Fixed evidence weights, not a statistical model.
func ScoreBankingInfo(result *dto.BankingInfoResult) float64 {
	score := 0.0
	if result.IBAN != "" {
		score += ibanWeight
	}
	if result.SWIFT != "" {
		score += swiftWeight
	}
	if result.BankName != "" {
		score += bankNameWeight
	}
	if result.AccountNumber != "" {
		score += accountWeight
	}
	if score > maxConfidence {
		score = maxConfidence
	}
	return score
}

// CanonicalizeIBAN uppercases an IBAN, strips spaces and hyphens, and
// regroups it into space-separated blocks of four characters.
func CanonicalizeIBAN(raw string) string {
	despaced := despaceIBAN(raw)
	var b strings.Builder
	for i, r := range despaced {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func despaceIBAN(raw string) string {
	despaced := strings.ReplaceAll(raw, " ", "")
	despaced = strings.ReplaceAll(despaced, "-", "")
	return strings.ToUpper(despaced)
}

func extractIBANs(normalized string) []string {
	var found []string
	seen := make(map[string]bool)

	for _, pattern := range ibanPatterns {
		for _, raw := range pattern.FindAllString(normalized, -1) {
			despaced := despaceIBAN(raw)
			if !ibanShapeRegex.MatchString(despaced) {
				continue
			}
			canonical := CanonicalizeIBAN(despaced)
			if seen[canonical] {
				continue
			}
			seen[canonical] = true
			found = append(found, canonical)
		}
	}
	return sliceOrEmpty(found)
}

func extractSwiftCodes(normalized string) []string {
	var found []string
	seen := make(map[string]bool)

	for _, pattern := range swiftPatterns {
		for _, raw := range pattern.FindAllString(normalized, -1) {
			code := strings.ReplaceAll(raw, " ", "")
			if len(code) < 8 || len(code) > 11 {
				continue
			}
			if seen[code] {
				continue
			}
			seen[code] = true
			found = append(found, code)
		}
	}
	return sliceOrEmpty(found)
}

func matchBankName(normalized string, ibans []string) string {
	lower := strings.ToLower(normalized)
	for _, entry := range bankAliases {
		for _, alias := range entry.aliases {
			if strings.Contains(lower, alias) {
				return entry.name
			}
		}
	}

	// No alias in the text: fall back to the bank-code segment of the
	// first IBAN for countries we have a code table for.
	if len(ibans) > 0 {
		despaced := despaceIBAN(ibans[0])
		if strings.HasPrefix(despaced, "FR") && len(despaced) >= 9 {
			if name, ok := frenchBankCodes[despaced[4:9]]; ok {
				return name
			}
		}
	}

	return ""
}

func extractFrenchRIB(normalized string) (dto.FrenchRIB, bool) {
	matches := frenchRibRegex.FindStringSubmatch(normalized)
	if len(matches) != 5 {
		return dto.FrenchRIB{}, false
	}
	return dto.FrenchRIB{
		BankCode:      matches[1],
		BranchCode:    matches[2],
		AccountNumber: strings.ToUpper(matches[3]),
		Key:           matches[4],
	}, true
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
