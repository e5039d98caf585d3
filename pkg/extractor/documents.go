package extractor

import (
	"regexp"
	"strings"
)

// cnpjPattern matches the 14-digit legal-entity identifier with or without
// the conventional punctuation (12.345.678/0001-95).
var cnpjPattern = regexp.MustCompile(`\b\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}\b`)

// cpfPattern matches the 11-digit natural-person identifier
// (123.456.789-09). A candidate that also matched as part of a CNPJ is
// discarded by the caller (disjoint-kind overlap rule).
var cpfPattern = regexp.MustCompile(`\b\d{3}\.?\d{3}\.?\d{3}-?\d{2}\b`)

var digitsOnly = regexp.MustCompile(`\D`)

// CanonicalCNPJ strips punctuation and returns the 14-digit form, or ""
// when the checksum fails.
func CanonicalCNPJ(raw string) string {
	digits := digitsOnly.ReplaceAllString(raw, "")
	if len(digits) != 14 || !validCNPJChecksum(digits) {
		return ""
	}
	return digits
}

// CanonicalCPF strips punctuation and returns the 11-digit form, or ""
// when the checksum fails.
func CanonicalCPF(raw string) string {
	digits := digitsOnly.ReplaceAllString(raw, "")
	if len(digits) != 11 || !validCPFChecksum(digits) {
		return ""
	}
	return digits
}

// validCNPJChecksum verifies both modulo-11 check digits.
func validCNPJChecksum(digits string) bool {
	if allSame(digits) {
		return false
	}
	w1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	w2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	return mod11Digit(digits[:12], w1) == int(digits[12]-'0') &&
		mod11Digit(digits[:13], w2) == int(digits[13]-'0')
}

// validCPFChecksum verifies both modulo-11 check digits.
func validCPFChecksum(digits string) bool {
	if allSame(digits) {
		return false
	}
	w1 := []int{10, 9, 8, 7, 6, 5, 4, 3, 2}
	w2 := []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}
	return mod11Digit(digits[:9], w1) == int(digits[9]-'0') &&
		mod11Digit(digits[:10], w2) == int(digits[10]-'0')
}

func mod11Digit(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

// allSame rejects degenerate sequences like 00000000000 that pass the
// arithmetic but are not issued identifiers.
func allSame(digits string) bool {
	return strings.Count(digits, digits[:1]) == len(digits)
}

// findCNPJs returns the canonical forms of all checksum-valid CNPJs in
// text, in order of appearance, deduplicated.
func findCNPJs(text string) ([]string, map[int]int) {
	var out []string
	spans := make(map[int]int)
	seen := make(map[string]bool)
	for _, loc := range cnpjPattern.FindAllStringIndex(text, -1) {
		canon := CanonicalCNPJ(text[loc[0]:loc[1]])
		if canon == "" {
			continue
		}
		spans[loc[0]] = loc[1]
		if !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
	}
	return out, spans
}

// findCPFs returns canonical CPFs in text, excluding any candidate whose
// span lies inside a CNPJ match (a CNPJ cannot also be a CPF; longest
// match wins).
func findCPFs(text string, cnpjSpans map[int]int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, loc := range cpfPattern.FindAllStringIndex(text, -1) {
		if insideSpan(loc[0], loc[1], cnpjSpans) {
			continue
		}
		canon := CanonicalCPF(text[loc[0]:loc[1]])
		if canon == "" || seen[canon] {
			continue
		}
		seen[canon] = true
		out = append(out, canon)
	}
	return out
}

func insideSpan(start, end int, spans map[int]int) bool {
	for s, e := range spans {
		if start >= s && end <= e {
			return true
		}
	}
	return false
}

// HasCNPJ reports whether text contains at least one checksum-valid CNPJ.
// The intent classifier uses this for its precedence rules.
func HasCNPJ(text string) bool {
	ids, _ := findCNPJs(text)
	return len(ids) > 0
}
