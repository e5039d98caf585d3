// Package sanitize scrubs secrets from anything that leaves the engine:
// error messages, traceability records, and progress events. Results must
// carry endpoint ids and hostnames for provenance, never credentials.
package sanitize

import (
	"regexp"

	"github.com/transparencia-br/fiscal/pkg/models"
)

// CompiledPattern pairs a pre-compiled secret-shaped regex with its
// replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns covers the credential shapes the federated portals use:
// key/token query parameters, bearer and basic authorization headers, and
// long hex or base64 literals labelled as secrets.
func builtinPatterns() []*CompiledPattern {
	return []*CompiledPattern{
		{
			Name:        "query_api_key",
			Regex:       regexp.MustCompile(`(?i)([?&](?:api[_-]?key|token|chave|apikey|key|senha)=)[^&\s"']+`),
			Replacement: "$1***",
		},
		{
			Name:        "authorization_header",
			Regex:       regexp.MustCompile(`(?i)(authorization:\s*(?:bearer|basic|token)\s+)\S+`),
			Replacement: "$1***",
		},
		{
			Name:        "header_api_key",
			Regex:       regexp.MustCompile(`(?i)((?:x-api-key|chave-api-dados|api-key):\s*)\S+`),
			Replacement: "$1***",
		},
		{
			Name:        "labelled_secret",
			Regex:       regexp.MustCompile(`(?i)((?:secret|password|senha|credential)["'\s:=]+)[^\s"',}]+`),
			Replacement: "$1***",
		},
		{
			Name:        "jwt",
			Regex:       regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+\b`),
			Replacement: "***",
		},
	}
}

// Sanitizer applies the secret patterns to outbound strings.
type Sanitizer struct {
	patterns []*CompiledPattern
}

// New builds a sanitizer with the built-in patterns plus any extras.
func New(extra ...*CompiledPattern) *Sanitizer {
	return &Sanitizer{patterns: append(builtinPatterns(), extra...)}
}

// String scrubs every secret shape from s.
func (s *Sanitizer) String(in string) string {
	out := in
	for _, p := range s.patterns {
		out = p.Regex.ReplaceAllString(out, p.Replacement)
	}
	return out
}

// Strings scrubs a slice in place and returns it.
func (s *Sanitizer) Strings(in []string) []string {
	for i := range in {
		in[i] = s.String(in[i])
	}
	return in
}

// Contains reports whether in holds a secret shape; used as a leak check.
func (s *Sanitizer) Contains(in string) bool {
	return s.String(in) != in
}

// Result scrubs every outbound message field of an investigation result:
// stage error records, the traceability ledger, and the top-level error.
func (s *Sanitizer) Result(res *models.InvestigationResult) {
	for i := range res.StageResults {
		scrubErrors(s, res.StageResults[i].Errors)
	}
	for i := range res.Traceability.StageDetails {
		scrubErrors(s, res.Traceability.StageDetails[i].Errors)
	}
	if res.Error != nil {
		res.Error.Message = s.String(res.Error.Message)
	}
}

func scrubErrors(s *Sanitizer, errs []models.ErrorRecord) {
	for i := range errs {
		errs[i].Message = s.String(errs[i].Message)
	}
}
