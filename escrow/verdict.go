package escrow

import "strings"

// Verdict is the binary outcome extracted from a judgment text.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
)

// ExtractVerdict scans a raw judgment case-insensitively for an explicit
// verdict marker. Only a response carrying an approval marker and no
// rejection marker approves; everything else, including missing or
// conflicting markers, normalizes to REJECTED. An unparsed response must
// never release funds.
func ExtractVerdict(judgment string) Verdict {
	upper := strings.ToUpper(judgment)
	approved := strings.Contains(upper, "VERDICT: APPROVED") || strings.Contains(upper, "VERDICT:APPROVED")
	rejected := strings.Contains(upper, "VERDICT: REJECTED") || strings.Contains(upper, "VERDICT:REJECTED")
	if approved && !rejected {
		return VerdictApproved
	}
	return VerdictRejected
}

// Equivalent reports whether two independently produced judgments carry the
// same verdict. Wording, confidence and rationale are irrelevant; agreement
// mechanisms running evaluations redundantly must use exactly this rule so
// every evaluator classifies identically.
func Equivalent(a, b string) bool {
	return ExtractVerdict(a) == ExtractVerdict(b)
}
