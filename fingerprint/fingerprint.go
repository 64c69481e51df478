// Package fingerprint computes the deterministic SHA-256 fingerprints
// used for duplicate detection, plus the store TTL derived from an
// entry's expiration date.
//
// Fingerprints are built over the pipe-joined canonical field order of
// an entry's critical fields. The canonical order is fixed per workflow
// kind; changing it invalidates every stored fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/vepflow/vepflow/vep"
)

func sum(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// ccmaEntryCanonical returns the canonical form of a CCMA entry used for
// entry-level fingerprints. Optional fields are appended only when set.
func ccmaEntryCanonical(e *vep.CCMAEntry) string {
	var b strings.Builder
	b.WriteString(e.PeriodFrom)
	b.WriteString("|")
	b.WriteString(e.PeriodTo)
	b.WriteString("|")
	b.WriteString(e.CalculationDate)
	if e.TaxpayerType != "" {
		b.WriteString("|")
		b.WriteString(e.TaxpayerType)
	}
	if e.TaxType != "" {
		b.WriteString("|")
		b.WriteString(e.TaxType)
	}
	if e.FormPayment != "" {
		b.WriteString("|")
		b.WriteString(e.FormPayment)
	}
	if e.ExpirationDate != "" {
		b.WriteString("|")
		b.WriteString(e.ExpirationDate)
	}
	return b.String()
}

// ccmaWorkflowCanonical is the per-entry form used inside workflow-level
// fingerprints. Unlike the entry form, form_payment and expiration_date
// are always present and optional fields trail them.
func ccmaWorkflowCanonical(e *vep.CCMAEntry) string {
	var b strings.Builder
	b.WriteString(e.PeriodFrom)
	b.WriteString("|")
	b.WriteString(e.PeriodTo)
	b.WriteString("|")
	b.WriteString(e.CalculationDate)
	b.WriteString("|")
	b.WriteString(e.FormPayment)
	b.WriteString("|")
	b.WriteString(e.ExpirationDate)
	if e.TaxpayerType != "" {
		b.WriteString("|")
		b.WriteString(e.TaxpayerType)
	}
	if e.TaxType != "" {
		b.WriteString("|")
		b.WriteString(e.TaxType)
	}
	return b.String()
}

// ddjjEntryCanonical returns the canonical form of a DDJJ entry. The
// amount is formatted with two fraction digits for stability.
func ddjjEntryCanonical(e *vep.DDJJEntry) string {
	return fmt.Sprintf("%s|%s|%s|%s|%.2f|%s|%s|%s|%s",
		e.CUIT, e.Concept, e.SubConcept, e.FiscalPeriod, e.Amount,
		e.TaxCode, e.ExpirationDate, e.FormNumber, e.PaymentTypeCode)
}

// CCMAEntryHash fingerprints a single CCMA entry.
func CCMAEntryHash(e *vep.CCMAEntry) string {
	return sum(ccmaEntryCanonical(e))
}

// DDJJEntryHash fingerprints a single DDJJ entry.
func DDJJEntryHash(e *vep.DDJJEntry) string {
	return sum(ddjjEntryCanonical(e))
}

// CCMAWorkflowHash fingerprints a whole CCMA request: the credentials
// identifier joined with the lexicographically sorted canonical forms of
// every entry.
func CCMAWorkflowHash(r *vep.CCMAWorkflowRequest) string {
	forms := make([]string, 0, len(r.Entries))
	for i := range r.Entries {
		forms = append(forms, ccmaWorkflowCanonical(&r.Entries[i]))
	}
	sort.Strings(forms)
	return sum(r.Credentials.CUIT + "|" + strings.Join(forms, "|"))
}

// DDJJWorkflowHash fingerprints a whole DDJJ request.
func DDJJWorkflowHash(r *vep.DDJJWorkflowRequest) string {
	forms := make([]string, 0, len(r.Entries))
	for i := range r.Entries {
		forms = append(forms, ddjjEntryCanonical(&r.Entries[i]))
	}
	sort.Strings(forms)
	return sum(r.Credentials.CUIT + "|" + strings.Join(forms, "|"))
}
