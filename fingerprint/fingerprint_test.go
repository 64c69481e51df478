package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vepflow/vepflow/vep"
)

func sha(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func TestCCMAEntryHashCanonicalOrder(t *testing.T) {
	entry := &vep.CCMAEntry{
		PeriodFrom:      "01/2023",
		PeriodTo:        "12/2025",
		CalculationDate: "15/09/2025",
		FormPayment:     "qr",
		ExpirationDate:  "31/12/2025",
	}
	assert.Equal(t, sha("01/2023|12/2025|15/09/2025|qr|31/12/2025"), CCMAEntryHash(entry))

	entry.TaxpayerType = "monotributo"
	entry.TaxType = "iva"
	assert.Equal(t,
		sha("01/2023|12/2025|15/09/2025|monotributo|iva|qr|31/12/2025"),
		CCMAEntryHash(entry))
}

func TestCCMAEntryHashOmitsEmptyOptionalFields(t *testing.T) {
	with := &vep.CCMAEntry{
		PeriodFrom:      "01/2023",
		PeriodTo:        "02/2023",
		CalculationDate: "01/03/2023",
	}
	without := &vep.CCMAEntry{
		PeriodFrom:      "01/2023",
		PeriodTo:        "02/2023",
		CalculationDate: "01/03/2023",
		TaxType:         "iva",
	}
	assert.NotEqual(t, CCMAEntryHash(with), CCMAEntryHash(without))
	assert.Equal(t, sha("01/2023|02/2023|01/03/2023"), CCMAEntryHash(with))
}

func TestCCMAEntryHashDeterministic(t *testing.T) {
	entry := &vep.CCMAEntry{
		PeriodFrom:      "05/2024",
		PeriodTo:        "06/2024",
		CalculationDate: "10/07/2024",
		FormPayment:     "link",
		ExpirationDate:  "31/08/2024",
	}
	assert.Equal(t, CCMAEntryHash(entry), CCMAEntryHash(entry))
}

func TestDDJJEntryHashCanonicalOrder(t *testing.T) {
	entry := &vep.DDJJEntry{
		CUIT:            "20429994323",
		Concept:         "19",
		SubConcept:      "19",
		FiscalPeriod:    "202401",
		Amount:          1500.5,
		TaxCode:         "10",
		ExpirationDate:  "2025-12-31",
		FormNumber:      "2002",
		PaymentTypeCode: "130",
		FormPayment:     "qr",
	}
	assert.Equal(t,
		sha("20429994323|19|19|202401|1500.50|10|2025-12-31|2002|130"),
		DDJJEntryHash(entry))
}

func TestCCMAWorkflowHashIsEntryOrderIndependent(t *testing.T) {
	a := vep.CCMAEntry{
		PeriodFrom: "01/2023", PeriodTo: "02/2023", CalculationDate: "01/03/2023",
		FormPayment: "qr", ExpirationDate: "31/12/2025",
	}
	b := vep.CCMAEntry{
		PeriodFrom: "03/2023", PeriodTo: "04/2023", CalculationDate: "01/05/2023",
		FormPayment: "link", ExpirationDate: "30/11/2025",
	}
	creds := vep.Credentials{CUIT: "20429994323", Password: "p"}

	first := CCMAWorkflowHash(&vep.CCMAWorkflowRequest{Credentials: creds, Entries: []vep.CCMAEntry{a, b}})
	second := CCMAWorkflowHash(&vep.CCMAWorkflowRequest{Credentials: creds, Entries: []vep.CCMAEntry{b, a}})
	assert.Equal(t, first, second)
}

func TestCCMAWorkflowHashIncludesCUIT(t *testing.T) {
	entry := vep.CCMAEntry{
		PeriodFrom: "01/2023", PeriodTo: "02/2023", CalculationDate: "01/03/2023",
		FormPayment: "qr", ExpirationDate: "31/12/2025",
	}
	first := CCMAWorkflowHash(&vep.CCMAWorkflowRequest{
		Credentials: vep.Credentials{CUIT: "20429994323"},
		Entries:     []vep.CCMAEntry{entry},
	})
	second := CCMAWorkflowHash(&vep.CCMAWorkflowRequest{
		Credentials: vep.Credentials{CUIT: "27333333334"},
		Entries:     []vep.CCMAEntry{entry},
	})
	assert.NotEqual(t, first, second)
}

func TestDDJJWorkflowHashIsEntryOrderIndependent(t *testing.T) {
	a := vep.DDJJEntry{
		CUIT: "20429994323", Concept: "19", SubConcept: "19", FiscalPeriod: "202401",
		Amount: 100, TaxCode: "10", ExpirationDate: "2025-12-31",
		FormNumber: "2002", PaymentTypeCode: "130", FormPayment: "qr",
	}
	b := a
	b.Amount = 200
	creds := vep.Credentials{CUIT: "20429994323"}

	first := DDJJWorkflowHash(&vep.DDJJWorkflowRequest{Credentials: creds, Entries: []vep.DDJJEntry{a, b}})
	second := DDJJWorkflowHash(&vep.DDJJWorkflowRequest{Credentials: creds, Entries: []vep.DDJJEntry{b, a}})
	assert.Equal(t, first, second)
}

func TestTTLFromExpiration(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		date string
		want int
	}{
		{"empty falls back to default", "", DefaultTTLSeconds},
		{"unparseable falls back to default", "not a date", DefaultTTLSeconds},
		{"past date clamps to minimum", "01/01/2020", MinTTLSeconds},
		{"iso past date clamps to minimum", "2020-01-01", MinTTLSeconds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TTLFromExpiration(tt.date, now))
		})
	}
}

func TestTTLFromExpirationFutureDate(t *testing.T) {
	now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	ttl := TTLFromExpiration("03/09/2025", now)
	require.Equal(t, int((48 * time.Hour).Seconds()), ttl)

	ttl = TTLFromExpiration("2025-09-03", now)
	require.Equal(t, int((48 * time.Hour).Seconds()), ttl)
}
