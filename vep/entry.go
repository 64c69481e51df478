// Package vep defines the domain model for tax-portal payment slips
// (VEPs): intake entries, credentials, request payloads and their
// validation rules.
package vep

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// AllowedPaymentMethods are the payment methods accepted for VEP
// generation.
var AllowedPaymentMethods = map[string]struct{}{
	"qr":               {},
	"link":             {},
	"pago_mis_cuentas": {},
	"inter_banking":    {},
	"xn_group":         {},
}

var (
	periodPattern  = regexp.MustCompile(`^\d{2}/\d{4}$`)
	dmyPattern     = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	cuitPattern    = regexp.MustCompile(`^\d{11}$`)
)

// ValidatePaymentMethod checks a payment method against the allowed set.
func ValidatePaymentMethod(method string) error {
	if _, ok := AllowedPaymentMethods[method]; !ok {
		allowed := make([]string, 0, len(AllowedPaymentMethods))
		for m := range AllowedPaymentMethods {
			allowed = append(allowed, m)
		}
		sort.Strings(allowed)
		return fmt.Errorf("payment method must be one of: %s", strings.Join(allowed, ", "))
	}
	return nil
}

// CCMAEntry is a single account-reconciliation entry for VEP generation.
type CCMAEntry struct {
	PeriodFrom      string `json:"period_from"`
	PeriodTo        string `json:"period_to"`
	CalculationDate string `json:"calculation_date"`
	FormPayment     string `json:"form_payment"`
	ExpirationDate  string `json:"expiration_date"`

	TaxpayerType     string `json:"taxpayer_type,omitempty"`
	TaxType          string `json:"tax_type,omitempty"`
	IncludeInterests bool   `json:"include_interests,omitempty"`
}

// Validate checks formats and logical constraints of the entry fields.
func (e *CCMAEntry) Validate() error {
	if err := validatePeriod(e.PeriodFrom); err != nil {
		return fmt.Errorf("period_from: %w", err)
	}
	if err := validatePeriod(e.PeriodTo); err != nil {
		return fmt.Errorf("period_to: %w", err)
	}
	if !dmyPattern.MatchString(e.CalculationDate) {
		return fmt.Errorf("calculation_date must be in DD/MM/YYYY format")
	}
	if _, err := time.Parse("02/01/2006", e.CalculationDate); err != nil {
		return fmt.Errorf("calculation_date must be in DD/MM/YYYY format")
	}
	if !dmyPattern.MatchString(e.ExpirationDate) {
		return fmt.Errorf("expiration_date must be in DD/MM/YYYY format")
	}
	if _, err := time.Parse("02/01/2006", e.ExpirationDate); err != nil {
		return fmt.Errorf("expiration_date must be in DD/MM/YYYY format")
	}
	return ValidatePaymentMethod(e.FormPayment)
}

func validatePeriod(period string) error {
	if !periodPattern.MatchString(period) {
		return fmt.Errorf("period must be in MM/YYYY format")
	}
	parts := strings.SplitN(period, "/", 2)
	month, _ := strconv.Atoi(parts[0])
	year, _ := strconv.Atoi(parts[1])
	if month < 1 || month > 12 {
		return fmt.Errorf("month must be between 01 and 12")
	}
	if year < 2000 || year > 2030 {
		return fmt.Errorf("year must be between 2000 and 2030")
	}
	return nil
}

// DDJJEntry is a single declaration-upload entry for VEP file generation.
type DDJJEntry struct {
	FormPayment     string  `json:"form_payment"`
	ExpirationDate  string  `json:"expiration_date"`
	FormNumber      string  `json:"form_number"`
	PaymentTypeCode string  `json:"payment_type_code"`
	CUIT            string  `json:"cuit"`
	Concept         string  `json:"concept"`
	SubConcept      string  `json:"sub_concept"`
	FiscalPeriod    string  `json:"fiscal_period"`
	Amount          float64 `json:"amount"`
	TaxCode         string  `json:"tax_code"`
}

// Validate checks formats and logical constraints of the entry fields.
func (e *DDJJEntry) Validate() error {
	if !isoDatePattern.MatchString(e.ExpirationDate) {
		return fmt.Errorf("expiration_date must be in YYYY-MM-DD format")
	}
	if _, err := time.Parse("2006-01-02", e.ExpirationDate); err != nil {
		return fmt.Errorf("expiration_date must be in YYYY-MM-DD format")
	}
	if !cuitPattern.MatchString(e.CUIT) {
		return fmt.Errorf("cuit must be an 11 digit number")
	}
	if e.Amount <= 0 {
		return fmt.Errorf("amount must be greater than zero")
	}
	if e.FormNumber == "" || e.PaymentTypeCode == "" || e.Concept == "" ||
		e.SubConcept == "" || e.FiscalPeriod == "" || e.TaxCode == "" {
		return fmt.Errorf("all entry fields are required")
	}
	return ValidatePaymentMethod(e.FormPayment)
}
