// Package portal defines the narrow interfaces through which workflows
// drive the remote tax portal: browser session lifecycle, the account
// reconciliation (CCMA) window, the declaration upload (DDJJ) window and
// VEP file generation. Concrete browser-driver implementations live
// behind these interfaces; the simulated provider in this package backs
// tests and local development.
package portal

import "context"

// Session is an authenticated browser session against the tax portal.
type Session interface {
	// Login authenticates against the portal with the taxpayer
	// credentials. Implementations surface infrastructure failures as
	// errors from the core taxonomy so retries can classify them.
	Login(ctx context.Context, cuit, password string) error

	// Close releases the underlying browser session. Safe to call more
	// than once.
	Close() error
}

// DebtQuery describes one account-reconciliation debt calculation.
type DebtQuery struct {
	PeriodFrom       string
	PeriodTo         string
	CalculationDate  string
	TaxpayerType     string
	TaxType          string
	IncludeInterests bool
}

// PaymentArtifacts are the outputs of a completed payment-slip flow.
type PaymentArtifacts struct {
	PDFFilename string
	PDFPath     string
	QRFilename  string
	QRPath      string
	PaymentURL  string
}

// AccountService drives the CCMA window of the portal.
type AccountService interface {
	Open(ctx context.Context, cuit string) error
	CalculateDebt(ctx context.Context, query DebtQuery) error
	ApplyDebtFilters(ctx context.Context, includeInterests bool) error
	GenerateVEP(ctx context.Context) error
	SelectPaymentMethod(ctx context.Context, method string) (PaymentArtifacts, error)
}

// DeclarationService drives the DDJJ window of the portal.
type DeclarationService interface {
	Open(ctx context.Context) error
	NavigateToUpload(ctx context.Context) error
	UploadFile(ctx context.Context, path string) error
	GenerateFromFile(ctx context.Context) error
	ProcessPayments(ctx context.Context, method string) (PaymentArtifacts, error)
}

// FileGenerator produces VEP batch files consumed by the DDJJ upload.
type FileGenerator interface {
	// GenerateFile writes a batch file for the given serialized entries
	// and returns its path.
	GenerateFile(ctx context.Context, entries []map[string]interface{}) (string, error)
}

// Provider creates portal services bound to a browser session.
type Provider interface {
	NewSession(ctx context.Context, headless bool) (Session, error)
	Account(session Session) AccountService
	Declarations(session Session) DeclarationService
	Files() FileGenerator
}
