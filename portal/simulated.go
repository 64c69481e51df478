package portal

import (
	"context"
	"fmt"
	"sync"
)

// SimulatedProvider is an in-process Provider used by tests and local
// development runs. Every operation succeeds unless a failure is scripted
// for it by name.
type SimulatedProvider struct {
	mu       sync.Mutex
	failures map[string]error
	sessions int
}

// NewSimulatedProvider creates a provider with no scripted failures.
func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{failures: make(map[string]error)}
}

// FailWith scripts the named operation to return err. Operation names
// match the method names below, e.g. "login", "calculate_debt",
// "new_session", "upload_file".
func (p *SimulatedProvider) FailWith(operation string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[operation] = err
}

// ClearFailures removes all scripted failures.
func (p *SimulatedProvider) ClearFailures() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = make(map[string]error)
}

// OpenSessions reports the number of sessions not yet closed.
func (p *SimulatedProvider) OpenSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions
}

func (p *SimulatedProvider) fail(operation string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures[operation]
}

// NewSession opens a simulated browser session.
func (p *SimulatedProvider) NewSession(ctx context.Context, headless bool) (Session, error) {
	if err := p.fail("new_session"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.sessions++
	p.mu.Unlock()
	return &simulatedSession{provider: p}, nil
}

// Account returns a simulated CCMA window bound to the session.
func (p *SimulatedProvider) Account(session Session) AccountService {
	return &simulatedAccount{provider: p}
}

// Declarations returns a simulated DDJJ window bound to the session.
func (p *SimulatedProvider) Declarations(session Session) DeclarationService {
	return &simulatedDeclarations{provider: p}
}

// Files returns a simulated VEP file generator.
func (p *SimulatedProvider) Files() FileGenerator {
	return &simulatedFiles{provider: p}
}

type simulatedSession struct {
	provider *SimulatedProvider
	mu       sync.Mutex
	closed   bool
	loggedIn bool
}

func (s *simulatedSession) Login(ctx context.Context, cuit, password string) error {
	if err := s.provider.fail("login"); err != nil {
		return err
	}
	s.mu.Lock()
	s.loggedIn = true
	s.mu.Unlock()
	return nil
}

func (s *simulatedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.provider.mu.Lock()
	s.provider.sessions--
	s.provider.mu.Unlock()
	return nil
}

type simulatedAccount struct {
	provider *SimulatedProvider
}

func (a *simulatedAccount) Open(ctx context.Context, cuit string) error {
	return a.provider.fail("open_account")
}

func (a *simulatedAccount) CalculateDebt(ctx context.Context, query DebtQuery) error {
	return a.provider.fail("calculate_debt")
}

func (a *simulatedAccount) ApplyDebtFilters(ctx context.Context, includeInterests bool) error {
	return a.provider.fail("apply_debt_filters")
}

func (a *simulatedAccount) GenerateVEP(ctx context.Context) error {
	return a.provider.fail("generate_vep")
}

func (a *simulatedAccount) SelectPaymentMethod(ctx context.Context, method string) (PaymentArtifacts, error) {
	if err := a.provider.fail("select_payment_method"); err != nil {
		return PaymentArtifacts{}, err
	}
	return PaymentArtifacts{
		PDFFilename: "vep.pdf",
		PDFPath:     "/tmp/vep.pdf",
		QRFilename:  "vep_qr.png",
		QRPath:      "/tmp/vep_qr.png",
		PaymentURL:  fmt.Sprintf("https://pagos.example/%s", method),
	}, nil
}

type simulatedDeclarations struct {
	provider *SimulatedProvider
}

func (d *simulatedDeclarations) Open(ctx context.Context) error {
	return d.provider.fail("open_declarations")
}

func (d *simulatedDeclarations) NavigateToUpload(ctx context.Context) error {
	return d.provider.fail("navigate_to_upload")
}

func (d *simulatedDeclarations) UploadFile(ctx context.Context, path string) error {
	return d.provider.fail("upload_file")
}

func (d *simulatedDeclarations) GenerateFromFile(ctx context.Context) error {
	return d.provider.fail("generate_from_file")
}

func (d *simulatedDeclarations) ProcessPayments(ctx context.Context, method string) (PaymentArtifacts, error) {
	if err := d.provider.fail("process_payments"); err != nil {
		return PaymentArtifacts{}, err
	}
	return PaymentArtifacts{
		PDFFilename: "vep_batch.pdf",
		PDFPath:     "/tmp/vep_batch.pdf",
		PaymentURL:  fmt.Sprintf("https://pagos.example/%s", method),
	}, nil
}

type simulatedFiles struct {
	provider *SimulatedProvider
}

func (f *simulatedFiles) GenerateFile(ctx context.Context, entries []map[string]interface{}) (string, error) {
	if err := f.provider.fail("generate_file"); err != nil {
		return "", err
	}
	return fmt.Sprintf("/tmp/vep_batch_%d.b64", len(entries)), nil
}
