package workflow

import (
	"context"
	"fmt"

	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/portal"
	"github.com/vepflow/vepflow/vep"
)

// KindDDJJ is the registry name of the declaration-upload workflow.
const KindDDJJ = "ddjj_workflow"

// DDJJParams are the inputs of one declaration-upload run. A single run
// covers the whole entry batch.
type DDJJParams struct {
	CUIT     string
	Password string
	Entries  []vep.DDJJEntry
	Headless bool
}

// Validate checks the batch before any browser work starts.
func (p *DDJJParams) Validate() error {
	if p.CUIT == "" || p.Password == "" {
		return fmt.Errorf("credentials are required: %w", core.ErrInvalidConfiguration)
	}
	if len(p.Entries) == 0 {
		return fmt.Errorf("at least one entry is required: %w", core.ErrInvalidConfiguration)
	}
	for i := range p.Entries {
		if err := p.Entries[i].Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// entryRecords serializes the batch into the field map consumed by the
// VEP file generator.
func (p *DDJJParams) entryRecords() []map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(p.Entries))
	for i := range p.Entries {
		e := &p.Entries[i]
		records = append(records, map[string]interface{}{
			"cuit":              e.CUIT,
			"concept":           e.Concept,
			"sub_concept":       e.SubConcept,
			"fiscal_period":     e.FiscalPeriod,
			"amount":            e.Amount,
			"tax_code":          e.TaxCode,
			"expiration_date":   e.ExpirationDate,
			"form_number":       e.FormNumber,
			"payment_type_code": e.PaymentTypeCode,
			"form_payment":      e.FormPayment,
		})
	}
	return records
}

// NewDDJJWorkflow builds the declaration-upload workflow: generate the
// VEP batch file, authenticate, open the DDJJ window, upload the file,
// generate the slip from it and process the payments.
func NewDDJJWorkflow(provider portal.Provider, params DDJJParams) (*Workflow, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	w := New(KindDDJJ, "Declaration Upload",
		"Uploads a VEP batch file through the DDJJ window and processes payments")
	res := w.Resources

	w.AddStep(&Step{
		Name:        "generate_vep_file",
		Description: "Write the VEP batch file for the entry set",
		Required:    true,
		Handler: func(ctx context.Context) error {
			path, err := provider.Files().GenerateFile(ctx, params.entryRecords())
			if err != nil {
				return err
			}
			res.VEPFilePath = path
			return nil
		},
	})
	w.AddStep(&Step{
		Name:        "arca_authentication",
		Description: "Open a browser session and authenticate",
		DependsOn:   []string{"generate_vep_file"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			session, err := provider.NewSession(ctx, params.Headless)
			if err != nil {
				return err
			}
			res.Session = session
			res.CUIT = params.CUIT
			if err := session.Login(ctx, params.CUIT, params.Password); err != nil {
				return err
			}
			res.Declarations = provider.Declarations(session)
			return nil
		},
	})
	w.AddStep(&Step{
		Name:        "open_ddjj_window",
		Description: "Open the declaration presentation window",
		DependsOn:   []string{"arca_authentication"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			return res.Declarations.Open(ctx)
		},
	})
	w.AddStep(&Step{
		Name:        "navigate_to_vep_upload",
		Description: "Navigate to the VEP file upload form",
		DependsOn:   []string{"open_ddjj_window"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			return res.Declarations.NavigateToUpload(ctx)
		},
	})
	w.AddStep(&Step{
		Name:        "upload_vep_file",
		Description: "Upload the generated batch file",
		DependsOn:   []string{"navigate_to_vep_upload"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			return res.Declarations.UploadFile(ctx, res.VEPFilePath)
		},
	})
	w.AddStep(&Step{
		Name:        "generate_vep_from_file",
		Description: "Generate the payment slip from the uploaded file",
		DependsOn:   []string{"upload_vep_file"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			return res.Declarations.GenerateFromFile(ctx)
		},
	})
	w.AddStep(&Step{
		Name:        "process_payments",
		Description: "Process payments for every entry in the batch",
		DependsOn:   []string{"generate_vep_from_file"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			artifacts, err := res.Declarations.ProcessPayments(ctx, params.Entries[0].FormPayment)
			if err != nil {
				return err
			}
			res.Artifacts = artifacts
			return nil
		},
	})

	return w, nil
}
