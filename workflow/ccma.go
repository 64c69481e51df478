package workflow

import (
	"context"
	"fmt"

	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/portal"
	"github.com/vepflow/vepflow/vep"
)

// KindCCMA is the registry name of the account-reconciliation workflow.
const KindCCMA = "ccma_workflow"

// CCMAParams are the inputs of one account-reconciliation run. One run
// covers exactly one debt entry.
type CCMAParams struct {
	CUIT             string
	Password         string
	PeriodFrom       string
	PeriodTo         string
	CalculationDate  string
	FormPayment      string
	ExpirationDate   string
	TaxpayerType     string
	TaxType          string
	IncludeInterests bool
	Headless         bool
}

// Validate checks the fields the portal cannot proceed without.
func (p *CCMAParams) Validate() error {
	if p.CUIT == "" || p.Password == "" {
		return fmt.Errorf("credentials are required: %w", core.ErrInvalidConfiguration)
	}
	if p.PeriodFrom == "" || p.PeriodTo == "" || p.CalculationDate == "" {
		return fmt.Errorf("period_from, period_to and calculation_date are required: %w",
			core.ErrInvalidConfiguration)
	}
	if err := vep.ValidatePaymentMethod(p.FormPayment); err != nil {
		return err
	}
	return nil
}

// NewCCMAWorkflow builds the account-reconciliation workflow: open a
// session, log in, open the CCMA window, calculate the debt, apply the
// filters, generate the VEP and select the payment method.
func NewCCMAWorkflow(provider portal.Provider, params CCMAParams) (*Workflow, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	w := New(KindCCMA, "Account Reconciliation",
		"Calculates taxpayer debt in the CCMA window and emits a payment slip")
	res := w.Resources

	w.AddStep(&Step{
		Name:        "initialize_browser",
		Description: "Open a browser session against the portal grid",
		Required:    true,
		Handler: func(ctx context.Context) error {
			session, err := provider.NewSession(ctx, params.Headless)
			if err != nil {
				return err
			}
			res.Session = session
			res.CUIT = params.CUIT
			res.ExpirationDate = params.ExpirationDate
			return nil
		},
	})
	w.AddStep(&Step{
		Name:        "arca_login",
		Description: "Authenticate with the taxpayer credentials",
		DependsOn:   []string{"initialize_browser"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			if err := res.Session.Login(ctx, params.CUIT, params.Password); err != nil {
				return err
			}
			res.Account = provider.Account(res.Session)
			return nil
		},
	})
	w.AddStep(&Step{
		Name:        "open_ccma_window",
		Description: "Open the account reconciliation window",
		DependsOn:   []string{"arca_login"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			return res.Account.Open(ctx, params.CUIT)
		},
	})
	w.AddStep(&Step{
		Name:        "calculate_debt",
		Description: "Run the debt calculation for the requested period",
		DependsOn:   []string{"open_ccma_window"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			return res.Account.CalculateDebt(ctx, portal.DebtQuery{
				PeriodFrom:       params.PeriodFrom,
				PeriodTo:         params.PeriodTo,
				CalculationDate:  params.CalculationDate,
				TaxpayerType:     params.TaxpayerType,
				TaxType:          params.TaxType,
				IncludeInterests: params.IncludeInterests,
			})
		},
	})
	w.AddStep(&Step{
		Name:        "handle_debt_window",
		Description: "Apply interest and filter options on the debt result",
		DependsOn:   []string{"calculate_debt"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			return res.Account.ApplyDebtFilters(ctx, params.IncludeInterests)
		},
	})
	w.AddStep(&Step{
		Name:        "generate_vep",
		Description: "Generate the electronic payment slip",
		DependsOn:   []string{"handle_debt_window"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			return res.Account.GenerateVEP(ctx)
		},
	})
	w.AddStep(&Step{
		Name:        "select_payment_method",
		Description: "Select the payment method and capture the artifacts",
		DependsOn:   []string{"generate_vep"},
		Required:    true,
		Handler: func(ctx context.Context) error {
			artifacts, err := res.Account.SelectPaymentMethod(ctx, params.FormPayment)
			if err != nil {
				return err
			}
			res.Artifacts = artifacts
			return nil
		},
	})

	return w, nil
}
