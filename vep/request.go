package vep

import (
	"fmt"
	"regexp"
)

var credentialCUITPattern = regexp.MustCompile(`^\d{11}$`)

// Credentials are the tax-portal authentication credentials shared by
// all workflow kinds. Password may be empty when resolution is delegated
// to the credential store.
type Credentials struct {
	CUIT     string `json:"cuit"`
	Password string `json:"password,omitempty"`
}

// Validate checks the credentials payload.
func (c *Credentials) Validate() error {
	if !credentialCUITPattern.MatchString(c.CUIT) {
		return fmt.Errorf("credentials.cuit must be an 11 digit number")
	}
	return nil
}

// CCMAWorkflowRequest is the intake payload of the account-reconciliation
// workflow kind.
type CCMAWorkflowRequest struct {
	Credentials Credentials `json:"credentials"`
	Entries     []CCMAEntry `json:"entries"`
}

// Validate checks the request and every entry.
func (r *CCMAWorkflowRequest) Validate() error {
	if err := r.Credentials.Validate(); err != nil {
		return err
	}
	if len(r.Entries) == 0 {
		return fmt.Errorf("at least one entry is required")
	}
	for i := range r.Entries {
		if err := r.Entries[i].Validate(); err != nil {
			return fmt.Errorf("entries[%d]: %w", i, err)
		}
	}
	return nil
}

// DDJJWorkflowRequest is the intake payload of the declaration-upload
// workflow kind.
type DDJJWorkflowRequest struct {
	Credentials Credentials `json:"credentials"`
	Entries     []DDJJEntry `json:"entries"`
}

// Validate checks the request and every entry.
func (r *DDJJWorkflowRequest) Validate() error {
	if err := r.Credentials.Validate(); err != nil {
		return err
	}
	if len(r.Entries) == 0 {
		return fmt.Errorf("at least one entry is required")
	}
	for i := range r.Entries {
		if err := r.Entries[i].Validate(); err != nil {
			return fmt.Errorf("entries[%d]: %w", i, err)
		}
	}
	return nil
}

// FileData is a base64-encoded artifact carried in results envelopes and
// terminal events.
type FileData struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}
