package models

import (
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/shopspring/decimal"

	transfermodels "rotrust/internal/transfer/models"
	id "rotrust/pkg/domain"
	dErrors "rotrust/pkg/domain-errors"
)

// ConditionKind tags what a condition attests.
type ConditionKind string

const (
	ConditionNotaryApproval   ConditionKind = "notary_approval"
	ConditionBankApproval     ConditionKind = "bank_approval"
	ConditionTitleSearch      ConditionKind = "title_search"
	ConditionInspection       ConditionKind = "inspection"
	ConditionMortgageApproval ConditionKind = "mortgage_approval"
	ConditionTaxClearance     ConditionKind = "tax_clearance"
	ConditionCustom           ConditionKind = "custom"
)

func (k ConditionKind) IsValid() bool {
	switch k {
	case ConditionNotaryApproval, ConditionBankApproval, ConditionTitleSearch, ConditionInspection,
		ConditionMortgageApproval, ConditionTaxClearance, ConditionCustom:
		return true
	}
	return false
}

// DocumentKind tags an attested document.
type DocumentKind string

const (
	DocumentSaleContract        DocumentKind = "sale_contract"
	DocumentLandBookExtract     DocumentKind = "land_book_extract"
	DocumentFiscalCertificate   DocumentKind = "fiscal_certificate"
	DocumentEnergyCertificate   DocumentKind = "energy_certificate"
	DocumentUrbanismCertificate DocumentKind = "urbanism_certificate"
	DocumentCadastralPlan       DocumentKind = "cadastral_plan"
	DocumentIdentity            DocumentKind = "identity_document"
	DocumentOther               DocumentKind = "other"
)

func (k DocumentKind) IsValid() bool {
	switch k {
	case DocumentSaleContract, DocumentLandBookExtract, DocumentFiscalCertificate, DocumentEnergyCertificate,
		DocumentUrbanismCertificate, DocumentCadastralPlan, DocumentIdentity, DocumentOther:
		return true
	}
	return false
}

const (
	maxDescriptionLen = 500
	maxReferenceLen   = 256
	maxMetadataKeys   = 32
	maxMetadataLen    = 512
)

// Condition is a prerequisite declared when the escrow is created.
type Condition struct {
	ID          string        `json:"id"`
	Kind        ConditionKind `json:"kind"`
	Description string        `json:"description,omitempty"`
}

// Validate checks the condition declaration. An empty kind means custom.
func (c *Condition) Validate() error {
	if err := id.ValidateLocalID("condition id", c.ID); err != nil {
		return err
	}
	if c.Kind == "" {
		c.Kind = ConditionCustom
	}
	if !c.Kind.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown condition kind %q", c.Kind)
	}
	if len(c.Description) > maxDescriptionLen {
		return dErrors.New(dErrors.CodeValidation, "condition description too long")
	}
	return nil
}

// Payment is one partial payment towards the price.
type Payment struct {
	ID        string                       `json:"id"`
	Amount    decimal.Decimal              `json:"amount"`
	Method    transfermodels.PaymentMethod `json:"method"`
	PayerID   id.PartyID                   `json:"payer_id,omitempty"`
	Reference string                       `json:"reference,omitempty"`
	Timestamp time.Time                    `json:"timestamp"`
}

// Validate checks the payment fields in isolation.
func (p Payment) Validate() error {
	if err := id.ValidateLocalID("payment id", p.ID); err != nil {
		return err
	}
	if err := id.ValidateAmount("amount", p.Amount); err != nil {
		return err
	}
	if !p.Method.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown payment method %q", p.Method)
	}
	if p.PayerID != "" {
		if err := p.PayerID.Validate(); err != nil {
			return err
		}
	}
	if len(p.Reference) > maxReferenceLen {
		return dErrors.New(dErrors.CodeValidation, "payment reference too long")
	}
	return nil
}

// Document is an attestation of a document's content. Only the hash is
// recorded; the document itself lives off-ledger.
type Document struct {
	ID               string            `json:"id"`
	Kind             DocumentKind      `json:"kind"`
	ContentHash      string            `json:"content_hash"`
	IssuingAuthority string            `json:"issuing_authority,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// Normalize lowercases the hash and validates the document fields.
func (d *Document) Normalize() error {
	if err := id.ValidateLocalID("document id", d.ID); err != nil {
		return err
	}
	if !d.Kind.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown document kind %q", d.Kind)
	}
	d.ContentHash = strings.ToLower(strings.TrimSpace(d.ContentHash))
	if !govalidator.IsSHA256(d.ContentHash) {
		return dErrors.New(dErrors.CodeValidation, "content hash must be a hex sha-256 digest")
	}
	if len(d.IssuingAuthority) > maxReferenceLen {
		return dErrors.New(dErrors.CodeValidation, "issuing authority too long")
	}
	if len(d.Metadata) > maxMetadataKeys {
		return dErrors.Newf(dErrors.CodeValidation, "at most %d metadata entries", maxMetadataKeys)
	}
	for k, v := range d.Metadata {
		if k == "" || len(k) > maxReferenceLen || len(v) > maxMetadataLen {
			return dErrors.New(dErrors.CodeValidation, "invalid document metadata entry")
		}
	}
	return nil
}

// Verification records one party attesting a condition.
type Verification struct {
	ConditionID string     `json:"condition_id"`
	VerifierID  id.PartyID `json:"verifier_id"`
	Notes       string     `json:"notes,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Normalized trims the condition id the same way declared conditions are
// trimmed, along with the notes.
func (v Verification) Normalized() Verification {
	v.ConditionID = strings.TrimSpace(v.ConditionID)
	v.Notes = strings.TrimSpace(v.Notes)
	return v
}

// Validate checks the verification fields.
func (v Verification) Validate() error {
	if err := v.VerifierID.Validate(); err != nil {
		return err
	}
	if len(v.Notes) > maxDescriptionLen {
		return dErrors.New(dErrors.CodeValidation, "verification notes too long")
	}
	return nil
}
