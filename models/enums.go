package models

import "fmt"

type JobStage string

const (
	JobStageBooked     JobStage = "Booked"
	JobStageInProgress JobStage = "InProgress"
	JobStageCompleted  JobStage = "Completed"
	JobStageCanceled   JobStage = "Canceled"
)

func (j JobStage) IsValid() bool {
	switch j {
	case JobStageBooked, JobStageInProgress, JobStageCompleted, JobStageCanceled:
		return true
	}
	return false
}

type DocumentType string

const (
	DocumentTypeInvoice  DocumentType = "invoice"
	DocumentTypeDeposit  DocumentType = "deposit"
	DocumentTypeEstimate DocumentType = "estimate"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft       InvoiceStatus = "Draft"
	InvoiceStatusConfirmed   InvoiceStatus = "Confirmed"
	InvoiceStatusPartialPaid InvoiceStatus = "Partial Paid"
	InvoiceStatusPaid        InvoiceStatus = "Paid"
	InvoiceStatusVoid        InvoiceStatus = "Void"
)

type PaymentTerms string

const (
	PaymentTermsNet14             PaymentTerms = "Net14"
	PaymentTermsNet15             PaymentTerms = "Net15"
	PaymentTermsNet30             PaymentTerms = "Net30"
	PaymentTermsDueEndOfMonth     PaymentTerms = "DueMonthEnd"
	PaymentTermsDueEndOfNextMonth PaymentTerms = "DueNextMonthEnd"
	PaymentTermsDueOnReceipt      PaymentTerms = "DueOnReceipt"
	PaymentTermsCustom            PaymentTerms = "Custom"
)

type PublishStatus string

const (
	PublishStatusDraft      PublishStatus = "Draft"
	PublishStatusQueued     PublishStatus = "Queued"
	PublishStatusPublishing PublishStatus = "Publishing"
	PublishStatusPublished  PublishStatus = "Published"
	PublishStatusError      PublishStatus = "Error"
)

func (p PublishStatus) IsValid() bool {
	switch p {
	case PublishStatusDraft, PublishStatusQueued, PublishStatusPublishing, PublishStatusPublished, PublishStatusError:
		return true
	}
	return false
}

type IntakeStatus string

const (
	IntakeStatusPending   IntakeStatus = "Pending"
	IntakeStatusProcessed IntakeStatus = "Processed"
	IntakeStatusFailed    IntakeStatus = "Failed"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "Admin"
	UserRoleOwner UserRole = "Owner"
	UserRoleStaff UserRole = "Staff"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleOwner, UserRoleStaff:
		return true
	}
	return false
}

type SiteAssetKind string

const (
	SiteAssetKindHero    SiteAssetKind = "hero"
	SiteAssetKindAbout   SiteAssetKind = "about"
	SiteAssetKindGallery SiteAssetKind = "gallery"
	SiteAssetKindLogo    SiteAssetKind = "logo"
)

func (k SiteAssetKind) String() string {
	return string(k)
}

func ParseJobStage(value string) (JobStage, error) {
	stage := JobStage(value)
	if !stage.IsValid() {
		return "", fmt.Errorf("%s is not a valid job stage", value)
	}
	return stage, nil
}
