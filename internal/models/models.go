package models

import "time"

// Report statuses. A report only ever reaches ReportStatusCompleted
// through ReportStatusInProgress; ReportStatusArchived is a shelf for
// old reports and takes no transitions.
const (
	ReportStatusDraft      = "draft"
	ReportStatusInProgress = "in_progress"
	ReportStatusCompleted  = "completed"
	ReportStatusArchived   = "archived"
)

// Invoice statuses (two-state workflow).
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSubmitted = "submitted"
)

// Template statuses. Templates are never submitted or approved.
const (
	TemplateStatusDraft     = "draft"
	TemplateStatusPublished = "published"
)

// Report is an inspection report: metadata here, content in the ordered
// report_blocks collection keyed by report id.
type Report struct {
	ID                   string     `json:"id"`
	CreatedBy            string     `json:"createdBy"`
	TemplateID           *string    `json:"templateId"`
	Title                string     `json:"title"`
	Status               string     `json:"status"`
	ClientName           string     `json:"client_name"`
	ClientEmail          string     `json:"client_email"`
	InspectionDate       string     `json:"inspection_date"`
	JobNumber            string     `json:"job_number"`
	Location             string     `json:"location"`
	Subject              string     `json:"subject"`
	OrderNumber          string     `json:"order_number"`
	Technician           string     `json:"technician"`
	ReportNumber         string     `json:"report_number"`
	SubmittedForApproval bool       `json:"submitted_for_approval"`
	ApprovedBy           *string    `json:"approved_by"`
	ApprovedAt           *time.Time `json:"approved_at"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Invoice metadata; the invoice form itself lives in an invoice_data
// block inside invoice_blocks.
type Invoice struct {
	ID              string    `json:"id"`
	CreatedBy       string    `json:"createdBy"`
	CustomerName    string    `json:"customer_name"`
	CustomerCompany string    `json:"customer_company"`
	CustomerEmail   string    `json:"customer_email"`
	CustomerPhone   string    `json:"customer_phone"`
	PurchaseOrder   string    `json:"purchase_order"`
	InvoiceNumber   string    `json:"invoice_number"`
	Date            string    `json:"date"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Template is a reusable report blueprint. Instantiating one deep-copies
// its blocks into a new report.
type Template struct {
	ID          string    `json:"id"`
	CreatedBy   string    `json:"createdBy"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// User is an account that can sign in.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"displayName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session is a bearer token tied to a user.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile is the directory entry shown in user management, joined with
// the user's role ("inactive" when no role row exists).
type Profile struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ReportType categorizes reports for AI generation; knowledge base
// documents attach to a report type.
type ReportType struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// KnowledgeBaseDocument is an uploaded reference document with its
// extracted text content.
type KnowledgeBaseDocument struct {
	ID           string    `json:"id"`
	ReportTypeID string    `json:"report_type_id"`
	FileName     string    `json:"file_name"`
	FilePath     string    `json:"file_path"`
	FileType     string    `json:"file_type"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PlatformSetting is a key/value row; Value is raw JSON.
type PlatformSetting struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OpenAISettings is the value stored under the "openai_model" key.
type OpenAISettings struct {
	Model  string `json:"model"`
	APIKey string `json:"apiKey"`
}
