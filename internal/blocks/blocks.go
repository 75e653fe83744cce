package blocks

import (
	"encoding/json"
	"time"
)

// Type identifies a content block variant. The set is closed: anything
// else decodes to UnknownContent and renders as a placeholder.
type Type string

const (
	TypeHeading     Type = "heading"
	TypeText        Type = "text"
	TypeChecklist   Type = "checklist"
	TypeImage       Type = "image"
	TypePhotoUpload Type = "photo_upload"
	TypeDataTable   Type = "data_table"
	TypeNotes       Type = "notes"
	TypeInvoiceData Type = "invoice_data" // invoices only
)

// Known reports whether t is one of the supported block types.
func Known(t Type) bool {
	switch t {
	case TypeHeading, TypeText, TypeChecklist, TypeImage,
		TypePhotoUpload, TypeDataTable, TypeNotes, TypeInvoiceData:
		return true
	}
	return false
}

// Content is the tagged union of block payloads. Exactly one variant
// per Type, plus UnknownContent for anything we don't recognize.
type Content interface {
	Type() Type
}

type HeadingContent struct {
	Text  string `json:"text"`
	Level int    `json:"level"`
}

func (HeadingContent) Type() Type { return TypeHeading }

type TextContent struct {
	Text string `json:"text"`
}

func (TextContent) Type() Type { return TypeText }

type ChecklistItem struct {
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

type ChecklistContent struct {
	Items []ChecklistItem `json:"items"`
}

func (ChecklistContent) Type() Type { return TypeChecklist }

type ImageContent struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

func (ImageContent) Type() Type { return TypeImage }

type Photo struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Caption  string `json:"caption,omitempty"`
}

type PhotoUploadContent struct {
	Photos []Photo `json:"photos"`
}

func (PhotoUploadContent) Type() Type { return TypePhotoUpload }

type TableRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type DataTableContent struct {
	Title string     `json:"title"`
	Rows  []TableRow `json:"rows"`
}

func (DataTableContent) Type() Type { return TypeDataTable }

type NotesContent struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

func (NotesContent) Type() Type { return TypeNotes }

type ServiceLine struct {
	Description string `json:"description"`
	Cost        string `json:"cost"`
}

// InvoiceDataContent is the one-block invoice form. Everything is a
// string: values come straight from form fields and are never computed
// server-side.
type InvoiceDataContent struct {
	Date             string        `json:"date,omitempty"`
	Inspector        string        `json:"inspector,omitempty"`
	Company          string        `json:"company,omitempty"`
	PurchaseOrder    string        `json:"purchaseOrder,omitempty"`
	InvoiceNumber    string        `json:"invoiceNumber,omitempty"`
	ServicesSupplied []ServiceLine `json:"servicesSupplied,omitempty"`
	StartTime        string        `json:"startTime,omitempty"`
	FinishTime       string        `json:"finishTime,omitempty"`
	SiteTime         string        `json:"siteTime,omitempty"`
	OffsiteHours     string        `json:"offsiteHours,omitempty"`
	TotalHours       string        `json:"totalHours,omitempty"`
	Consumables      string        `json:"consumables,omitempty"`
	Total            string        `json:"total,omitempty"`
	GST              string        `json:"gst,omitempty"`
	IncludesGST      string        `json:"includesGst,omitempty"`
	ContactName      string        `json:"contactName,omitempty"`
	ContactPhone     string        `json:"contactPhone,omitempty"`
	Signature        string        `json:"signature,omitempty"` // data URL
}

func (InvoiceDataContent) Type() Type { return TypeInvoiceData }

// UnknownContent preserves the raw payload of an unrecognized block type
// so it round-trips through edits untouched.
type UnknownContent struct {
	TypeName Type
	Raw      json.RawMessage
}

func (c UnknownContent) Type() Type { return c.TypeName }

func (c UnknownContent) MarshalJSON() ([]byte, error) {
	if len(c.Raw) == 0 {
		return []byte("{}"), nil
	}
	return c.Raw, nil
}

// DefaultContent returns the content a freshly created block of type t
// starts with. Unknown types get an empty UnknownContent.
func DefaultContent(t Type) Content {
	switch t {
	case TypeHeading:
		return HeadingContent{Text: "New Heading", Level: 2}
	case TypeText:
		return TextContent{}
	case TypeChecklist:
		return ChecklistContent{Items: []ChecklistItem{{Text: "New item"}}}
	case TypeImage:
		return ImageContent{}
	case TypePhotoUpload:
		return PhotoUploadContent{Photos: []Photo{}}
	case TypeDataTable:
		return DataTableContent{Rows: []TableRow{}}
	case TypeNotes:
		return NotesContent{}
	case TypeInvoiceData:
		return InvoiceDataContent{ServicesSupplied: []ServiceLine{{}}}
	default:
		return UnknownContent{TypeName: t, Raw: json.RawMessage("{}")}
	}
}

// DecodeContent parses raw into the variant for t. It never fails:
// malformed JSON or an unrecognized type yields UnknownContent carrying
// the original bytes.
func DecodeContent(t Type, raw []byte) Content {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	unknown := UnknownContent{TypeName: t, Raw: append(json.RawMessage(nil), raw...)}

	var c Content
	switch t {
	case TypeHeading:
		c = &HeadingContent{}
	case TypeText:
		c = &TextContent{}
	case TypeChecklist:
		c = &ChecklistContent{}
	case TypeImage:
		c = &ImageContent{}
	case TypePhotoUpload:
		c = &PhotoUploadContent{}
	case TypeDataTable:
		c = &DataTableContent{}
	case TypeNotes:
		c = &NotesContent{}
	case TypeInvoiceData:
		c = &InvoiceDataContent{}
	default:
		return unknown
	}

	if err := json.Unmarshal(raw, c); err != nil {
		return unknown
	}

	switch v := c.(type) {
	case *HeadingContent:
		return *v
	case *TextContent:
		return *v
	case *ChecklistContent:
		return *v
	case *ImageContent:
		return *v
	case *PhotoUploadContent:
		return *v
	case *DataTableContent:
		return *v
	case *NotesContent:
		return *v
	case *InvoiceDataContent:
		return *v
	}
	return unknown
}

// EncodeContent serializes content for storage.
func EncodeContent(c Content) ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

// Block is one unit of content in a document's ordered sequence. A block
// belongs to exactly one owner (report, invoice or template); OwnerID and
// Type never change after creation.
type Block struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Type       Type      `json:"type"`
	Content    Content   `json:"content"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// blockJSON mirrors Block with content left raw for two-phase decoding.
type blockJSON struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"ownerId"`
	Type       Type            `json:"type"`
	Content    json.RawMessage `json:"content"`
	OrderIndex int             `json:"order_index"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var bj blockJSON
	if err := json.Unmarshal(data, &bj); err != nil {
		return err
	}
	b.ID = bj.ID
	b.OwnerID = bj.OwnerID
	b.Type = bj.Type
	b.Content = DecodeContent(bj.Type, bj.Content)
	b.OrderIndex = bj.OrderIndex
	b.CreatedAt = bj.CreatedAt
	b.UpdatedAt = bj.UpdatedAt
	return nil
}
