package store

import (
	"apec/internal/blocks"
	"apec/internal/models"
)

// SeedDefaultTemplate creates the standard NDT report template when no
// templates exist yet. Safe to call on every startup.
func (s *Store) SeedDefaultTemplate(createdBy string) error {
	n, err := s.CountTemplates()
	if err != nil || n > 0 {
		return err
	}

	tpl := &models.Template{
		CreatedBy:   createdBy,
		Title:       "Default NDT Report",
		Description: "Standard Non-Destructive Testing report template with all essential sections",
		Category:    "NDT",
		Status:      models.TemplateStatusPublished,
	}
	if err := s.CreateTemplate(tpl); err != nil {
		return err
	}

	seed := []struct {
		t blocks.Type
		c blocks.Content
	}{
		{blocks.TypeHeading, blocks.HeadingContent{
			Text:  "FLUORESCENT MAGNETIC PARTICLE AND ULTRASONIC INSPECTION REPORT",
			Level: 1,
		}},
		{blocks.TypeDataTable, blocks.DataTableContent{
			Title: "Job & Client Details",
			Rows: []blocks.TableRow{
				{Label: "Job No"}, {Label: "Client"}, {Label: "Contact"},
				{Label: "Location"}, {Label: "Subject"}, {Label: "Report No"},
				{Label: "Test Date"}, {Label: "Order No"}, {Label: "Report Date"},
				{Label: "Technician"},
			},
		}},
		{blocks.TypeDataTable, blocks.DataTableContent{
			Title: "Technical Data Ultrasonic Inspection",
			Rows: []blocks.TableRow{
				{Label: "Test Specification"}, {Label: "Probe"},
				{Label: "Acceptance Standard"}, {Label: "Surface Condition"},
				{Label: "Range"}, {Label: "Material Specification"},
				{Label: "Couplant"}, {Label: "Sensitivity"}, {Label: "Sizing"},
				{Label: "APEC Test Procedure"}, {Label: "Test Restrictions"},
				{Label: "Flaw Detector"}, {Label: "Probe S/N"},
				{Label: "Equipment Performance Before Tests"}, {Label: "Probe Index"},
				{Label: "Beam Angle"}, {Label: "Beam Alignment"},
				{Label: "Overall System Gain"},
			},
		}},
		{blocks.TypeDataTable, blocks.DataTableContent{
			Title: "Technical Data Magnetic Particle Inspection",
			Rows: []blocks.TableRow{
				{Label: "Test Specification"}, {Label: "Material"},
				{Label: "Acceptance Standard"}, {Label: "Surface Condition"},
				{Label: "Black Light"}, {Label: "Media"},
				{Label: "APEC Test Procedure"}, {Label: "Test Method"},
				{Label: "Demagnetised"}, {Label: "Test Restrictions"},
				{Label: "Magnetising Unit"}, {Label: "Lighting"},
			},
		}},
		{blocks.TypeNotes, blocks.NotesContent{Title: "Examination Notes"}},
		{blocks.TypeDataTable, blocks.DataTableContent{
			Title: "Examination Summary",
			Rows: []blocks.TableRow{
				{Label: "Extent of testing"},
				{Label: "Magnetic Particle Results"},
				{Label: "Ultrasonic Results"},
			},
		}},
		{blocks.TypePhotoUpload, blocks.PhotoUploadContent{Photos: []blocks.Photo{}}},
		{blocks.TypeNotes, blocks.NotesContent{Title: "Additional Observations"}},
		{blocks.TypeText, blocks.TextContent{
			Text: "Overall Result: ACCEPT  REJECT  ACCEPT WITH REPAIR\n\nSummary:\n\nRecommendations:",
		}},
		{blocks.TypeDataTable, blocks.DataTableContent{
			Title: "Inspector Certification",
			Rows: []blocks.TableRow{
				{Label: "Inspector Name"},
				{Label: "Qualification/Certification Level"},
				{Label: "Certificate Number"}, {Label: "Signature"}, {Label: "Date"},
			},
		}},
		{blocks.TypeDataTable, blocks.DataTableContent{
			Title: "Review & Approval",
			Rows: []blocks.TableRow{
				{Label: "Reviewed By"}, {Label: "Position"},
				{Label: "Signature"}, {Label: "Date"},
			},
		}},
	}

	for i, b := range seed {
		if _, err := s.CreateBlock(TemplateBlocks, tpl.ID, b.t, b.c, i); err != nil {
			return err
		}
	}
	return nil
}

// SeedInvoiceTemplate creates the singleton invoice template block when
// the collection is empty: one invoice_data form.
func (s *Store) SeedInvoiceTemplate() error {
	existing, err := s.ListBlocks(InvoiceTemplateBlocks, "")
	if err != nil || len(existing) > 0 {
		return err
	}
	_, err = s.CreateBlock(InvoiceTemplateBlocks, "", blocks.TypeInvoiceData,
		blocks.DefaultContent(blocks.TypeInvoiceData), 0)
	return err
}
