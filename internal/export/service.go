package export

import (
	"fmt"
	"time"

	"flowline/api/internal/version"
)

// Service renders comparison reports for a pair of workflow versions.
type Service struct {
	now func() time.Time
}

// NewService creates a new export service
func NewService() *Service {
	return &Service{now: time.Now}
}

// Export renders the comparison between from and to in the requested format.
func (s *Service) Export(req Request, from, to version.WorkflowVersion, cmp version.Comparison) (*Result, error) {
	data := TemplateData{
		WorkflowID:  req.WorkflowID,
		FromVersion: from.Version,
		FromName:    from.Name,
		ToVersion:   to.Version,
		ToName:      to.Name,
		GeneratedAt: s.now(),
		Summary:     cmp.Summary,
		Added:       toTemplateChanges(cmp.Added),
		Removed:     toTemplateChanges(cmp.Removed),
		Modified:    toTemplateChanges(cmp.Modified),
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := fmt.Sprintf("%s comparison v%d v%d", req.WorkflowID, req.From, req.To)

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func toTemplateChanges(changes []version.Change) []TemplateChange {
	rows := make([]TemplateChange, 0, len(changes))
	for _, change := range changes {
		rows = append(rows, TemplateChange{
			Description: change.Description,
			Detail:      changeDetail(change),
		})
	}
	return rows
}

// changeDetail shows before and after values for modifications that have them.
func changeDetail(change version.Change) string {
	if change.OldValue == nil && change.NewValue == nil {
		return ""
	}
	if change.OldValue == nil {
		return fmt.Sprintf("now %v", change.NewValue)
	}
	if change.NewValue == nil {
		return fmt.Sprintf("was %v", change.OldValue)
	}
	return fmt.Sprintf("was %v, now %v", change.OldValue, change.NewValue)
}
