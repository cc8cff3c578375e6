// Package receipts renders payment receipts as PDF documents for the
// download endpoint.
package receipts

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/kidega/apartments/pkg/model"
)

// RenderPDF writes a one-page receipt PDF to w. The tenant and unit are
// optional; missing references render as blank fields rather than
// failing the download.
func RenderPDF(w io.Writer, receipt *model.Receipt, tenant *model.User, unit *model.Unit) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 12, "Payment Receipt")
	pdf.Ln(16)

	pdf.SetFont("Helvetica", "", 11)
	rows := [][2]string{
		{"Receipt Number", receipt.ReceiptNumber},
		{"Issued At", receipt.IssuedAt.Format("2006-01-02 15:04")},
		{"Issued To", tenantName(tenant)},
		{"Unit", unitLabel(unit)},
		{"Payment Type", capitalize(string(receipt.Type))},
		{"Amount", fmt.Sprintf("%.2f", receipt.Amount)},
		{"Method", receipt.Method},
		{"Reference", receipt.Reference},
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(50, 8, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, row[1], "", 1, "L", false, 0, "")
	}

	if receipt.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 6, receipt.Notes, "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render receipt pdf: %w", err)
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func tenantName(tenant *model.User) string {
	if tenant == nil {
		return ""
	}
	name := strings.TrimSpace(tenant.FirstName + " " + tenant.LastName)
	if name == "" {
		return tenant.Username
	}
	return name
}

func unitLabel(unit *model.Unit) string {
	if unit == nil {
		return ""
	}
	return unit.UnitNumber
}
