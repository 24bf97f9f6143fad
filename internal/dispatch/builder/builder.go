// Package builder renders a payment run into the bank instruction file.
// Rendering is deterministic: the same run content always produces the same
// bytes, so the sha256 fingerprint of the payload identifies the content and
// drives dispatch idempotency.
package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/smallbiznis/payrun/internal/paymentrun/domain"
)

const formatVersion = 1

// InstructionFile is the wire shape of one outbound instruction document.
// Field order is fixed by the struct, timestamps are deliberately absent, and
// lines are ordered by line id so the serialization is canonical.
type InstructionFile struct {
	FormatVersion int               `json:"format_version"`
	CompanyID     string            `json:"company_id"`
	BankCode      string            `json:"bank_code"`
	RunID         string            `json:"run_id"`
	Period        string            `json:"period"`
	Currency      string            `json:"currency"`
	LineCount     int               `json:"line_count"`
	TotalAmount   int64             `json:"total_amount"`
	Lines         []InstructionLine `json:"lines"`
}

type InstructionLine struct {
	LineID      string `json:"line_id"`
	SupplierRef string `json:"supplier_ref"`
	InvoiceRef  string `json:"invoice_ref"`
	DueDate     string `json:"due_date"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type Rendered struct {
	Payload     []byte
	Fingerprint string
	Filename    string
	LineCount   int
}

// Render serializes the run and its lines into the instruction payload and
// derives the fingerprint and filename from it.
func Render(run *domain.PaymentRun, lines []domain.PaymentLine, bankCode string) (*Rendered, error) {
	ordered := make([]domain.PaymentLine, len(lines))
	copy(ordered, lines)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	file := InstructionFile{
		FormatVersion: formatVersion,
		CompanyID:     run.CompanyID.String(),
		BankCode:      bankCode,
		RunID:         run.ID.String(),
		Period:        fmt.Sprintf("%04d-%02d", run.Year, run.Month),
		Currency:      run.Currency,
		LineCount:     len(ordered),
		Lines:         make([]InstructionLine, 0, len(ordered)),
	}
	for _, line := range ordered {
		file.TotalAmount += line.PayAmount
		file.Lines = append(file.Lines, InstructionLine{
			LineID:      line.ID.String(),
			SupplierRef: line.SupplierRef,
			InvoiceRef:  line.InvoiceRef,
			DueDate:     line.DueDate.Format("2006-01-02"),
			Amount:      line.PayAmount,
			Currency:    line.Currency,
		})
	}

	payload, err := json.Marshal(file)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(payload)
	fingerprint := hex.EncodeToString(sum[:])

	return &Rendered{
		Payload:     payload,
		Fingerprint: fingerprint,
		Filename:    Filename(run, bankCode, fingerprint),
		LineCount:   len(ordered),
	}, nil
}

// Filename is unique per content because it embeds a fingerprint prefix, so a
// re-export after correction never overwrites the earlier file at the bank.
func Filename(run *domain.PaymentRun, bankCode, fingerprint string) string {
	short := fingerprint
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("PAYRUN_%s_%s_%04d%02d_%s.json", run.CompanyID.String(), bankCode, run.Year, run.Month, short)
}
