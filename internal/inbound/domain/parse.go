package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// AckDocument is the wire shape of one acknowledgment file. Identifiers travel
// as strings; status and reason codes stay in the bank's raw vocabulary.
type AckDocument struct {
	BankCode string     `json:"bank_code"`
	Entries  []AckEntry `json:"entries"`
}

type AckEntry struct {
	RunID       string `json:"run_id"`
	LineID      string `json:"line_id,omitempty"`
	StatusCode  string `json:"status_code"`
	ReasonCode  string `json:"reason_code,omitempty"`
	ReasonLabel string `json:"reason_label,omitempty"`
}

// ParseDocument decodes and validates one acknowledgment payload. Any defect
// is reported as a DocumentError naming the file so the fetch can record it
// and continue with the rest of the batch.
func ParseDocument(filename string, payload []byte) (*AckDocument, error) {
	var doc AckDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, &DocumentError{Filename: filename, Reason: "malformed json: " + err.Error()}
	}
	if len(doc.Entries) == 0 {
		return nil, &DocumentError{Filename: filename, Reason: "no entries"}
	}
	for i, entry := range doc.Entries {
		if strings.TrimSpace(entry.RunID) == "" {
			return nil, &DocumentError{Filename: filename, Reason: "entry " + strconv.Itoa(i) + ": missing run_id"}
		}
		if _, err := ParseID(entry.RunID); err != nil {
			return nil, &DocumentError{Filename: filename, Reason: "entry " + strconv.Itoa(i) + ": bad run_id"}
		}
		if strings.TrimSpace(entry.LineID) != "" {
			if _, err := ParseID(entry.LineID); err != nil {
				return nil, &DocumentError{Filename: filename, Reason: "entry " + strconv.Itoa(i) + ": bad line_id"}
			}
		}
		if strings.TrimSpace(entry.StatusCode) == "" {
			return nil, &DocumentError{Filename: filename, Reason: "entry " + strconv.Itoa(i) + ": missing status_code"}
		}
	}
	return &doc, nil
}

// ParseID reads a decimal snowflake identifier. Zero and negatives are
// rejected; zero is reserved for "no line" in mappings.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}
