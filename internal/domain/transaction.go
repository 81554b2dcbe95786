package domain

// RawRow maps a normalized column name (trimmed, lowercased) to the cell value
// read from one statement line or spreadsheet row.
type RawRow map[string]string

// RawTable is the Statement Parser output. Columns keeps the header order of the
// source so column inference can prefer the leftmost match.
type RawTable struct {
	Columns []string
	Rows    []RawRow
	// Skipped counts source lines dropped by the decoder itself (PDF only).
	Skipped int
}

// Len returns the number of data rows.
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Canonical field names every statement is normalized onto.
const (
	FieldDate        = "date"
	FieldDescription = "description"
	FieldAmount      = "amount"
)

// RequiredFields lists the canonical fields in resolution order.
var RequiredFields = []string{FieldDate, FieldDescription, FieldAmount}

// CategoryOther is assigned when no keyword rule matches.
const CategoryOther = "other"

// Transaction is one canonical statement record. Date and Description are
// non-empty and Amount is finite once the normalizer has produced it.
// Category and BatchID are filled by the categorizer and the batch assembler.
type Transaction struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	BatchID     string  `json:"batch_id,omitempty"`
}
