// Package segment builds fixed-width segment rows from credit record
// envelopes. Every row carries exactly 59 columns regardless of input shape;
// that column contract is what the downstream table schema is built against
// and must never vary.
package segment

import (
	"fmt"

	"github.com/keboola/go-utils/pkg/orderedmap"
)

// Code identifies one logical segment of a credit record.
type Code string

// The fixed set of segment codes. Order of declaration matches emission
// order.
const (
	PN Code = "PN" // personal name
	ID Code = "ID" // identifiers
	PT Code = "PT" // phones
	EC Code = "EC" // email contacts
	PA Code = "PA" // postal addresses
	TL Code = "TL" // trade line
	TH Code = "TH" // trade history
)

// Order is the fixed emission order of segment rows for one envelope.
var Order = [7]Code{PN, ID, PT, EC, PA, TL, TH}

// Column layout of a segment row.
const (
	// FieldSlots is the number of flattened field columns per row.
	FieldSlots = 50

	// identityWidth covers Unique_ID and Segment_Name.
	identityWidth = 2

	// fieldEnd is the row length after identity and field columns.
	fieldEnd = identityWidth + FieldSlots

	// reservedColumns are appended empty for downstream consumers.
	reservedColumns = 6

	// RowWidth is the binding 59-column contract with the downstream table.
	RowWidth = fieldEnd + 1 + reservedColumns
)

// reservedHeader names the trailing columns owned by downstream consumers.
var reservedHeader = [reservedColumns]string{
	"System",
	"Processing_Stage",
	"Processing_Status",
	"Bot_Status",
	"Failure_Reason",
	"Forced_Status",
}

// Header returns the 59 column names in output order.
func Header() []string {
	header := make([]string, 0, RowWidth)
	header = append(header, "Unique_ID", "Segment_Name")
	for i := 1; i <= FieldSlots; i++ {
		header = append(header, fmt.Sprintf("Field%d", i))
	}
	header = append(header, "Residual_Value")
	header = append(header, reservedHeader[:]...)
	return header
}

// DefaultShape returns the empty value a segment assumes when absent from a
// record: PN, EC and TL are mappings, the rest are sequences. An empty shape
// contributes zero flattened fields either way; the distinction documents
// each segment's expected wire shape.
func DefaultShape(code Code) any {
	switch code {
	case PN, EC, TL:
		return orderedmap.New()
	default:
		return []any{}
	}
}
