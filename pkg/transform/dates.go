package transform

import "time"

// reformatDateDMY converts DD/MM/YYYY to YYYY-MM-DD. Unparseable values
// pass through unchanged.
func reformatDateDMY(s string) string {
	t, err := time.Parse("02/01/2006", s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}

// reformatDateDDMMYYYY converts DDMMYYYY to YYYY-MM-DD. Values that are not
// eight digits forming a real calendar date pass through unchanged.
func reformatDateDDMMYYYY(s string) string {
	if len(s) != 8 {
		return s
	}
	t, err := time.Parse("02012006", s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}
