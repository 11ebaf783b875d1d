package classify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// ErrNoEffectiveDate is returned when a record has none of the candidate
// date fields and no modification time.
var ErrNoEffectiveDate = errors.New("record has no effective date")

// DateResolver picks a record's effective date from candidate fields.
type DateResolver struct {
	// Primary is the visit date field.
	Primary string
	// Fallbacks are tried in order when Primary is absent.
	Fallbacks []string
}

// DefaultDateResolver tries the visit date, then device and scan dates.
var DefaultDateResolver = DateResolver{
	Primary:   "visitdate",
	Fallbacks: []string{"scan_date", "scandate", "img_date", "collection_date"},
}

// Resolve returns the first present candidate date, falling back to the
// store modification time. A present but unparseable value is an error
// rather than a silent fallback, since it would change the record's order.
func (r DateResolver) Resolve(rec visit.Record) (time.Time, error) {
	candidates := make([]string, 0, len(r.Fallbacks)+1)
	if r.Primary != "" {
		candidates = append(candidates, r.Primary)
	}
	candidates = append(candidates, r.Fallbacks...)

	for _, field := range candidates {
		raw := strings.TrimSpace(rec.Fields[field])
		if raw == "" {
			continue
		}
		t, err := visit.ParseDate(raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("record %s field %s: %w", rec.ID, field, err)
		}
		return t, nil
	}

	if !rec.Modified.IsZero() {
		return rec.Modified.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s", ErrNoEffectiveDate, rec.ID)
}
