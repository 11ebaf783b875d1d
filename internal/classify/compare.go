package classify

import (
	"errors"
	"strings"
	"time"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// Ordering is the result of comparing two records.
type Ordering int

const (
	// Incomparable means neither record orders before the other and they
	// are not equivalent either (the pinned-datatype tie).
	Incomparable Ordering = iota
	Less
	Equivalent
	Greater
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Equivalent:
		return "equivalent"
	case Greater:
		return "greater"
	default:
		return "incomparable"
	}
}

// ErrUnknownTier is returned when a compared key has no tier. Callers must
// filter unclassifiable records out before ordering.
var ErrUnknownTier = errors.New("cannot compare record with unknown tier")

// Key is the part of a record the comparator looks at.
type Key struct {
	Tier     Tier
	Date     time.Time
	Datatype visit.Datatype
	Name     string
	ID       string
}

// KeyOf builds the ordering key of a classified record.
func KeyOf(rec visit.Record, tier Tier) Key {
	return Key{
		Tier:     tier,
		Date:     rec.EffectiveDate,
		Datatype: rec.Datatype,
		Name:     rec.Name,
		ID:       rec.ID,
	}
}

// Comparator orders records of a single participant.
type Comparator struct {
	// Pinned is the primary longitudinal datatype. Empty disables the
	// pinned tie rule.
	Pinned visit.Datatype
}

// Compare orders a relative to b:
//
//  1. either tier unknown: ErrUnknownTier
//  2. tier, inverse lexicographic
//  3. effective date, ascending
//  4. same date, different datatypes, one of them pinned: Incomparable
//  5. otherwise name, then id
func (c Comparator) Compare(a, b Key) (Ordering, error) {
	if a.Tier == Unknown || b.Tier == Unknown {
		return Incomparable, ErrUnknownTier
	}

	if a.Tier != b.Tier {
		if a.Tier.Before(b.Tier) {
			return Less, nil
		}
		return Greater, nil
	}

	switch {
	case a.Date.Before(b.Date):
		return Less, nil
	case a.Date.After(b.Date):
		return Greater, nil
	}

	if c.Pinned != "" && a.Datatype != b.Datatype &&
		(a.Datatype == c.Pinned || b.Datatype == c.Pinned) {
		return Incomparable, nil
	}

	if n := strings.Compare(a.Name, b.Name); n != 0 {
		return orderingOf(n), nil
	}
	return orderingOf(strings.Compare(a.ID, b.ID)), nil
}

// Less reports whether a is strictly ordered before b. Comparison errors and
// incomparable pairs are "not less" in both directions.
func (c Comparator) Less(a, b Key) bool {
	o, err := c.Compare(a, b)
	return err == nil && o == Less
}

func orderingOf(n int) Ordering {
	switch {
	case n < 0:
		return Less
	case n > 0:
		return Greater
	default:
		return Equivalent
	}
}
