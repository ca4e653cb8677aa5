package loyalty

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// errMalformedRate marks a rate object missing one of its required fields.
// It never escapes ParseTable.
var errMalformedRate = errors.New("malformed conversion rate")

// Rate maps a currency amount to a loyalty point amount: every
// CurrencyCentAmount cents of Currency are worth PointAmount points.
type Rate struct {
	Currency           string
	CurrencyCentAmount int64
	PointAmount        int64
}

// usable reports whether the rate can be used for conversion. A zero or
// negative cent amount would make the conversion undefined.
func (r Rate) usable() bool {
	return r.CurrencyCentAmount > 0 && r.PointAmount >= 0
}

// Table holds the configured conversion rates for one processing pass.
// A Table is read fresh for every event and never cached.
type Table struct {
	rates []Rate
}

// NewTable builds a Table from the given rates. Intended for tests and the
// rates-ingest tool; production tables come from ParseTable.
func NewTable(rates ...Rate) Table {
	return Table{rates: rates}
}

// Empty reports whether the table holds no rates at all. The processor skips
// an event entirely when the table is empty rather than award undefined points.
func (t Table) Empty() bool {
	return len(t.rates) == 0
}

// Len returns the number of configured rates.
func (t Table) Len() int {
	return len(t.rates)
}

// RateFor returns the first usable rate for the given currency code,
// matched case-insensitively. Duplicate entries for a currency are tolerated;
// the first one wins.
func (t Table) RateFor(currency string) (Rate, bool) {
	for _, r := range t.rates {
		if r.usable() && strings.EqualFold(r.Currency, currency) {
			return r, true
		}
	}
	return Rate{}, false
}

// Points converts a cent amount in the given currency to loyalty points:
// floor(centAmount / CurrencyCentAmount * PointAmount). The floor is a
// committed policy: fractional results always round in the customer's
// disfavor so the engine never grants points the configured rate cannot
// justify. Currencies without a usable rate convert to 0.
//
// The numerator is an exact integer product, and QuoRem with precision 0
// truncates the quotient without any intermediate rounding, so the floor is
// exact even when the true quotient sits a hair below an integer.
func (t Table) Points(centAmount int64, currency string) int64 {
	if centAmount <= 0 {
		return 0
	}
	r, ok := t.RateFor(currency)
	if !ok {
		return 0
	}
	num := decimal.NewFromInt(centAmount).Mul(decimal.NewFromInt(r.PointAmount))
	pts, _ := num.QuoRem(decimal.NewFromInt(r.CurrencyCentAmount), 0)
	return pts.IntPart()
}

// ParseTable decodes a stored conversion-rate value into a Table. Decoding is
// deliberately fail-soft: a value that is absent, not an array, or contains
// any element whose fields are missing or of the wrong type yields an empty
// table rather than an error. A misconfigured table disables loyalty
// processing for the event instead of crashing it.
func ParseTable(raw []byte) Table {
	if len(raw) == 0 {
		return Table{}
	}

	var rates []Rate
	d := jx.DecodeBytes(raw)
	if d.Next() != jx.Array {
		return Table{}
	}
	err := d.Arr(func(d *jx.Decoder) error {
		r, err := decodeRate(d)
		if err != nil {
			return err
		}
		rates = append(rates, r)
		return nil
	})
	if err != nil {
		return Table{}
	}
	return Table{rates: rates}
}

// decodeRate decodes a single rate object. Any missing field or type
// mismatch is an error, which ParseTable turns into an empty table.
func decodeRate(d *jx.Decoder) (Rate, error) {
	var (
		r    Rate
		seen uint8
	)
	const (
		seenCurrency = 1 << iota
		seenCents
		seenPoints
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "currency":
			s, err := d.Str()
			if err != nil {
				return err
			}
			r.Currency = s
			seen |= seenCurrency
		case "currencyCentAmount":
			n, err := d.Int64()
			if err != nil {
				return err
			}
			r.CurrencyCentAmount = n
			seen |= seenCents
		case "pointAmount":
			n, err := d.Int64()
			if err != nil {
				return err
			}
			r.PointAmount = n
			seen |= seenPoints
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return Rate{}, err
	}
	if seen != seenCurrency|seenCents|seenPoints {
		return Rate{}, errMalformedRate
	}
	return r, nil
}
