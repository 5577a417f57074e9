package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date counts days since 1970-01-01.
type Date int32

func DateOf(year int, month time.Month, day int) Date {
	return Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(t.Unix() / 86400), nil
}

func (d Date) Time() time.Time { return time.Unix(int64(d)*86400, 0).UTC() }

func (d Date) String() string { return d.Time().Format(time.DateOnly) }

func (d Date) Year() int32 { return int32(d.Time().Year()) }

// DateTime counts microseconds since the unix epoch.
type DateTime int64

func DateTimeOf(t time.Time) DateTime { return DateTime(t.UnixMicro()) }

func ParseDateTime(s string) (DateTime, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t, err = time.Parse(time.DateTime, s); err != nil {
			return 0, fmt.Errorf("invalid datetime %q: %w", s, err)
		}
	}
	return DateTimeOf(t), nil
}

func (d DateTime) Time() time.Time { return time.UnixMicro(int64(d)).UTC() }

func (d DateTime) String() string { return d.Time().Format(time.RFC3339Nano) }

// Decimal is a fixed point number with DecimalScale fractional digits,
// stored unscaled. At most DecimalPrecision significant digits are allowed.
type Decimal int64

const (
	DecimalScale     = 2
	DecimalFactor    = 100
	DecimalPrecision = 15
	maxDecimal       = 999_999_999_999_999
)

func ParseDecimal(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")

	intPart, fracPart, _ := strings.Cut(s, ".")
	if len(fracPart) > DecimalScale {
		fracPart = fracPart[:DecimalScale]
	}
	for len(fracPart) < DecimalScale {
		fracPart += "0"
	}
	if intPart == "" {
		intPart = "0"
	}
	v, err := strconv.ParseInt(intPart+fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if v > maxDecimal {
		return 0, fmt.Errorf("decimal %q exceeds %d digits", s, DecimalPrecision)
	}
	if neg {
		v = -v
	}
	return Decimal(v), nil
}

func DecimalFromFloat(f float64) Decimal {
	return Decimal(int64(f * DecimalFactor))
}

func (d Decimal) Float64() float64 { return float64(d) / DecimalFactor }

func (d Decimal) String() string {
	v := int64(d)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/DecimalFactor, v%DecimalFactor)
}

// Mul and Div truncate toward zero.
func (d Decimal) Mul(o Decimal) Decimal { return d * o / DecimalFactor }

func (d Decimal) Div(o Decimal) Decimal { return d * DecimalFactor / o }
