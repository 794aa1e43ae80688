// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing rupee amounts from strings
// and converting between paise and rupee representations.
package core

import (
	"strconv"
	"strings"
)

// ParseDecimalToPaise converts a decimal rupee string to paise with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive paise.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToPaise("1000")   -> 100000, nil
//	ParseDecimalToPaise("12,34")  -> 1234, nil
//	ParseDecimalToPaise("12.345") -> 1235, nil (rounds up)
func ParseDecimalToPaise(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₹")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	// ASCII only: the fraction below is read byte by byte
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			frac += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				frac++
			}
		}
	}
	paise := iv*100 + frac
	if paise <= 0 {
		return 0, ErrInvalidAmount
	}
	return paise, nil
}

// Rupees returns the value as a float64 for display purposes only.
// Use paise for calculations.
func (m Money) Rupees() float64 {
	return float64(m.Paise) / 100.0
}

func (m Money) Add(o Money) Money {
	return Money{Paise: m.Paise + o.Paise}
}

func (m Money) Sub(o Money) Money {
	return Money{Paise: m.Paise - o.Paise}
}

func (m Money) IsNegative() bool {
	return m.Paise < 0
}

// Plain formats the amount without a currency sign, e.g. "1000.00".
func (m Money) Plain() string {
	p := m.Paise
	neg := p < 0
	if neg {
		p = -p
	}
	s := strconv.FormatInt(p/100, 10) + "." + twoDigits(p%100)
	if neg {
		return "-" + s
	}
	return s
}

// String formats the amount in rupees, e.g. "₹1000.00" or "-₹250.50".
func (m Money) String() string {
	if m.Paise < 0 {
		return "-₹" + Money{Paise: -m.Paise}.Plain()
	}
	return "₹" + m.Plain()
}

func twoDigits(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}

// Rupees builds a Money value from whole rupees.
func Rupees(r int64) Money {
	return Money{Paise: r * 100}
}
