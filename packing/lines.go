package packing

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// Strategy - declared primary operation type of an order
type Strategy string

const (
	ALL                Strategy = "all"
	SEPARATE_BOX       Strategy = "is_separate_box"
	SEPARATE_MULTI_BOX Strategy = "individual_separate_multi_box"
	SAME_BOX           Strategy = "individual_item_same_box"
	SPLIT_MULTI_BOX    Strategy = "split_multi_box"
	MIXED              Strategy = "mixed"
)

// ErrBadLines - line data does not parse or carries an invalid line
var ErrBadLines = errors.New("bad line data")

// MaxQuantity - largest quantity a single line may order
const MaxQuantity = 1_000_000

// Quantity - line quantity; the OMS sends numbers or numeric strings
type Quantity int

// UnmarshalJSON - ...
func (q *Quantity) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(data, `"`))
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("quantity %s: %w", data, ErrBadLines)
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("quantity %s is not integral: %w", data, ErrBadLines)
	}
	if math.Abs(f) > MaxQuantity {
		return fmt.Errorf("quantity %s exceeds %d: %w", data, MaxQuantity, ErrBadLines)
	}
	*q = Quantity(f)
	return nil
}

// PackingLine - one product entry
type PackingLine struct {
	Product  string   `json:"product_name"`
	Quantity Quantity `json:"quantity"`
}

func (l PackingLine) String() string {
	return fmt.Sprintf("%s x%d", l.Product, l.Quantity)
}

// Package - lines boxed together under one closure
type Package struct {
	Lines []PackingLine `json:"product_lines"`
}

func (p Package) String() string {
	parts := make([]string, 0, len(p.Lines))
	for _, l := range p.Lines {
		parts = append(parts, l.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Lines - parsed line data keyed by strategy
type Lines struct {
	SeparateMultiBox []Package     `json:"individual_separate_multi_box"`
	SameBox          []Package     `json:"individual_item_same_box"`
	SplitMultiBox    []PackingLine `json:"split_multi_box"`
}

// ParseLines decodes and validates raw line data. Empty input means no lines.
func ParseLines(raw string) (Lines, error) {
	var lines Lines
	if strings.TrimSpace(raw) == "" {
		return lines, nil
	}
	if err := sonic.UnmarshalString(raw, &lines); err != nil {
		return lines, fmt.Errorf("%v: %w", err, ErrBadLines)
	}
	for _, pkgs := range [][]Package{lines.SeparateMultiBox, lines.SameBox} {
		for _, pkg := range pkgs {
			if err := validate(pkg.Lines); err != nil {
				return lines, err
			}
		}
	}
	return lines, validate(lines.SplitMultiBox)
}

func validate(lines []PackingLine) error {
	for _, l := range lines {
		if l.Product == "" {
			return fmt.Errorf("line without product: %w", ErrBadLines)
		}
		if l.Quantity <= 0 || l.Quantity > MaxQuantity {
			return fmt.Errorf("product %s has quantity %d: %w", l.Product, l.Quantity, ErrBadLines)
		}
	}
	return nil
}

func packagesTotal(pkgs []Package) int {
	total := 0
	for _, pkg := range pkgs {
		total += linesTotal(pkg.Lines)
	}
	return total
}

func linesTotal(lines []PackingLine) int {
	total := 0
	for _, l := range lines {
		total += int(l.Quantity)
	}
	return total
}
