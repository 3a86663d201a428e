package packing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLines(t *testing.T) {
	raw := `{
		"individual_separate_multi_box": [{"product_lines": [{"product_name": "A", "quantity": 2}, {"product_name": "B", "quantity": "3"}]}],
		"individual_item_same_box": [],
		"split_multi_box": [{"product_name": "S", "quantity": 1.0}]
	}`
	lines, err := ParseLines(raw)
	require.NoError(t, err)
	require.Len(t, lines.SeparateMultiBox, 1)
	require.Equal(t, []PackingLine{{Product: "A", Quantity: 2}, {Product: "B", Quantity: 3}}, lines.SeparateMultiBox[0].Lines)
	require.Empty(t, lines.SameBox)
	require.Equal(t, []PackingLine{{Product: "S", Quantity: 1}}, lines.SplitMultiBox)
	require.Equal(t, 5, packagesTotal(lines.SeparateMultiBox))
}

func TestParseLines_Empty(t *testing.T) {
	lines, err := ParseLines("  ")
	require.NoError(t, err)
	require.Equal(t, Lines{}, lines)
}

func TestParseLines_Rejects(t *testing.T) {
	for _, raw := range []string{
		`{"split_multi_box": [{"product_name": "S", "quantity": 0}]}`,
		`{"split_multi_box": [{"product_name": "S", "quantity": -2}]}`,
		`{"split_multi_box": [{"product_name": "S", "quantity": "two"}]}`,
		`{"split_multi_box": [{"product_name": "S", "quantity": 1.5}]}`,
		`{"split_multi_box": [{"quantity": 1}]}`,
		`{"individual_item_same_box": [{"product_lines": [{"product_name": "A", "quantity": 0}]}]}`,
		`not json`,
	} {
		_, err := ParseLines(raw)
		require.ErrorIs(t, err, ErrBadLines, raw)
	}
}

func TestPackage_String(t *testing.T) {
	require.Equal(t, "[A x2, B x1]", pkg(line("A", 2), line("B", 1)).String())
}

func TestParseLines_RejectsHugeQuantities(t *testing.T) {
	for _, raw := range []string{
		`{"split_multi_box": [{"product_name": "A", "quantity": 5e18}, {"product_name": "B", "quantity": 5e18}]}`,
		`{"split_multi_box": [{"product_name": "A", "quantity": "1000001"}]}`,
		`{"individual_item_same_box": [{"product_lines": [{"product_name": "A", "quantity": 1e300}]}]}`,
	} {
		_, err := ParseLines(raw)
		require.ErrorIs(t, err, ErrBadLines, raw)
	}

	lines, err := ParseLines(`{"split_multi_box": [{"product_name": "A", "quantity": 1000000}]}`)
	require.NoError(t, err)
	require.Equal(t, MaxQuantity, linesTotal(lines.SplitMultiBox))
}
