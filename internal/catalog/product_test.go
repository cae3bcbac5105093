package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validNewProduct() NewProduct {
	return NewProduct{
		Title:       "Pen",
		Description: "Blue pen",
		Code:        "P1",
		Price:       1.5,
		Stock:       10,
		Category:    "office",
	}
}

func TestNewProduct_Validate(t *testing.T) {
	require.NoError(t, validNewProduct().Validate())

	cases := []struct {
		name    string
		mutate  func(*NewProduct)
		missing []string
	}{
		{"title", func(n *NewProduct) { n.Title = "" }, []string{"title"}},
		{"zero price is falsy", func(n *NewProduct) { n.Price = 0 }, []string{"price"}},
		{"zero stock is falsy", func(n *NewProduct) { n.Stock = 0 }, []string{"stock"}},
		{"several", func(n *NewProduct) { n.Code = ""; n.Category = "" }, []string{"code", "category"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := validNewProduct()
			tc.mutate(&n)

			err := n.Validate()
			var missing *MissingFieldsError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tc.missing, missing.Fields)
		})
	}
}

func TestNewProduct_ThumbnailsOptional(t *testing.T) {
	n := validNewProduct()
	n.Thumbnails = nil
	require.NoError(t, n.Validate())
}

func TestNewProduct_Build(t *testing.T) {
	p := validNewProduct().Build()

	_, err := uuid.Parse(p.ID)
	require.NoError(t, err)
	assert.True(t, p.Status)
	assert.Equal(t, []string{}, p.Thumbnails)
	assert.Equal(t, "Pen", p.Title)
	assert.Equal(t, 1.5, p.Price)
	assert.Equal(t, 10, p.Stock)

	ids := map[string]struct{}{}
	for range 100 {
		ids[validNewProduct().Build().ID] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestPatch_ApplyLeavesAbsentFields(t *testing.T) {
	base := sampleProduct("id-1", "Base")
	base.Thumbnails = []string{"keep.png"}

	got := Patch{Description: ptr("")}.apply(base)

	want := base
	want.Description = ""
	assert.Equal(t, want, got)
}

func TestParseLimit(t *testing.T) {
	cases := map[string]struct {
		n  int
		ok bool
	}{
		"3":   {3, true},
		"1":   {1, true},
		"0":   {0, false},
		"-2":  {0, false},
		"abc": {0, false},
		"2.5": {0, false},
		"3.0": {0, false},
		" 3":  {0, false},
		"":    {0, false},
	}

	for raw, want := range cases {
		n, ok := parseLimit(raw)
		assert.Equal(t, want.ok, ok, raw)
		assert.Equal(t, want.n, n, raw)
	}
}
