package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/loopwidget/planscope/pkg/pricing"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProductArg(t *testing.T) {
	tests := []struct {
		name    string
		store   string
		arg     string
		want    sources.ProductRef
		wantErr bool
	}{
		{"handle", "https://shop.example.com", "akk", sources.ProductRef{Store: "https://shop.example.com", Handle: "akk"}, false},
		{"handle with ids", "https://shop.example.com", "akk:100:101",
			sources.ProductRef{Store: "https://shop.example.com", Handle: "akk", ProductID: "100", SecondaryProductID: "101"}, false},
		{"product url", "", "https://shop.example.com/products/akk?variant=10",
			sources.ProductRef{Store: "https://shop.example.com", Handle: "akk", VariantID: "10"}, false},
		{"collection product url", "", "https://shop.example.com/collections/all/products/akk/",
			sources.ProductRef{Store: "https://shop.example.com", Handle: "akk"}, false},
		{"no store", "", "akk", sources.ProductRef{}, true},
		{"not a product url", "", "https://shop.example.com/pages/about", sources.ProductRef{}, true},
		{"empty handle", "https://shop.example.com", ":100", sources.ProductRef{}, true},
		{"too many fields", "https://shop.example.com", "a:1:2:3", sources.ProductRef{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProductArg(tt.store, tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "missing.yaml")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--config", cfg}, args...))
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestPlansDevJSON(t *testing.T) {
	var got []productOutput
	require.NoError(t, json.Unmarshal([]byte(execute(t, "plans", "dev", "--format", "json")), &got))
	require.Len(t, got, 2)

	akk := got[0]
	assert.Equal(t, "akk", akk.Handle)
	assert.Equal(t, "READY", akk.Status)
	require.Len(t, akk.Plans, 2)
	assert.Equal(t, "123", akk.Plans[0].ID)
	assert.Equal(t, 15, akk.Plans[0].Savings)
	assert.Equal(t, "124", akk.Plans[1].ID)
	assert.Equal(t, pricing.MultiUnitQuantity, akk.Plans[1].Quantity)

	tea := got[1]
	require.Len(t, tea.Plans, 2)
	assert.Equal(t, "202", tea.Plans[0].ID, "lower interval count sorts first")
}

func TestQuoteJSON(t *testing.T) {
	var q pricing.Quote
	require.NoError(t, json.Unmarshal([]byte(execute(t, "quote", "--price", "65", "--percent", "15", "--format", "json")), &q))
	assert.Equal(t, int64(6500), q.BasePrice)
	assert.Equal(t, int64(5525), q.DiscountedPrice)
	assert.Equal(t, 15, q.SavingsPercent)
}

func TestLockPurposeNamesProducts(t *testing.T) {
	groups := []storeGroup{
		{refs: []sources.ProductRef{{Store: "https://shop.example.com", Handle: "akk"}}},
		{refs: []sources.ProductRef{{Store: "http://tea.example.com", Handle: "matcha"}, {Store: "http://tea.example.com", Handle: "sencha"}}},
	}
	assert.Equal(t, "plans for shop.example.com/akk, tea.example.com/matcha, tea.example.com/sencha", lockPurpose(groups))
}
