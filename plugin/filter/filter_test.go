package filter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/speechcare/store"
)

func testAssets() []*store.AudioAsset {
	now := time.Now().Unix()
	return []*store.AudioAsset{
		{Hash: "aa11", Provider: "elevenlabs", DurationMs: 2000, Size: 32000, CreatedTs: now},
		{Hash: "bb22", Provider: "openai", DurationMs: 900, Size: 14000, CreatedTs: now - 7*86400},
		{Hash: "ab33", Provider: "elevenlabs", DurationMs: 500, Size: 8000, CreatedTs: now - 2*86400},
	}
}

func hashes(assets []*store.AudioAsset) []string {
	list := make([]string, 0, len(assets))
	for _, a := range assets {
		list = append(list, a.Hash)
	}
	return list
}

func TestFilterApply(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{`provider == "elevenlabs"`, []string{"aa11", "ab33"}},
		{`provider == "elevenlabs" && duration_ms > 1000`, []string{"aa11"}},
		{`hash.startsWith("a")`, []string{"aa11", "ab33"}},
		{`created_ts >= now - 86400`, []string{"aa11"}},
		{`size < 10000 || provider == "openai"`, []string{"bb22", "ab33"}},
		{`false`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Parse(tt.expr)
			require.NoError(t, err)
			got, err := f.Apply(testAssets())
			require.NoError(t, err)
			assert.Equal(t, tt.want, hashes(got))
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, expr := range []string{
		"",
		`provider`,
		`size + 1`,
		`unknown_field == 1`,
		`provider ==`,
		strings.Repeat("a", MaxExpressionLength+1),
	} {
		_, err := Parse(expr)
		assert.Error(t, err, expr)
	}
}
