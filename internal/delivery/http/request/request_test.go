package request

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/price-aggregator/internal/entity"
)

func TestParseSearch(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/search?q=+aceite+&limit=5&source=wong", nil)

	req, err := ParseSearch(r, 10)

	require.NoError(t, err)
	assert.Equal(t, entity.SearchRequest{Term: "aceite", LimitPerSource: 5, Source: "wong"}, req)
}

func TestParseSearch_DefaultLimit(t *testing.T) {
	req, err := ParseSearch(httptest.NewRequest("GET", "/api/search?q=pan", nil), 7)

	require.NoError(t, err)
	assert.Equal(t, 7, req.LimitPerSource)
}

func TestParseLimit(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3", "1.5"} {
		_, err := ParseLimit(raw, 10)
		assert.ErrorIs(t, err, entity.ErrInvalidLimit, raw)
	}
	n, err := ParseLimit("", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}
