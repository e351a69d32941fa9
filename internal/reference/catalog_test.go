package reference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcekit/internal/field"
)

func TestLoadEnumCatalog(t *testing.T) {
	cat, err := LoadEnumCatalog("testdata")
	require.NoError(t, err)
	require.Contains(t, cat, "order_status")
	require.Contains(t, cat, "country")

	opts, err := cat.Options("order_status", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []field.Option{
		{Value: "new", Label: "New"},
		{Value: "shipped", Label: "Shipped"},
	}, opts)

	opts, err = cat.Options("order_status", time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	opts, err = cat.Options("country", time.Now())
	require.NoError(t, err)
	assert.Equal(t, []field.Option{{Value: "AT", Label: "AT"}, {Value: "DE", Label: "Germany"}}, opts)

	_, err = cat.Options("missing", time.Now())
	assert.Error(t, err)
}
