package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	d, err := Lookup(" User ")
	require.NoError(t, err)
	assert.Equal(t, "user_id", d.IDField)
	assert.Equal(t, "/user_lookup", d.LookupPath())
	assert.Equal(t, "/find_user", d.LegacyPath())
	assert.Equal(t, "check_user", d.CheckStep())
	assert.Equal(t, "user-lookup-api: please access /user_lookup", d.RootMessage())
	assert.Equal(t, "user not found", d.NotFoundMessage())

	p, err := Lookup("product")
	require.NoError(t, err)
	assert.False(t, p.Versioned)
	assert.Equal(t, "business-lookup-api: please access /product_lookup", p.RootMessage())

	_, err = Lookup("review")
	assert.Error(t, err)
}

func TestNamesSorted(t *testing.T) {
	assert.Equal(t, []string{"product", "supplier", "user"}, Names())
}
