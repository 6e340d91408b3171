package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList_Value(t *testing.T) {
	v, err := StringList{"1 cup flour", "2 eggs"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["1 cup flour","2 eggs"]`, v)

	v, err = StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestStringList_Scan(t *testing.T) {
	var l StringList

	require.NoError(t, l.Scan(`["a", "  ", "b"]`))
	assert.Equal(t, StringList{"a", "b"}, l)

	require.NoError(t, l.Scan([]byte(`["c"]`)))
	assert.Equal(t, StringList{"c"}, l)

	require.NoError(t, l.Scan(nil))
	assert.Empty(t, l)

	require.NoError(t, l.Scan(""))
	assert.Empty(t, l)
}

func TestStringList_ScanRejectsBadShapes(t *testing.T) {
	var l StringList

	assert.Error(t, l.Scan(`{"a": 1}`))
	assert.Error(t, l.Scan(`["a", 2]`))
	assert.Error(t, l.Scan(`not json`))
	assert.Error(t, l.Scan(42))
}
