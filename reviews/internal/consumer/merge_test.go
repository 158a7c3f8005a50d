package consumer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLaterDocumentWins(t *testing.T) {
	out, err := Merge(
		json.RawMessage(`{"user_id":"u-1","product_id":"p-1","stars":1,"text":"meh"}`),
		json.RawMessage(`{"product_id":"p-1","title":"Mug","price":12.50}`),
		json.RawMessage(`{"user_id":"u-1","name":"Ada"}`),
		nil,
		json.RawMessage(`{"Sentiment":"NEGATIVE","text":"overridden"}`),
	)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Sentiment":"NEGATIVE","name":"Ada","price":12.50,"product_id":"p-1","stars":1,"text":"overridden","title":"Mug","user_id":"u-1"}`,
		string(out))
}

func TestMergeIsDeterministic(t *testing.T) {
	a, err := Merge(json.RawMessage(`{"b":{"y":1,"x":[2,{"d":1,"c":0}]},"a":true}`))
	require.NoError(t, err)
	b, err := Merge(json.RawMessage(`{"a":true,"b":{"x":[2,{"c":0,"d":1}],"y":1}}`))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":true,"b":{"x":[2,{"c":0,"d":1}],"y":1}}`, string(a))
}

func TestMergeRejectsNonObjects(t *testing.T) {
	_, err := Merge(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}
