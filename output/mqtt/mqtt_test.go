package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strainrig/gauged/output"
)

func TestEncodeCarriesAllFieldsInChannelOrder(t *testing.T) {
	ts := time.Date(2026, 8, 29, 12, 30, 0, 0, time.UTC)
	r := output.Reading{
		Timestamp: ts,
		Raw:       []int32{420, -1337, 0},
		Values:    []float64{1.5, -2.25, 0},
	}

	payload, err := encode(r)
	require.NoError(t, err)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &keys))
	assert.Contains(t, keys, "timestamp")
	assert.Contains(t, keys, "raw")
	assert.Contains(t, keys, "values")

	var doc output.Reading
	require.NoError(t, json.Unmarshal(payload, &doc))
	assert.True(t, ts.Equal(doc.Timestamp))
	assert.Equal(t, r.Raw, doc.Raw)
	assert.Equal(t, r.Values, doc.Values)
}
