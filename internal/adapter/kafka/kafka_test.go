package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapsafe/chlorine-data-service/internal/audit"
)

func TestSerializeFinding(t *testing.T) {
	f := audit.Finding{
		PWSID:       "MI0000125",
		UtilityName: "City of Franklin",
		State:       "MI",
		PatternName: "Franklin Michigan Contamination",
		Severity:    audit.SeverityCritical,
		Description: "Michigan reading stored for a Tennessee system",
		Evidence:    []string{"source domain michigan.gov"},
		AutoCleanup: true,
	}

	msg, err := serializeFinding(f)
	require.NoError(t, err)

	assert.Equal(t, []byte("MI0000125"), msg.Key)
	assert.Contains(t, string(msg.Value), `"pattern_name":"Franklin Michigan Contamination"`)
	assert.Contains(t, string(msg.Value), `"auto_cleanup":true`)

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "pattern", msg.Headers[0].Key)
	assert.Equal(t, []byte("Franklin Michigan Contamination"), msg.Headers[0].Value)
	assert.Equal(t, "severity", msg.Headers[1].Key)
	assert.Equal(t, []byte("critical"), msg.Headers[1].Value)
}
