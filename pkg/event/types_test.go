package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	type approved struct {
		ApplicationID string `json:"application_id"`
	}

	env, err := NewEnvelope(ApplicationApproved, "portal", approved{ApplicationID: "app-1"})
	require.NoError(t, err)

	raw := []byte(`{"id":"` + env.ID.String() + `","type":"application.approved","data":{"application_id":"app-1"}}`)
	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ApplicationApproved, parsed.Type)

	var got approved
	require.NoError(t, parsed.Decode(&got))
	assert.Equal(t, "app-1", got.ApplicationID)
}

func TestParseRejectsMissingType(t *testing.T) {
	_, err := Parse([]byte(`{"data":{}}`))
	assert.Error(t, err)
}

func TestKnown(t *testing.T) {
	assert.True(t, ApplicationRejected.Known())
	assert.False(t, EventType("application.deleted").Known())
}
