package platform

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRawThread() *RawThread {
	return &RawThread{
		OpaqueID:  EncodeThreadID(555),
		ListingID: "L-1",
		Participants: []RawParticipant{
			{AccountID: "acct-guest", Role: "Guest", DisplayName: "Mina"},
			{AccountID: "acct-host", Role: "Host", DisplayName: "The Host"},
		},
		Messages: []RawMessage{
			{ID: "m1", SenderAccountID: "acct-guest", Content: "Is early check-in possible?", CreatedAt: "2026-08-01T10:00:00Z"},
			{ID: "m2", SenderAccountID: "acct-host", Content: "Yes, from noon.", CreatedAt: "2026-08-01T10:05:00Z"},
		},
	}
}

func TestNormalizeHappyPath(t *testing.T) {
	thread, err := Normalize(validRawThread())
	require.NoError(t, err)

	assert.Equal(t, int64(555), thread.NumericID)
	assert.Equal(t, "Mina", thread.GuestDisplayName)
	require.Len(t, thread.Messages, 2)

	want := []NormalizedMessage{
		{ExternalID: "m1", Content: "Is early check-in possible?", IsGuest: true,
			SentAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), Confidence: ConfidenceRoleMap},
		{ExternalID: "m2", Content: "Yes, from noon.", IsGuest: false,
			SentAt: time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC), Confidence: ConfidenceRoleMap},
	}
	if diff := cmp.Diff(want, thread.Messages); diff != "" {
		t.Errorf("normalized messages mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, thread.LowConfidenceCount)
}

func TestNormalizeShapeErrors(t *testing.T) {
	_, err := Normalize(nil)
	assert.Error(t, err)

	raw := validRawThread()
	raw.OpaqueID = ""
	_, err = Normalize(raw)
	assert.Error(t, err)

	raw = validRawThread()
	raw.OpaqueID = "###"
	_, err = Normalize(raw)
	assert.Error(t, err)

	raw = validRawThread()
	raw.Messages[0].CreatedAt = "yesterday"
	_, err = Normalize(raw)
	assert.Error(t, err)
}

func TestNormalizeSkipsEmptyContent(t *testing.T) {
	raw := validRawThread()
	raw.Messages = append(raw.Messages, RawMessage{ID: "m3", SenderAccountID: "acct-guest", CreatedAt: "2026-08-01T11:00:00Z"})

	thread, err := Normalize(raw)
	require.NoError(t, err)
	assert.Len(t, thread.Messages, 2)
}

func TestNormalizeTimestampFormats(t *testing.T) {
	for _, stamp := range []string{
		"2026-08-01T10:00:00.123Z",
		"2026-08-01T10:00:00Z",
		"2026-08-01T10:00:00",
		"2026-08-01 10:00:00",
	} {
		raw := validRawThread()
		raw.Messages = raw.Messages[:1]
		raw.Messages[0].CreatedAt = stamp

		_, err := Normalize(raw)
		assert.NoError(t, err, "format %s", stamp)
	}
}

func TestClassifySenderHeuristics(t *testing.T) {
	hostOnly := map[string]string{"acct-host": "host"}

	t.Run("unknown sender with host in map is guest", func(t *testing.T) {
		isGuest, confidence := classifySender(RawMessage{SenderAccountID: "stranger", Content: "hi"}, hostOnly)
		assert.True(t, isGuest)
		assert.Equal(t, ConfidenceHeuristic, confidence)
	})

	t.Run("autoreply phrasing is host side", func(t *testing.T) {
		isGuest, confidence := classifySender(RawMessage{SenderAccountID: "stranger", Content: "This is an automated response to your question"}, hostOnly)
		assert.False(t, isGuest)
		assert.Equal(t, ConfidenceHeuristic, confidence)
	})

	t.Run("empty role map defaults to guest", func(t *testing.T) {
		isGuest, confidence := classifySender(RawMessage{SenderAccountID: "stranger", Content: "hello"}, map[string]string{})
		assert.True(t, isGuest)
		assert.Equal(t, ConfidenceHeuristic, confidence)
	})

	t.Run("support role is host side", func(t *testing.T) {
		isGuest, confidence := classifySender(RawMessage{SenderAccountID: "acct-s", Content: "hi"}, map[string]string{"acct-s": "support"})
		assert.False(t, isGuest)
		assert.Equal(t, ConfidenceRoleMap, confidence)
	})
}

func TestNormalizeCountsLowConfidence(t *testing.T) {
	raw := validRawThread()
	raw.Messages = append(raw.Messages, RawMessage{
		ID: "m3", SenderAccountID: "stranger", Content: "who am I", CreatedAt: "2026-08-01T12:00:00Z",
	})

	thread, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, thread.LowConfidenceCount)
}
