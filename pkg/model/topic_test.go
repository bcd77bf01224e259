package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic_DestinationRoundTrip(t *testing.T) {
	tests := []struct {
		topic Topic
		dest  string
	}{
		{RoomTopic("general", KindMessages), "/topic/chat/general"},
		{RoomTopic("general", KindTyping), "/topic/chat/general/typing"},
		{RoomTopic("general", KindRead), "/topic/chat/general/read"},
		{RoomTopic("general", KindDelivered), "/topic/chat/general/delivered"},
		{PresenceTopic(), "/topic/presence"},
	}

	for _, tt := range tests {
		t.Run(tt.dest, func(t *testing.T) {
			assert.Equal(t, tt.dest, tt.topic.Destination())

			got, err := ParseDestination(tt.dest)
			require.NoError(t, err)
			assert.Equal(t, tt.topic, got)
		})
	}
}

func TestParseDestination_Invalid(t *testing.T) {
	for _, dest := range []string{
		"",
		"/topic/chat/",
		"/topic/chat/general/unknown",
		"/topic/chat/general/messages",
		"/topic/chat/general/typing/extra",
		"/app/chat.sendMessage",
	} {
		t.Run(dest, func(t *testing.T) {
			_, err := ParseDestination(dest)
			assert.ErrorIs(t, err, ErrInvalidTopic)
		})
	}
}

func TestTopic_Validate(t *testing.T) {
	assert.NoError(t, RoomTopic("r1", KindTyping).Validate())
	assert.Error(t, RoomTopic("", KindTyping).Validate())
	assert.Error(t, RoomTopic("a/b", KindMessages).Validate())
	assert.Error(t, Topic{Room: "r1", Kind: KindPresence}.Validate())
	assert.Error(t, Topic{Room: "r1", Kind: "bogus"}.Validate())
}
