package client

import (
	"testing"

	"workhub/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame_Variants(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, ev Event)
	}{
		{
			name:  "connected",
			frame: `{"type":"connected","payload":{"user_id":"u1","rooms":["user:u1","workspace:w1"]}}`,
			check: func(t *testing.T, ev Event) {
				c := ev.(Connected)
				assert.Equal(t, domain.UserID("u1"), c.UserID)
				assert.Equal(t, []domain.Room{"user:u1", "workspace:w1"}, c.Rooms)
			},
		},
		{
			name:  "notification created",
			frame: `{"type":"notification_created","payload":{"id":"n1","user_id":"u1","type":"assigned","message":"hi","is_read":false}}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "n1", ev.(NotificationCreated).Notification.ID)
			},
		},
		{
			name:  "notification updated",
			frame: `{"type":"notification_updated","payload":{"notification_id":"n1","is_read":true}}`,
			check: func(t *testing.T, ev Event) {
				u := ev.(NotificationUpdated)
				assert.True(t, u.IsRead)
				assert.False(t, u.AllRead)
			},
		},
		{
			name:  "member removed",
			frame: `{"type":"workspace_member_removed","payload":{"workspace_id":"w1","user_id":"u2"}}`,
			check: func(t *testing.T, ev Event) {
				m := ev.(MemberEvent)
				assert.True(t, m.Removed())
				assert.Equal(t, domain.WorkspaceID("w1"), m.Change.WorkspaceID)
			},
		},
		{
			name:  "entity",
			frame: `{"type":"task_moved","payload":{"id":"t1","section_id":"s2"}}`,
			check: func(t *testing.T, ev Event) {
				e := ev.(EntityEvent)
				assert.Equal(t, domain.EntityTask, e.Entity)
				assert.Equal(t, domain.ActionMoved, e.Action)
				assert.JSONEq(t, `{"id":"t1","section_id":"s2"}`, string(e.Object))
				assert.Equal(t, "task_moved", e.FrameType())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeFrame([]byte(tt.frame))
			require.NoError(t, err)
			tt.check(t, ev)
		})
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	frames := []string{
		`not json`,
		`{"type":"task_exploded","payload":{}}`,
		`{"type":"notification_created"}`,
		`{"type":"notification_created","payload":null}`,
		`{"type":"notification_updated","payload":"read"}`,
		`{"type":"connected","payload":{"rooms":[]}}`,
		`{"type":"workspace_member_added","payload":{"user_id":"u1"}}`,
	}
	for _, frame := range frames {
		_, err := DecodeFrame([]byte(frame))
		assert.ErrorIs(t, err, ErrMalformedFrame, frame)
	}
}
