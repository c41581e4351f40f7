package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techtie/match-app/internal/matching"
	"github.com/techtie/match-app/internal/notification"
)

func TestParseClientMessage_SetFilter(t *testing.T) {
	input := []byte(`{"type":"set_filter","skills":["React","Go"],"experience_level":"Senior","online_only":true}`)

	msgType, msg, err := ParseClientMessage(input)
	require.NoError(t, err)
	assert.Equal(t, TypeSetFilter, msgType)

	sf, ok := msg.(SetFilterMsg)
	require.True(t, ok, "expected SetFilterMsg, got %T", msg)
	assert.Equal(t, []string{"React", "Go"}, sf.Skills)

	c := sf.Criteria()
	assert.Equal(t, matching.LevelSenior, c.ExperienceLevel)
	assert.True(t, c.OnlineOnly)
	assert.Equal(t, 3, matching.ActiveFilterCount(c))
}

func TestSetFilterMsg_UnknownLevelMeansAny(t *testing.T) {
	_, msg, err := ParseClientMessage([]byte(`{"type":"set_filter","experience_level":"wizard"}`))
	require.NoError(t, err)

	c := msg.(SetFilterMsg).Criteria()
	assert.Equal(t, matching.LevelAny, c.ExperienceLevel)
	assert.Equal(t, 0, matching.ActiveFilterCount(c))
}

func TestParseClientMessage_Decide(t *testing.T) {
	msgType, msg, err := ParseClientMessage([]byte(`{"type":"decide","candidate_id":"sarah","decision":"super_like"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeDecide, msgType)
	assert.Equal(t, DecideMsg{Type: TypeDecide, CandidateID: "sarah", Decision: "super_like"}, msg)
}

func TestParseClientMessage_ChallengeAndChat(t *testing.T) {
	cases := map[string]struct {
		input string
		want  interface{}
	}{
		TypeChallengeSubmit: {
			`{"type":"challenge_submit","challenge_id":"two-sum"}`,
			ChallengeSubmitMsg{Type: TypeChallengeSubmit, ChallengeID: "two-sum"},
		},
		TypeChatMessage: {
			`{"type":"chat_message","partner_id":"alex","text":"hi!"}`,
			ChatMessageMsg{Type: TypeChatMessage, PartnerID: "alex", Text: "hi!"},
		},
		TypeChatHistory: {
			`{"type":"chat_history","partner_id":"alex"}`,
			ChatHistoryMsg{Type: TypeChatHistory, PartnerID: "alex"},
		},
	}
	for typ, tc := range cases {
		t.Run(typ, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			require.NoError(t, err)
			assert.Equal(t, typ, msgType)
			assert.Equal(t, tc.want, msg)
		})
	}
}

func TestNewServerMessage_ChatMessage(t *testing.T) {
	data, err := NewServerMessage(TypeChatMessage, ChatMessageOutMsg{
		Message: ChatLine{ID: "m1", ConversationID: "alex:sarah", From: "sarah", To: "alex", Text: "hi"},
	})
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, TypeChatMessage, m["type"])
	assert.Equal(t, false, m["mine"])
	line := m["message"].(map[string]interface{})
	assert.Equal(t, "alex:sarah", line["conversation_id"])
	assert.Equal(t, "hi", line["text"])
}

func TestParseClientMessage_Bare(t *testing.T) {
	cases := map[string]interface{}{
		TypeResetFilter:        ResetFilterMsg{Type: TypeResetFilter},
		TypeNotificationsRead:  NotificationsReadMsg{Type: TypeNotificationsRead},
		TypeNotificationsClear: NotificationsClearMsg{Type: TypeNotificationsClear},
		TypePing:               PingMsg{Type: TypePing},
	}
	for typ, want := range cases {
		t.Run(typ, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(`{"type":"` + typ + `"}`))
			require.NoError(t, err)
			assert.Equal(t, typ, msgType)
			assert.Equal(t, want, msg)
		})
	}
}

func TestParseClientMessage_Errors(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		msgType, _, err := ParseClientMessage([]byte(`{"type":"find_match"}`))
		assert.ErrorIs(t, err, ErrUnknownType)
		assert.Equal(t, "find_match", msgType)
	})

	t.Run("server type", func(t *testing.T) {
		_, _, err := ParseClientMessage([]byte(`{"type":"candidate"}`))
		assert.ErrorIs(t, err, ErrUnknownType)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, _, err := ParseClientMessage([]byte(`{not json}`))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnknownType)
	})

	t.Run("missing type", func(t *testing.T) {
		_, _, err := ParseClientMessage([]byte(`{"candidate_id":"sarah"}`))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnknownType)
	})

	t.Run("bad payload", func(t *testing.T) {
		msgType, _, err := ParseClientMessage([]byte(`{"type":"set_filter","skills":"react"}`))
		require.Error(t, err)
		assert.Equal(t, TypeSetFilter, msgType)
		assert.NotErrorIs(t, err, ErrUnknownType)
	})
}

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypeCandidate, CandidateMsg{
		Type:      "ignored",
		Candidate: matching.Candidate{ID: "maria", Name: "Maria Garcia", Skills: []string{"Go"}, ExperienceYears: 7},
		Position:  2,
		Total:     5,
	})
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, TypeCandidate, m["type"])
	assert.EqualValues(t, 2, m["position"])
	assert.EqualValues(t, 5, m["total"])
	cand := m["candidate"].(map[string]interface{})
	assert.Equal(t, "maria", cand["id"])
	assert.EqualValues(t, 7, cand["experience_years"])
}

func TestNewServerMessage_QueueState(t *testing.T) {
	crit := matching.FilterCriteria{Skills: []string{"react"}, ExperienceLevel: matching.LevelJunior}
	data, err := NewServerMessage(TypeQueueState, QueueStateMsg{
		Criteria:      crit,
		ActiveFilters: matching.ActiveFilterCount(crit),
		Total:         0,
		SourceTotal:   6,
		Exhausted:     true,
		Reason:        "no_candidates",
	})
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, TypeQueueState, m["type"])
	assert.Equal(t, true, m["exhausted"])
	assert.Equal(t, "no_candidates", m["reason"])
	assert.EqualValues(t, 2, m["active_filters"])
	assert.Equal(t, "junior", m["criteria"].(map[string]interface{})["experience_level"])
}

func TestNewServerMessage_Notifications(t *testing.T) {
	n := notification.NewMatch("Sarah Chen")
	data, err := NewServerMessage(TypeNotifications, NotificationsMsg{
		Items:  []notification.Notification{n},
		Unread: 1,
	})
	require.NoError(t, err)

	var m struct {
		Type   string                      `json:"type"`
		Items  []notification.Notification `json:"items"`
		Unread int                         `json:"unread"`
	}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, TypeNotifications, m.Type)
	assert.Equal(t, 1, m.Unread)
	require.Len(t, m.Items, 1)
	assert.Equal(t, n.ID, m.Items[0].ID)
	assert.Equal(t, "New Match!", m.Items[0].Title)
}

func TestNewServerMessage_Error(t *testing.T) {
	data, err := NewServerMessage(TypeError, ErrorMsg{Code: CodeStaleDecision, Message: "candidate is not in focus"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","code":"stale_decision","message":"candidate is not in focus"}`, string(data))
}

func TestNewServerMessage_Unmarshalable(t *testing.T) {
	_, err := NewServerMessage(TypePong, map[string]interface{}{"bad": make(chan int)})
	assert.Error(t, err)
}
