package audit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failSink struct{}

func (failSink) Emit(ctx context.Context, rec Record) error {
	return errors.New("unreachable")
}

type sentMessage struct {
	channel string
	text    string
}

type fakeSender struct {
	sent []sentMessage
}

func (f *fakeSender) SendMessage(ctx context.Context, channelID, text string) error {
	f.sent = append(f.sent, sentMessage{channel: channelID, text: text})
	return nil
}

func TestRecordStamp(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := Record{CommunityID: "guild-1"}
	rec.Stamp(now)
	assert.NotEmpty(rec.ID)
	assert.Equal(now, rec.At)

	id := rec.ID
	rec.Stamp(now.Add(time.Hour))
	assert.Equal(id, rec.ID)
	assert.Equal(now, rec.At)
}

func TestSummary(t *testing.T) {
	assert := assert.New(t)

	rec := Record{
		Detector: "anti_spam",
		Outcome:  OutcomeFailed,
		Action:   "timeout",
		UserID:   "user-1",
		Reason:   "message flood",
		Error:    "permission denied",
		Details:  map[string]string{"count": "6", "burst": "yes"},
	}
	s := rec.Summary()
	assert.True(strings.HasPrefix(s, "[anti_spam] failed timeout user=user-1"))
	assert.Contains(s, "reason: message flood")
	assert.Contains(s, "error: permission denied")
	assert.Less(strings.Index(s, "burst: yes"), strings.Index(s, "count: 6"))
}

func TestMultiSink(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mem := &MemSink{}
	multi := MultiSink{failSink{}, mem}
	err := multi.Emit(ctx, Record{Detector: "word_filter"})
	assert.Error(err)
	assert.Len(mem.Snapshot(""), 1, "later sinks still receive records")
}

func TestChannelSink(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	sender := &fakeSender{}
	sink := &ChannelSink{
		Sender: sender,
		ChannelFor: func(ctx context.Context, communityID string) string {
			if communityID == "guild-1" {
				return "chan-logs"
			}
			return ""
		},
	}
	assert.NoError(sink.Emit(ctx, Record{CommunityID: "guild-1", Detector: "anti_raid", Outcome: OutcomeApplied}))
	assert.NoError(sink.Emit(ctx, Record{CommunityID: "guild-2", Detector: "anti_raid", Outcome: OutcomeApplied}))
	require.Len(t, sender.sent, 1)
	assert.Equal("chan-logs", sender.sent[0].channel)
	assert.Contains(sender.sent[0].text, "[anti_raid] applied")
}

func TestLimitedSink(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	mem := &MemSink{}
	sink := NewLimitedSink(mem, time.Minute, 3)
	for i := 0; i < 10; i++ {
		assert.NoError(sink.Emit(ctx, Record{CommunityID: "guild-1", Detector: "anti_raid"}))
	}
	assert.NoError(sink.Emit(ctx, Record{CommunityID: "guild-2", Detector: "anti_raid"}))
	assert.Len(mem.Snapshot(""), 4)
}

func TestSlackSink(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	sink := &SlackSink{WebhookURL: srv.URL}
	assert.NoError(sink.Emit(ctx, Record{CommunityID: "guild-1", Detector: "link_filter", Outcome: OutcomeApplied}))
	assert.Contains(got, "guild-1")
	assert.Contains(got, "[link_filter] applied")

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	sink.WebhookURL = bad.URL
	assert.Error(sink.Emit(ctx, Record{CommunityID: "guild-1"}))
}
