package notify

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/localsonly/localsbot/internal/config"
	"github.com/localsonly/localsbot/internal/database"
	"github.com/localsonly/localsbot/internal/schema"
)

type fakeStore struct {
	database.Store
	members []database.User
}

func (f *fakeStore) GetNotifiableMembers(_ context.Context, _ string) ([]database.User, error) {
	return f.members, nil
}

type fakeSender struct {
	sent    []int64
	failFor map[int64]bool
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	chatID, _ := params.ChatID.(int64)
	if f.failFor[chatID] {
		return nil, errors.New("forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, chatID)
	return &models.Message{ID: 1}, nil
}

func members(n int) []database.User {
	out := make([]database.User, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, database.User{
			ID:                   int64(i + 1),
			NotificationChatID:   sql.NullInt64{Int64: int64(1000 + i), Valid: true},
			NotificationsEnabled: true,
		})
	}
	return out
}

func testNotifier(store database.Store, sender Sender) (*Notifier, *int) {
	pauses := 0
	n := New(store, sender, config.NotifyConfig{
		BatchSize:  config.DefaultNotifyBatchSize,
		BatchPause: config.DefaultNotifyBatchPause,
	}, "https://app.example.com", slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.pause = func(d time.Duration) {
		if d != config.DefaultNotifyBatchPause {
			panic("unexpected pause duration")
		}
		pauses++
	}
	return n, &pauses
}

func testEntity() *database.Entity {
	return &database.Entity{ID: "e1", Title: "Bike for sale", MessageID: 42, CommunityID: "c1"}
}

func TestFanOutBatching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		recipients int
		wantPauses int
	}{
		{name: "empty", recipients: 0, wantPauses: 0},
		{name: "single batch", recipients: 30, wantPauses: 0},
		{name: "one over", recipients: 31, wantPauses: 1},
		{name: "two full one partial", recipients: 65, wantPauses: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sender := &fakeSender{}
			n, pauses := testNotifier(&fakeStore{members: members(tc.recipients)}, sender)

			community := &database.Community{ID: "c1", Language: "en"}
			n.fanOut(context.Background(), community, schema.KindItem, testEntity())

			if len(sender.sent) != tc.recipients {
				t.Errorf("sent %d messages, want %d", len(sender.sent), tc.recipients)
			}
			if *pauses != tc.wantPauses {
				t.Errorf("paused %d times, want %d", *pauses, tc.wantPauses)
			}
		})
	}
}

func TestFanOutContinuesPastSendFailures(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{failFor: map[int64]bool{1000: true, 1010: true}}
	n, _ := testNotifier(&fakeStore{members: members(35)}, sender)

	n.fanOut(context.Background(), &database.Community{ID: "c1", Language: "en"}, schema.KindItem, testEntity())

	if len(sender.sent) != 33 {
		t.Errorf("sent %d messages, want 33 (two recipients failed)", len(sender.sent))
	}
}

func TestAnnounceSkipsEntitiesWithoutSourceMessage(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	n, _ := testNotifier(&fakeStore{members: members(3)}, sender)

	entity := testEntity()
	entity.MessageID = 0
	n.Announce(&database.Community{ID: "c1", Language: "en"}, schema.KindItem, entity)

	// Announce spawns nothing for privately submitted content, so there is
	// no goroutine to wait for.
	if len(sender.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(sender.sent))
	}
}
