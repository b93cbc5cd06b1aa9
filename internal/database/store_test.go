package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/localsonly/localsbot/internal/schema"
)

// newTestStore opens a fresh migrated database in a temp directory.
func newTestStore(t *testing.T) Store {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMarkCommunityReadyTransitionsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	community, err := store.CreateCommunity(ctx, -1001, "Porto Folk", "en")
	if err != nil {
		t.Fatalf("CreateCommunity: %v", err)
	}
	if community.Status != StatusSetup {
		t.Fatalf("expected new community in %s, got %s", StatusSetup, community.Status)
	}

	if err := store.MarkCommunityReady(ctx, community.ID); err != nil {
		t.Fatalf("first MarkCommunityReady: %v", err)
	}

	got, err := store.GetCommunityByID(ctx, community.ID)
	if err != nil {
		t.Fatalf("GetCommunityByID: %v", err)
	}
	if got == nil || got.Status != StatusReady {
		t.Fatalf("expected community in %s, got %+v", StatusReady, got)
	}

	// The transition happens at most once; a ready community never goes back.
	err = store.MarkCommunityReady(ctx, community.ID)
	if !errors.Is(err, ErrCommunityNotSetup) {
		t.Errorf("second MarkCommunityReady: expected ErrCommunityNotSetup, got %v", err)
	}
	err = store.MarkCommunityReady(ctx, "missing")
	if !errors.Is(err, ErrCommunityNotSetup) {
		t.Errorf("unknown community: expected ErrCommunityNotSetup, got %v", err)
	}
}

func TestAddMembershipIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	community, err := store.CreateCommunity(ctx, -1002, "Porto Folk", "en")
	if err != nil {
		t.Fatalf("CreateCommunity: %v", err)
	}
	if err := store.BindNotificationChannel(ctx, 7, 700); err != nil {
		t.Fatalf("BindNotificationChannel: %v", err)
	}

	if err := store.AddMembership(ctx, 7, community.ID); err != nil {
		t.Fatalf("first AddMembership: %v", err)
	}
	if err := store.AddMembership(ctx, 7, community.ID); err != nil {
		t.Fatalf("second AddMembership: %v", err)
	}

	members, err := store.GetNotifiableMembers(ctx, community.ID)
	if err != nil {
		t.Fatalf("GetNotifiableMembers: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected one member after duplicate add, got %d", len(members))
	}

	user, err := store.GetUser(ctx, 7)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user == nil || !user.NotificationChatID.Valid || user.NotificationChatID.Int64 != 700 {
		t.Errorf("expected user bound to chat 700, got %+v", user)
	}
}

func TestDeleteEntityCascadesMedia(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	community, err := store.CreateCommunity(ctx, -1003, "Porto Folk", "en")
	if err != nil {
		t.Fatalf("CreateCommunity: %v", err)
	}

	if err := store.CreateMediaGroup(ctx, "g1", community.ID); err != nil {
		t.Fatalf("CreateMediaGroup: %v", err)
	}
	for _, url := range []string{"https://img/1.jpg", "https://img/2.jpg"} {
		attached, err := store.AppendMediaImage(ctx, "g1", url)
		if err != nil {
			t.Fatalf("AppendMediaImage(%s): %v", url, err)
		}
		if !attached {
			t.Fatalf("expected image %s attached to existing group", url)
		}
	}

	entity := &Entity{
		ID:           "e1",
		Title:        "Vintage Bicycle",
		Category:     "Sporting Goods",
		Description:  "Classic road bike",
		Author:       "Alice Smith",
		UserID:       7,
		CommunityID:  community.ID,
		MessageID:    42,
		MediaGroupID: sql.NullString{String: "g1", Valid: true},
	}
	if err := store.CreateEntity(ctx, schema.KindItem, entity); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	images, err := store.DeleteEntity(ctx, schema.KindItem, "e1")
	if err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if len(images) != 2 || images[0] != "https://img/1.jpg" || images[1] != "https://img/2.jpg" {
		t.Fatalf("expected deleted image URLs in order, got %v", images)
	}

	got, err := store.GetEntity(ctx, schema.KindItem, "e1")
	if err != nil {
		t.Fatalf("GetEntity after delete: %v", err)
	}
	if got != nil {
		t.Errorf("expected entity gone, got %+v", got)
	}

	group, err := store.GetMediaGroup(ctx, "g1")
	if err != nil {
		t.Fatalf("GetMediaGroup after delete: %v", err)
	}
	if group != nil {
		t.Errorf("expected media group cascade-deleted, got %+v", group)
	}

	_, err = store.DeleteEntity(ctx, schema.KindItem, "e1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("repeated delete: expected ErrNotFound, got %v", err)
	}
}
