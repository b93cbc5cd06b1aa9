package media

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-telegram/bot/models"

	"github.com/localsonly/localsbot/internal/database"
)

type fakeStore struct {
	database.Store
	groups map[string]*database.MediaGroup
}

func newGroupStore() *fakeStore {
	return &fakeStore{groups: make(map[string]*database.MediaGroup)}
}

func (f *fakeStore) CreateMediaGroup(_ context.Context, id, communityID string) error {
	if _, ok := f.groups[id]; !ok {
		f.groups[id] = &database.MediaGroup{ID: id, CommunityID: communityID}
	}
	return nil
}

func (f *fakeStore) GetMediaGroup(_ context.Context, id string) (*database.MediaGroup, error) {
	return f.groups[id], nil
}

func (f *fakeStore) AppendMediaImage(_ context.Context, groupID, imageURL string) (bool, error) {
	group, ok := f.groups[groupID]
	if !ok {
		return false, nil
	}
	group.Images = append(group.Images, imageURL)
	return true, nil
}

type fakeObjects struct {
	uploads []string
	deletes []string
}

func (f *fakeObjects) Upload(_ context.Context, objectPath string, _ []byte, _ string) (string, error) {
	f.uploads = append(f.uploads, objectPath)
	return "https://storage.example.com/" + objectPath, nil
}

func (f *fakeObjects) Exists(_ context.Context, _ string) (bool, error) { return true, nil }

func (f *fakeObjects) Delete(_ context.Context, objectPath string) error {
	f.deletes = append(f.deletes, objectPath)
	return nil
}

func (f *fakeObjects) PathFromURL(url string) (string, bool) {
	return strings.TrimPrefix(url, "https://storage.example.com/"), true
}

func testCorrelator(store database.Store, objects ObjectStore) (*Correlator, *int) {
	fetches := 0
	c := &Correlator{
		store:   store,
		objects: objects,
		fetch: func(_ context.Context, _ string) ([]byte, string, error) {
			fetches++
			return []byte{0xFF, 0xD8, 0xFF}, "image/jpeg", nil
		},
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return c, &fetches
}

func photoMessage(groupID, fileID string) *models.Message {
	return &models.Message{
		ID:           11,
		MediaGroupID: groupID,
		Photo: []models.PhotoSize{
			{FileID: fileID + "-thumb", Width: 90, Height: 90},
			{FileID: fileID, Width: 1280, Height: 960},
		},
	}
}

func TestHandleFragmentDiscardsOrphanThenAppendsAfterSeed(t *testing.T) {
	t.Parallel()

	store := newGroupStore()
	objects := &fakeObjects{}
	c, fetches := testCorrelator(store, objects)
	ctx := context.Background()

	// The fragment arrives before any message created its group.
	if err := c.HandleFragment(ctx, photoMessage("album-1", "f1")); err != nil {
		t.Fatalf("HandleFragment() returned error: %v", err)
	}
	if len(store.groups) != 0 {
		t.Fatal("orphan fragment must not create a media group")
	}
	if *fetches != 0 || len(objects.uploads) != 0 {
		t.Fatal("orphan fragment must not be downloaded or uploaded")
	}

	groupID, err := c.Seed(ctx, "c1", photoMessage("album-1", "f0"))
	if err != nil {
		t.Fatalf("Seed() returned error: %v", err)
	}
	if groupID != "album-1" {
		t.Fatalf("Seed() groupID = %q, want album-1", groupID)
	}

	// The same fragment is accepted once the group exists.
	if err := c.HandleFragment(ctx, photoMessage("album-1", "f1")); err != nil {
		t.Fatalf("HandleFragment() returned error: %v", err)
	}
	if got := len(store.groups["album-1"].Images); got != 2 {
		t.Fatalf("group has %d images, want 2 (seed + fragment)", got)
	}
}

func TestSeedMintsIdentifierForSinglePhoto(t *testing.T) {
	t.Parallel()

	store := newGroupStore()
	c, _ := testCorrelator(store, &fakeObjects{})

	groupID, err := c.Seed(context.Background(), "c1", photoMessage("", "f2"))
	if err != nil {
		t.Fatalf("Seed() returned error: %v", err)
	}
	if groupID == "" {
		t.Fatal("Seed() returned empty group ID for a photo message")
	}
	if store.groups[groupID] == nil {
		t.Fatalf("group %q was not created", groupID)
	}
	if got := store.groups[groupID].Images; len(got) != 1 {
		t.Fatalf("group has %d images, want 1", len(got))
	}
}

func TestSeedWithoutImageIsNoOp(t *testing.T) {
	t.Parallel()

	store := newGroupStore()
	c, fetches := testCorrelator(store, &fakeObjects{})

	groupID, err := c.Seed(context.Background(), "c1", &models.Message{ID: 3, Text: "plain text"})
	if err != nil {
		t.Fatalf("Seed() returned error: %v", err)
	}
	if groupID != "" {
		t.Errorf("Seed() = %q, want empty for a message without media", groupID)
	}
	if len(store.groups) != 0 || *fetches != 0 {
		t.Error("message without media must not touch the store or download anything")
	}
}

func TestAttachSkipsNonImageContent(t *testing.T) {
	t.Parallel()

	store := newGroupStore()
	objects := &fakeObjects{}
	c := &Correlator{
		store:   store,
		objects: objects,
		fetch: func(_ context.Context, _ string) ([]byte, string, error) {
			return []byte("%PDF-1.4"), "application/pdf", nil
		},
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	msg := &models.Message{
		ID:           12,
		MediaGroupID: "album-2",
		Document:     &models.Document{FileID: "d1", MimeType: "image/png"},
	}
	if err := store.CreateMediaGroup(context.Background(), "album-2", "c1"); err != nil {
		t.Fatal(err)
	}

	if err := c.HandleFragment(context.Background(), msg); err != nil {
		t.Fatalf("HandleFragment() returned error: %v", err)
	}
	if len(objects.uploads) != 0 {
		t.Error("content detected as non-image must not be uploaded")
	}
	if got := len(store.groups["album-2"].Images); got != 0 {
		t.Errorf("group has %d images, want 0", got)
	}
}

func TestImageFileID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		msg    *models.Message
		want   string
		wantOK bool
	}{
		{
			name:   "largest photo size wins",
			msg:    photoMessage("", "big"),
			want:   "big",
			wantOK: true,
		},
		{
			name:   "image document",
			msg:    &models.Message{Document: &models.Document{FileID: "doc1", MimeType: "image/png"}},
			want:   "doc1",
			wantOK: true,
		},
		{
			name: "non-image document",
			msg:  &models.Message{Document: &models.Document{FileID: "doc2", MimeType: "application/zip"}},
		},
		{
			name: "text only",
			msg:  &models.Message{Text: "hello"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ImageFileID(tc.msg)
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("ImageFileID() = (%q, %v), want (%q, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}
