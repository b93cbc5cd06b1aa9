package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/go-telegram/bot/models"

	"github.com/localsonly/localsbot/internal/database"
	"github.com/localsonly/localsbot/internal/i18n"
	"github.com/localsonly/localsbot/internal/router"
	"github.com/localsonly/localsbot/internal/schema"
)

type fakeStore struct {
	database.Store
	community     *database.Community
	createdCalls  []string // languages passed to CreateCommunity
	readyMarked   []string
	memberships   map[int64][]string
	ensuredUsers  []int64
	boundChannels map[int64]int64
}

func newHandlerStore(community *database.Community) *fakeStore {
	return &fakeStore{
		community:     community,
		memberships:   make(map[int64][]string),
		boundChannels: make(map[int64]int64),
	}
}

func (f *fakeStore) GetCommunityByChatID(_ context.Context, _ int64) (*database.Community, error) {
	return f.community, nil
}

func (f *fakeStore) CreateCommunity(_ context.Context, chatID int64, name, language string) (*database.Community, error) {
	f.createdCalls = append(f.createdCalls, language)
	created := &database.Community{ID: "new", ChatID: chatID, Name: name, Language: language, Status: database.StatusSetup}
	f.community = created
	return created, nil
}

func (f *fakeStore) MarkCommunityReady(_ context.Context, communityID string) error {
	f.readyMarked = append(f.readyMarked, communityID)
	return nil
}

func (f *fakeStore) AddMembership(_ context.Context, userID int64, communityID string) error {
	f.memberships[userID] = append(f.memberships[userID], communityID)
	return nil
}

func (f *fakeStore) EnsureUser(_ context.Context, userID int64) error {
	f.ensuredUsers = append(f.ensuredUsers, userID)
	return nil
}

func (f *fakeStore) BindNotificationChannel(_ context.Context, userID, chatID int64) error {
	f.boundChannels[userID] = chatID
	return nil
}

type fakeRouter struct {
	match *router.Match
}

func (f *fakeRouter) Route(_ context.Context, _ *database.Community, _ *models.Message) (*router.Match, error) {
	return f.match, nil
}

type fakeIngestor struct {
	calls []schema.Kind
}

func (f *fakeIngestor) Ingest(_ context.Context, _ *database.Community, _ *models.Message, kind schema.Kind, _ string) {
	f.calls = append(f.calls, kind)
}

type fakeFragments struct {
	calls []string
}

func (f *fakeFragments) HandleFragment(_ context.Context, msg *models.Message) error {
	f.calls = append(f.calls, msg.MediaGroupID)
	return nil
}

func testDeps(store *fakeStore, r *fakeRouter, ing *fakeIngestor, fr *fakeFragments) HandlerDeps {
	return HandlerDeps{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:      store,
		Router:     r,
		Ingestor:   ing,
		Correlator: fr,
	}
}

func supergroupMessage() *models.Message {
	return &models.Message{
		ID:   5,
		Text: "hello",
		Chat: models.Chat{ID: -1009, Type: models.ChatTypeSupergroup, Title: "Porto Folk"},
		From: &models.User{ID: 3, FirstName: "Ivan", LanguageCode: "ru-RU"},
	}
}

func TestGroupMessageBootstrapsCommunity(t *testing.T) {
	t.Parallel()

	store := newHandlerStore(nil)
	r := &fakeRouter{}
	ing := &fakeIngestor{}
	h := messageHandler{testDeps(store, r, ing, &fakeFragments{})}

	h.handleGroup(context.Background(), supergroupMessage())

	if len(store.createdCalls) != 1 {
		t.Fatalf("CreateCommunity called %d times, want 1", len(store.createdCalls))
	}
	if store.createdCalls[0] != i18n.LangRU {
		t.Errorf("community language = %q, want ru (from sender language code)", store.createdCalls[0])
	}
	if store.community.Name != "Porto Folk" {
		t.Errorf("community name = %q, want chat title", store.community.Name)
	}
	if len(ing.calls) != 0 {
		t.Error("bootstrap message must not reach ingestion")
	}
}

func TestGroupMessageRoutedToIngestion(t *testing.T) {
	t.Parallel()

	community := &database.Community{ID: "c1", Status: database.StatusReady, Language: "en"}
	store := newHandlerStore(community)
	r := &fakeRouter{match: &router.Match{Kind: schema.KindItem, Hashtag: "#item"}}
	ing := &fakeIngestor{}
	fr := &fakeFragments{}
	h := messageHandler{testDeps(store, r, ing, fr)}

	msg := supergroupMessage()
	msg.MediaGroupID = "album-1"
	h.handleGroup(context.Background(), msg)

	if len(ing.calls) != 1 || ing.calls[0] != schema.KindItem {
		t.Errorf("ingest calls = %v, want one item ingestion", ing.calls)
	}
	if len(fr.calls) != 0 {
		t.Error("matched message must not also be treated as a fragment")
	}
}

func TestGroupMessageUnmatchedFragmentGoesToCorrelator(t *testing.T) {
	t.Parallel()

	community := &database.Community{ID: "c1", Status: database.StatusReady, Language: "en"}
	store := newHandlerStore(community)
	fr := &fakeFragments{}
	h := messageHandler{testDeps(store, &fakeRouter{}, &fakeIngestor{}, fr)}

	msg := supergroupMessage()
	msg.Text = ""
	msg.MediaGroupID = "album-2"
	h.handleGroup(context.Background(), msg)

	if len(fr.calls) != 1 || fr.calls[0] != "album-2" {
		t.Errorf("fragment calls = %v, want [album-2]", fr.calls)
	}
}

func TestCreateCommunityFlow(t *testing.T) {
	t.Parallel()

	bundle := i18n.Resolve(i18n.LangEN)

	t.Run("promotes setup community and joins creator", func(t *testing.T) {
		t.Parallel()
		store := newHandlerStore(nil)
		h := messageHandler{testDeps(store, &fakeRouter{}, &fakeIngestor{}, &fakeFragments{})}
		community := &database.Community{ID: "c1", Status: database.StatusSetup}

		reply, err := h.createCommunity(context.Background(), bundle, community, -1009, 3)
		if err != nil {
			t.Fatalf("createCommunity() returned error: %v", err)
		}
		if reply != bundle.Get(i18n.KeyCommunityCreated) {
			t.Errorf("reply = %q, want community-created message", reply)
		}
		if len(store.readyMarked) != 1 || store.readyMarked[0] != "c1" {
			t.Errorf("readyMarked = %v, want [c1]", store.readyMarked)
		}
		if got := store.memberships[3]; len(got) != 1 || got[0] != "c1" {
			t.Errorf("creator memberships = %v, want [c1]", got)
		}
	})

	t.Run("ready community is left untouched", func(t *testing.T) {
		t.Parallel()
		store := newHandlerStore(nil)
		h := messageHandler{testDeps(store, &fakeRouter{}, &fakeIngestor{}, &fakeFragments{})}
		community := &database.Community{ID: "c1", Status: database.StatusReady}

		reply, err := h.createCommunity(context.Background(), bundle, community, -1009, 3)
		if err != nil {
			t.Fatalf("createCommunity() returned error: %v", err)
		}
		if reply != bundle.Get(i18n.KeyCommunityExists) {
			t.Errorf("reply = %q, want community-exists message", reply)
		}
		if len(store.readyMarked) != 0 {
			t.Error("ready community must not be re-transitioned")
		}
	})

	t.Run("missing community is created then promoted", func(t *testing.T) {
		t.Parallel()
		store := newHandlerStore(nil)
		h := messageHandler{testDeps(store, &fakeRouter{}, &fakeIngestor{}, &fakeFragments{})}

		reply, err := h.createCommunity(context.Background(), bundle, nil, -1009, 3)
		if err != nil {
			t.Fatalf("createCommunity() returned error: %v", err)
		}
		if reply != bundle.Get(i18n.KeyCommunityCreated) {
			t.Errorf("reply = %q, want community-created message", reply)
		}
		if len(store.createdCalls) != 1 {
			t.Errorf("CreateCommunity called %d times, want 1", len(store.createdCalls))
		}
		if len(store.readyMarked) != 1 {
			t.Errorf("readyMarked = %v, want one transition", store.readyMarked)
		}
	})
}

func TestBootstrapPrivateUser(t *testing.T) {
	t.Parallel()

	store := newHandlerStore(nil)
	deps := testDeps(store, &fakeRouter{}, &fakeIngestor{}, &fakeFragments{})
	msg := &models.Message{
		Chat: models.Chat{ID: 777, Type: models.ChatTypePrivate},
		From: &models.User{ID: 3},
	}

	if err := bootstrapPrivateUser(context.Background(), deps, msg); err != nil {
		t.Fatalf("bootstrapPrivateUser() returned error: %v", err)
	}
	if len(store.ensuredUsers) != 1 || store.ensuredUsers[0] != 3 {
		t.Errorf("ensuredUsers = %v, want [3]", store.ensuredUsers)
	}
	if store.boundChannels[3] != 777 {
		t.Errorf("bound channel = %d, want 777", store.boundChannels[3])
	}
}
