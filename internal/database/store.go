package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/localsonly/localsbot/internal/schema"
)

// ErrCommunityNotSetup is returned by MarkCommunityReady when the community
// does not exist or has already left the SETUP state. The SETUP -> READY
// transition happens at most once.
var ErrCommunityNotSetup = errors.New("community is not in setup state")

// ErrNotFound is returned by lookups and owner-scoped mutations when no row
// matches.
var ErrNotFound = errors.New("not found")

// Default per-kind hashtags assigned to newly created communities.
const (
	DefaultItemHashtag    = "#item"
	DefaultServiceHashtag = "#service"
	DefaultEventHashtag   = "#event"
	DefaultNewsHashtag    = "#news"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetCommunityByChatID retrieves a community by its bound chat ID.
	// Returns nil, nil if not found.
	GetCommunityByChatID(ctx context.Context, chatID int64) (*Community, error)

	// GetCommunityByID retrieves a community by identifier. Returns nil, nil if not found.
	GetCommunityByID(ctx context.Context, id string) (*Community, error)

	// CreateCommunity inserts a new community in SETUP state with default hashtags.
	CreateCommunity(ctx context.Context, chatID int64, name, language string) (*Community, error)

	// MarkCommunityReady performs the one-time SETUP -> READY transition.
	// Returns ErrCommunityNotSetup if the community is missing or already READY.
	MarkCommunityReady(ctx context.Context, communityID string) error

	// UpdateCommunitySettings updates the configurable hashtags and geolocation.
	UpdateCommunitySettings(ctx context.Context, community *Community) error

	// GetUser retrieves a user by ID. Returns nil, nil if not found.
	GetUser(ctx context.Context, userID int64) (*User, error)

	// EnsureUser inserts the user if it does not exist yet.
	EnsureUser(ctx context.Context, userID int64) error

	// AddMembership registers a user as a community member. Adding an existing
	// member is a no-op.
	AddMembership(ctx context.Context, userID int64, communityID string) error

	// BindNotificationChannel stores the private chat used for notifications
	// and enables them for the user.
	BindNotificationChannel(ctx context.Context, userID, chatID int64) error

	// GetNotifiableMembers returns community members with notifications
	// enabled and a bound notification channel.
	GetNotifiableMembers(ctx context.Context, communityID string) ([]User, error)

	// CreateEntity inserts a new entity into the collection of its kind.
	CreateEntity(ctx context.Context, kind schema.Kind, entity *Entity) error

	// GetEntity retrieves an entity by ID. Returns nil, nil if not found.
	GetEntity(ctx context.Context, kind schema.Kind, id string) (*Entity, error)

	// ListEntities returns all entities of a kind in a community, newest first.
	ListEntities(ctx context.Context, kind schema.Kind, communityID string) ([]Entity, error)

	// UpdateEntityContent atomically updates the editable fields of an entity
	// owned by userID. Returns ErrNotFound when no matching row exists.
	UpdateEntityContent(ctx context.Context, kind schema.Kind, id string, userID int64, title, category, description string) error

	// DeleteEntity removes an entity and cascades its media group. It returns
	// the deleted image references so callers can clean up object storage.
	// Returns ErrNotFound when the entity does not exist.
	DeleteEntity(ctx context.Context, kind schema.Kind, id string) ([]string, error)

	// DistinctCategories returns the categories already used by entities of a
	// kind within a community.
	DistinctCategories(ctx context.Context, kind schema.Kind, communityID string) ([]string, error)

	// CreateMediaGroup inserts a media group if it does not exist yet.
	CreateMediaGroup(ctx context.Context, id, communityID string) error

	// AppendMediaImage atomically appends an image to an existing media group.
	// It reports false when the group does not exist; no orphan group is
	// created for a bare follow-up image.
	AppendMediaImage(ctx context.Context, groupID, imageURL string) (bool, error)

	// GetMediaGroup retrieves a media group with its ordered images.
	// Returns nil, nil if not found.
	GetMediaGroup(ctx context.Context, id string) (*MediaGroup, error)

	// SweepOrphanMediaGroups deletes media groups older than cutoff that no
	// entity references, returning the image references of the removed groups.
	SweepOrphanMediaGroups(ctx context.Context, cutoff time.Time) ([]string, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// entityTables maps content kinds to their collections.
var entityTables = map[schema.Kind]string{
	schema.KindItem:    "items",
	schema.KindService: "services",
	schema.KindEvent:   "events",
	schema.KindNews:    "news",
}

func tableFor(kind schema.Kind) (string, error) {
	table, ok := entityTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown content kind %q", kind)
	}
	return table, nil
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) GetCommunityByChatID(ctx context.Context, chatID int64) (*Community, error) {
	var community Community
	err := s.db.GetContext(ctx, &community, `SELECT * FROM communities WHERE chat_id = ?;`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get community for chat %d: %w", chatID, err)
	}
	return &community, nil
}

func (s *sqlxStore) GetCommunityByID(ctx context.Context, id string) (*Community, error) {
	var community Community
	err := s.db.GetContext(ctx, &community, `SELECT * FROM communities WHERE id = ?;`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get community %s: %w", id, err)
	}
	return &community, nil
}

func (s *sqlxStore) CreateCommunity(ctx context.Context, chatID int64, name, language string) (*Community, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("community must have a non-zero chat_id")
	}

	now := time.Now().UTC()
	community := &Community{
		ID:             uuid.NewString(),
		ChatID:         chatID,
		Name:           name,
		Language:       language,
		Status:         StatusSetup,
		CreatedAt:      now,
		UpdatedAt:      now,
		ItemHashtag:    DefaultItemHashtag,
		ServiceHashtag: DefaultServiceHashtag,
		EventHashtag:   DefaultEventHashtag,
		NewsHashtag:    DefaultNewsHashtag,
	}

	query := `
        INSERT INTO communities (id, chat_id, name, language, status, created_at, updated_at,
                                 item_hashtag, service_hashtag, event_hashtag, news_hashtag,
                                 latitude, longitude)
        VALUES (:id, :chat_id, :name, :language, :status, :created_at, :updated_at,
                :item_hashtag, :service_hashtag, :event_hashtag, :news_hashtag,
                :latitude, :longitude);
    `
	if _, err := s.db.NamedExecContext(ctx, query, community); err != nil {
		s.logger.ErrorContext(ctx, "Error creating community", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to create community for chat %d: %w", chatID, err)
	}

	s.logger.InfoContext(ctx, "Community created", "community_id", community.ID, "chat_id", chatID, "language", language)
	return community, nil
}

func (s *sqlxStore) MarkCommunityReady(ctx context.Context, communityID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE communities SET status = ?, updated_at = ? WHERE id = ? AND status = ?;`,
		StatusReady, time.Now().UTC(), communityID, StatusSetup)
	if err != nil {
		return fmt.Errorf("failed to mark community %s ready: %w", communityID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check community %s transition: %w", communityID, err)
	}
	if affected == 0 {
		return fmt.Errorf("community %s: %w", communityID, ErrCommunityNotSetup)
	}

	s.logger.InfoContext(ctx, "Community marked ready", "community_id", communityID)
	return nil
}

func (s *sqlxStore) UpdateCommunitySettings(ctx context.Context, community *Community) error {
	if community == nil {
		return fmt.Errorf("cannot update nil community")
	}
	community.UpdatedAt = time.Now().UTC()

	query := `
        UPDATE communities
        SET name = :name, language = :language,
            item_hashtag = :item_hashtag, service_hashtag = :service_hashtag,
            event_hashtag = :event_hashtag, news_hashtag = :news_hashtag,
            latitude = :latitude, longitude = :longitude,
            updated_at = :updated_at
        WHERE id = :id;
    `
	result, err := s.db.NamedExecContext(ctx, query, community)
	if err != nil {
		return fmt.Errorf("failed to update community %s: %w", community.ID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("community %s: %w", community.ID, ErrNotFound)
	}
	return nil
}

func (s *sqlxStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?;`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return &user, nil
}

func (s *sqlxStore) EnsureUser(ctx context.Context, userID int64) error {
	if userID == 0 {
		return fmt.Errorf("user must have a non-zero id")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, notifications_enabled, created_at, updated_at)
         VALUES (?, 1, ?, ?)
         ON CONFLICT (id) DO NOTHING;`,
		userID, now, now)
	if err != nil {
		return fmt.Errorf("failed to ensure user %d: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) AddMembership(ctx context.Context, userID int64, communityID string) error {
	if userID == 0 || communityID == "" {
		return fmt.Errorf("membership requires a user id and community id")
	}

	if err := s.EnsureUser(ctx, userID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (user_id, community_id, created_at)
         VALUES (?, ?, ?)
         ON CONFLICT (user_id, community_id) DO NOTHING;`,
		userID, communityID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add user %d to community %s: %w", userID, communityID, err)
	}
	return nil
}

func (s *sqlxStore) BindNotificationChannel(ctx context.Context, userID, chatID int64) error {
	if err := s.EnsureUser(ctx, userID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET notification_chat_id = ?, notifications_enabled = 1, updated_at = ? WHERE id = ?;`,
		chatID, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to bind notification channel for user %d: %w", userID, err)
	}
	return nil
}

func (s *sqlxStore) GetNotifiableMembers(ctx context.Context, communityID string) ([]User, error) {
	var users []User
	query := `
        SELECT u.*
        FROM users u
        JOIN memberships m ON m.user_id = u.id
        WHERE m.community_id = ?
          AND u.notifications_enabled = 1
          AND u.notification_chat_id IS NOT NULL
        ORDER BY u.id;
    `
	if err := s.db.SelectContext(ctx, &users, query, communityID); err != nil {
		return nil, fmt.Errorf("failed to list notifiable members of community %s: %w", communityID, err)
	}
	return users, nil
}

func (s *sqlxStore) CreateEntity(ctx context.Context, kind schema.Kind, entity *Entity) error {
	if entity == nil {
		return fmt.Errorf("cannot save nil entity")
	}
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if entity.CommunityID == "" {
		return fmt.Errorf("entity must belong to a community")
	}
	if entity.PublishedAt.IsZero() {
		entity.PublishedAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (id, title, category, description, author, user_id, community_id,
                        message_id, media_group_id, published_at, price, currency, occurs_at)
        VALUES (:id, :title, :category, :description, :author, :user_id, :community_id,
                :message_id, :media_group_id, :published_at, :price, :currency, :occurs_at);
    `, table)

	if _, err := s.db.NamedExecContext(ctx, query, entity); err != nil {
		s.logger.ErrorContext(ctx, "Error saving entity", "kind", kind, "community_id", entity.CommunityID, "error", err)
		return fmt.Errorf("failed to save %s in community %s: %w", kind, entity.CommunityID, err)
	}

	s.logger.DebugContext(ctx, "Entity saved", "kind", kind, "entity_id", entity.ID, "community_id", entity.CommunityID)
	return nil
}

func (s *sqlxStore) GetEntity(ctx context.Context, kind schema.Kind, id string) (*Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var entity Entity
	err = s.db.GetContext(ctx, &entity, fmt.Sprintf(`SELECT * FROM %s WHERE id = ?;`, table), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	return &entity, nil
}

func (s *sqlxStore) ListEntities(ctx context.Context, kind schema.Kind, communityID string) ([]Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var entities []Entity
	query := fmt.Sprintf(`SELECT * FROM %s WHERE community_id = ? ORDER BY published_at DESC;`, table)
	if err := s.db.SelectContext(ctx, &entities, query, communityID); err != nil {
		return nil, fmt.Errorf("failed to list %s in community %s: %w", kind, communityID, err)
	}
	return entities, nil
}

func (s *sqlxStore) UpdateEntityContent(ctx context.Context, kind schema.Kind, id string, userID int64, title, category, description string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
        UPDATE %s SET title = ?, category = ?, description = ?
        WHERE id = ? AND user_id = ?;
    `, table)

	result, err := s.db.ExecContext(ctx, query, title, category, description, id, userID)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", kind, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of %s %s: %w", kind, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s for user %d: %w", kind, id, userID, ErrNotFound)
	}
	return nil
}

func (s *sqlxStore) DeleteEntity(ctx context.Context, kind schema.Kind, id string) ([]string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for deleting %s %s: %w", kind, id, err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	var mediaGroupID sql.NullString
	err = tx.GetContext(ctx, &mediaGroupID, fmt.Sprintf(`SELECT media_group_id FROM %s WHERE id = ?;`, table), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up %s %s: %w", kind, id, err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?;`, table), id); err != nil {
		return nil, fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}

	var images []string
	if mediaGroupID.Valid {
		if err := tx.SelectContext(ctx, &images,
			`SELECT url FROM media_images WHERE media_group_id = ? ORDER BY position;`, mediaGroupID.String); err != nil {
			return nil, fmt.Errorf("failed to list images of media group %s: %w", mediaGroupID.String, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM media_images WHERE media_group_id = ?;`, mediaGroupID.String); err != nil {
			return nil, fmt.Errorf("failed to delete images of media group %s: %w", mediaGroupID.String, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM media_groups WHERE id = ?;`, mediaGroupID.String); err != nil {
			return nil, fmt.Errorf("failed to delete media group %s: %w", mediaGroupID.String, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deletion of %s %s: %w", kind, id, err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Entity deleted", "kind", kind, "entity_id", id, "cascaded_images", len(images))
	return images, nil
}

func (s *sqlxStore) DistinctCategories(ctx context.Context, kind schema.Kind, communityID string) ([]string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var categories []string
	query := fmt.Sprintf(`
        SELECT DISTINCT category FROM %s
        WHERE community_id = ? AND category != ''
        ORDER BY category;
    `, table)
	if err := s.db.SelectContext(ctx, &categories, query, communityID); err != nil {
		return nil, fmt.Errorf("failed to list %s categories in community %s: %w", kind, communityID, err)
	}
	return categories, nil
}

func (s *sqlxStore) CreateMediaGroup(ctx context.Context, id, communityID string) error {
	if id == "" || communityID == "" {
		return fmt.Errorf("media group requires an id and community id")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO media_groups (id, community_id, created_at)
         VALUES (?, ?, ?)
         ON CONFLICT (id) DO NOTHING;`,
		id, communityID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create media group %s: %w", id, err)
	}
	return nil
}

// AppendMediaImage relies on a transaction rather than process-level locking:
// concurrent fragment deliveries for the same group serialize on the store.
func (s *sqlxStore) AppendMediaImage(ctx context.Context, groupID, imageURL string) (bool, error) {
	if groupID == "" || imageURL == "" {
		return false, fmt.Errorf("media image requires a group id and url")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction for media group %s: %w", groupID, err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM media_groups WHERE id = ?);`, groupID); err != nil {
		return false, fmt.Errorf("failed to check media group %s: %w", groupID, err)
	}
	if !exists {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO media_images (media_group_id, position, url)
         SELECT ?, COALESCE(MAX(position), 0) + 1, ?
         FROM media_images WHERE media_group_id = ?;`,
		groupID, imageURL, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to append image to media group %s: %w", groupID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit image append to media group %s: %w", groupID, err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Image appended to media group", "media_group_id", groupID)
	return true, nil
}

func (s *sqlxStore) GetMediaGroup(ctx context.Context, id string) (*MediaGroup, error) {
	var group MediaGroup
	err := s.db.GetContext(ctx, &group, `SELECT * FROM media_groups WHERE id = ?;`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get media group %s: %w", id, err)
	}

	if err := s.db.SelectContext(ctx, &group.Images,
		`SELECT url FROM media_images WHERE media_group_id = ? ORDER BY position;`, id); err != nil {
		return nil, fmt.Errorf("failed to list images of media group %s: %w", id, err)
	}
	return &group, nil
}

func (s *sqlxStore) SweepOrphanMediaGroups(ctx context.Context, cutoff time.Time) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for media group sweep: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	orphanFilter := `
        created_at < ?
        AND id NOT IN (SELECT media_group_id FROM items WHERE media_group_id IS NOT NULL)
        AND id NOT IN (SELECT media_group_id FROM services WHERE media_group_id IS NOT NULL)
        AND id NOT IN (SELECT media_group_id FROM events WHERE media_group_id IS NOT NULL)
        AND id NOT IN (SELECT media_group_id FROM news WHERE media_group_id IS NOT NULL)
    `

	var images []string
	if err := tx.SelectContext(ctx, &images,
		`SELECT url FROM media_images WHERE media_group_id IN (SELECT id FROM media_groups WHERE `+orphanFilter+`);`,
		cutoff); err != nil {
		return nil, fmt.Errorf("failed to list orphan media images: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM media_images WHERE media_group_id IN (SELECT id FROM media_groups WHERE `+orphanFilter+`);`,
		cutoff); err != nil {
		return nil, fmt.Errorf("failed to delete orphan media images: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM media_groups WHERE `+orphanFilter+`;`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete orphan media groups: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit media group sweep: %w", err)
	}
	tx = nil

	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		s.logger.InfoContext(ctx, "Swept orphan media groups", "groups", affected, "images", len(images))
	}
	return images, nil
}

// RunSQLMaintenance performs database maintenance tasks like VACUUM.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Running SQL maintenance (VACUUM)")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("failed to run VACUUM: %w", err)
	}
	return nil
}
