package database

import (
	"database/sql"
	"time"

	"github.com/localsonly/localsbot/internal/schema"
)

// CommunityStatus is the lifecycle state of a community. The only allowed
// transition is SETUP -> READY, enforced by MarkCommunityReady.
type CommunityStatus string

const (
	StatusSetup CommunityStatus = "SETUP"
	StatusReady CommunityStatus = "READY"
)

// Community represents a group chat the bot has been added to.
type Community struct {
	ID        string          `db:"id"`
	ChatID    int64           `db:"chat_id"`
	Name      string          `db:"name"`
	Language  string          `db:"language"`
	Status    CommunityStatus `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`

	ItemHashtag    string `db:"item_hashtag"`
	ServiceHashtag string `db:"service_hashtag"`
	EventHashtag   string `db:"event_hashtag"`
	NewsHashtag    string `db:"news_hashtag"`

	Latitude  sql.NullFloat64 `db:"latitude"`
	Longitude sql.NullFloat64 `db:"longitude"`
}

// Hashtags returns the per-kind hashtag configuration of the community.
// The returned strings include the leading '#'.
func (c *Community) Hashtags() map[schema.Kind]string {
	return map[schema.Kind]string{
		schema.KindItem:    c.ItemHashtag,
		schema.KindService: c.ServiceHashtag,
		schema.KindEvent:   c.EventHashtag,
		schema.KindNews:    c.NewsHashtag,
	}
}

// User represents a person known to the bot. ID is the Telegram user ID.
// NotificationChatID is the private chat the bot may notify the user in;
// it stays unset until the user has talked to the bot privately.
type User struct {
	ID                   int64         `db:"id"`
	NotificationChatID   sql.NullInt64 `db:"notification_chat_id"`
	NotificationsEnabled bool          `db:"notifications_enabled"`
	CreatedAt            time.Time     `db:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at"`
}

// Entity is a published post of any kind. Price, Currency and OccursAt are
// only meaningful for the kinds that define them; MediaGroupID is null for
// posts without images.
type Entity struct {
	ID           string         `db:"id"`
	Title        string         `db:"title"`
	Category     string         `db:"category"`
	Description  string         `db:"description"`
	Author       string         `db:"author"`
	UserID       int64          `db:"user_id"`
	CommunityID  string         `db:"community_id"`
	MessageID    int64          `db:"message_id"`
	MediaGroupID sql.NullString `db:"media_group_id"`
	PublishedAt  time.Time      `db:"published_at"`

	Price    sql.NullFloat64 `db:"price"`
	Currency sql.NullString  `db:"currency"`
	OccursAt sql.NullTime    `db:"occurs_at"`
}

// MediaGroup correlates the images of one post. ID doubles as the external
// message-group key when the platform provided one.
type MediaGroup struct {
	ID          string    `db:"id"`
	CommunityID string    `db:"community_id"`
	CreatedAt   time.Time `db:"created_at"`

	Images []string `db:"-"`
}
