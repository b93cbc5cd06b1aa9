package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/localsonly/localsbot/internal/database"
)

type fetchFunc func(ctx context.Context, fileID string) ([]byte, string, error)

// Correlator assembles media groups from image messages that may arrive in
// any order relative to the text message that triggered entity creation. It
// never creates a group from a bare follow-up image; the store's atomic
// append is the only synchronization point between concurrent deliveries.
type Correlator struct {
	store   database.Store
	objects ObjectStore
	fetch   fetchFunc
	log     *slog.Logger
}

// NewCorrelator creates a Correlator that downloads files through the given
// bot client and stores them in objects.
func NewCorrelator(store database.Store, objects ObjectStore, b *bot.Bot, token string, log *slog.Logger) *Correlator {
	return &Correlator{
		store:   store,
		objects: objects,
		fetch: func(ctx context.Context, fileID string) ([]byte, string, error) {
			return DownloadFile(ctx, b, token, fileID)
		},
		log: log.With("component", "media_correlator"),
	}
}

// Seed creates a media group for a hashtag message that carries its own
// image and attaches that image as the group's first entry. The group keeps
// the platform's media-group identifier when the message has one, so that
// trailing fragments of the same album can find it; single-photo messages
// get a fresh identifier. Returns empty when the message has no image.
//
// A failed attach still returns the group: the entity will reference a valid
// but empty group, which a later fragment or sweep resolves.
func (c *Correlator) Seed(ctx context.Context, communityID string, msg *models.Message) (string, error) {
	fileID, ok := ImageFileID(msg)
	if !ok {
		return "", nil
	}

	groupID := msg.MediaGroupID
	if groupID == "" {
		groupID = uuid.NewString()
	}

	if err := c.store.CreateMediaGroup(ctx, groupID, communityID); err != nil {
		return "", fmt.Errorf("failed to create media group: %w", err)
	}

	if err := c.attach(ctx, communityID, groupID, fileID); err != nil {
		c.log.WarnContext(ctx, "Failed to attach seed image",
			"media_group_id", groupID, "file_id", fileID, "error", err)
	}
	return groupID, nil
}

// HandleFragment processes an image message that shares a platform-assigned
// media-group identifier with an earlier message. The image is appended only
// when the group already exists; otherwise the fragment is discarded.
func (c *Correlator) HandleFragment(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.MediaGroupID == "" {
		return nil
	}
	fileID, ok := ImageFileID(msg)
	if !ok {
		return nil
	}

	group, err := c.store.GetMediaGroup(ctx, msg.MediaGroupID)
	if err != nil {
		return fmt.Errorf("failed to look up media group: %w", err)
	}
	if group == nil {
		c.log.DebugContext(ctx, "Discarding fragment without a media group",
			"media_group_id", msg.MediaGroupID, "file_id", fileID)
		return nil
	}

	return c.attach(ctx, group.CommunityID, group.ID, fileID)
}

func (c *Correlator) attach(ctx context.Context, communityID, groupID, fileID string) error {
	data, mimeType, err := c.fetch(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to fetch file %s: %w", fileID, err)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		c.log.WarnContext(ctx, "Skipping non-image file",
			"file_id", fileID, "mime_type", mimeType)
		return nil
	}

	objectPath := ObjectPath(communityID, fileID)
	url, err := c.objects.Upload(ctx, objectPath, data, mimeType)
	if err != nil {
		return fmt.Errorf("failed to upload image %s: %w", objectPath, err)
	}

	attached, err := c.store.AppendMediaImage(ctx, groupID, url)
	if err != nil {
		return fmt.Errorf("failed to append image to group %s: %w", groupID, err)
	}
	if !attached {
		// Group disappeared between lookup and append. Drop the object so
		// storage does not accumulate unreferenced images.
		if delErr := c.objects.Delete(ctx, objectPath); delErr != nil {
			c.log.WarnContext(ctx, "Failed to delete unattached image",
				"object_path", objectPath, "error", delErr)
		}
		c.log.DebugContext(ctx, "Media group gone, image discarded",
			"media_group_id", groupID, "file_id", fileID)
		return nil
	}

	c.log.InfoContext(ctx, "Image attached to media group",
		"media_group_id", groupID, "file_id", fileID, "url", url)
	return nil
}
