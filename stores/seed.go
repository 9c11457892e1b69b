package stores

import (
	"context"
	"hedgedoc-server/core"

	"github.com/sirupsen/logrus"
)

const (
	WelcomeRoomID = "welcome"
	welcomeTitle  = "Welcome to HedgeDoc Collaborative"
)

const welcomeContent = "# Welcome to HedgeDoc Collaborative! 🎉\n\n" +
	"This is a collaborative Markdown editor.\n\n" +
	"## Features ✨\n\n" +
	"- **Real-time collaboration**: Multiple users can edit the same document simultaneously\n" +
	"- **Live preview**: See your Markdown rendered in real-time\n" +
	"- **Auto-save**: Your changes are automatically saved to the database\n\n" +
	"## Getting Started 🚀\n\n" +
	"1. Start typing in the editor\n" +
	"2. Share the room ID with others to collaborate\n" +
	"3. Your changes are automatically saved!\n\n" +
	"Happy collaborating! 🎊"

// SeedWelcome creates the welcome document unless the welcome room already has one.
func SeedWelcome(ctx context.Context, store core.DocumentStore) (*core.Document, error) {
	existing, err := store.ListByRoom(ctx, WelcomeRoomID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	doc, err := store.Create(ctx, &core.Document{
		Title:   welcomeTitle,
		Content: welcomeContent,
		RoomID:  WelcomeRoomID,
	})
	if err != nil {
		return nil, err
	}
	logrus.WithField("document_id", doc.ID).Info("Seeded welcome document")
	return doc, nil
}
