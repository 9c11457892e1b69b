package rooms

import (
	"context"
	"hedgedoc-server/core"
	"net/http"
	"sort"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	// LiveCounts reports current membership per room.
	LiveCounts interface {
		Snapshot() map[string]int
	}

	RoomInfo struct {
		ID         string `json:"id"`
		Users      int    `json:"users"`
		LastActive *int64 `json:"lastActive,omitempty"`
	}
)

// List merges live membership with persisted room activity. activity may be nil.
func List(ctx context.Context, live LiveCounts, activity core.RoomActivityStore) []RoomInfo {
	roomMap := make(map[string]*RoomInfo)
	for id, count := range live.Snapshot() {
		roomMap[id] = &RoomInfo{ID: id, Users: count}
	}

	if activity != nil {
		storedRooms, err := activity.ListRooms(ctx)
		if err != nil {
			logrus.WithError(err).Warn("failed to list rooms from store")
		}
		for _, room := range storedRooms {
			entry, exists := roomMap[room.ID]
			if !exists {
				entry = &RoomInfo{ID: room.ID}
				roomMap[room.ID] = entry
			}
			if room.LastActive > 0 {
				lastActive := room.LastActive
				entry.LastActive = &lastActive
			}
		}
	}

	roomList := make([]RoomInfo, 0, len(roomMap))
	for _, entry := range roomMap {
		roomList = append(roomList, *entry)
	}

	sort.Slice(roomList, func(i, j int) bool {
		if roomList[i].Users != roomList[j].Users {
			return roomList[i].Users > roomList[j].Users
		}
		li, lj := lastActive(roomList[i]), lastActive(roomList[j])
		if li != lj {
			return li > lj
		}
		return roomList[i].ID < roomList[j].ID
	})
	return roomList
}

func lastActive(room RoomInfo) int64 {
	if room.LastActive == nil {
		return 0
	}
	return *room.LastActive
}

func HandleList(live LiveCounts, activity core.RoomActivityStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, List(r.Context(), live, activity))
	}
}
