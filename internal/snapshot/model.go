package snapshot

import "time"

// RoomSnapshot is one row per room: the hub replaces it wholesale on
// every debounced save rather than appending a new row per update, so
// storage stays O(rooms) instead of O(updates).
type RoomSnapshot struct {
	Room      string `gorm:"type:varchar(255);primaryKey"`
	State     []byte `gorm:"type:bytea;not null"`
	UpdatedAt time.Time
}

func (RoomSnapshot) TableName() string {
	return "room_snapshots"
}
