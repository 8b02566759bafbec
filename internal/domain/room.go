package domain

type RoomID string

// Room is a capacity-bounded broadcast scope. Size is maintained by the
// allocator, which is the room's only owner.
type Room struct {
	ID       RoomID `json:"id"`
	Capacity int    `json:"capacity"`
	Size     int    `json:"size"`
}
