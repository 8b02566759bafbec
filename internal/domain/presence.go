package domain

type ConnID string

// Presence is the live state of one connection inside a room.
// Created on join, updated on every movement message, dropped on
// disconnect.
type Presence struct {
	Conn      ConnID  `json:"conn"`
	User      User    `json:"user"`
	Room      RoomID  `json:"room"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction string  `json:"direction"`
	Moving    bool    `json:"moving"`
}
