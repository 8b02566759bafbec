package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/grovelab/grove/internal/core"
	"github.com/grovelab/grove/internal/domain"
)

func (ctl *Controller) handleJoin(cl *client, data []byte) {
	type joinPayload struct {
		Type string  `json:"type"`
		X    float64 `json:"x"`
		Y    float64 `json:"y"`
		Name string  `json:"name,omitempty"`
		Room string  `json:"room,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(cl.conn, "BAD_PAYLOAD")
		return
	}

	user := cl.user
	if p.Name != "" && len(p.Name) <= domain.MaxDisplayNameLen {
		user.DisplayName = p.Name
	}

	res, err := ctl.Orch.Join(cl.id, user, cl.token, p.X, p.Y, domain.RoomID(p.Room))
	switch {
	case errors.Is(err, core.ErrRoomNotFound):
		ctl.sendError(cl.conn, "ROOM_NOT_FOUND")
		return
	case errors.Is(err, core.ErrRoomFull):
		ctl.sendError(cl.conn, "ROOM_FULL")
		return
	case err != nil:
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cl.id)).Msg("join failed")
		ctl.sendError(cl.conn, "BAD_PAYLOAD")
		return
	}

	ctl.sendJSON(cl.conn, struct {
		Type    string                 `json:"type"`
		Room    domain.RoomID          `json:"room"`
		State   core.RoomActivityState `json:"state"`
		Members []domain.Presence      `json:"members"`
	}{"joined", res.Room, res.State, res.Members})
}

func (ctl *Controller) handleMove(cl *client, data []byte) {
	type movePayload struct {
		Type      string  `json:"type"`
		X         float64 `json:"x"`
		Y         float64 `json:"y"`
		Moving    bool    `json:"moving"`
		Direction string  `json:"direction"`
		Timestamp int64   `json:"ts"`
	}
	var p movePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad move payload")
		ctl.sendError(cl.conn, "BAD_PAYLOAD")
		return
	}
	ctl.Orch.Move(cl.id, p.X, p.Y, p.Moving, p.Direction, p.Timestamp)
}

func (ctl *Controller) handleChat(cl *client, data []byte) {
	type chatPayload struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Text == "" {
		ctl.sendError(cl.conn, "BAD_PAYLOAD")
		return
	}
	ctl.Orch.Chat(cl.id, p.Text)
}
