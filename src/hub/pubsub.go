package hub

import "github.com/orchestra-mcp/chatsync/src/types"

func (h *Hub) handleMessage(msg types.Message) {
	h.mu.RLock()
	_, live := h.clients[msg.ClientID]
	handler, ok := h.handlers[msg.Event]
	h.mu.RUnlock()

	if !live {
		h.logger.Debug().Str("client_id", msg.ClientID).Str("event", msg.Event).Msg("event from closed client, dropping")
		return
	}
	if !ok {
		h.logger.Debug().Str("event", msg.Event).Msg("no handler")
		return
	}
	if err := handler(msg.ClientID, msg); err != nil {
		h.logger.Warn().Err(err).Str("client_id", msg.ClientID).Str("event", msg.Event).Msg("handler error")
		h.sendError(msg.ClientID, msg.Event, err)
	}
}

// sendError reports a failed event to its originator only.
func (h *Hub) sendError(clientID, event string, err error) {
	frame, encErr := types.NewMessage(types.EventError, types.ErrorFrame{
		Event:   event,
		Code:    types.ErrorCode(err),
		Message: err.Error(),
	})
	if encErr != nil {
		return
	}
	h.SendToClient(clientID, frame)
}

func (h *Hub) handleJoin(clientID string, msg types.Message) error {
	var req types.RoomRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}
	if err := types.Required("roomId", req.RoomID); err != nil {
		return err
	}

	h.mu.Lock()
	joined := h.rooms.Join(clientID, req.RoomID)
	h.mu.Unlock()

	if joined {
		h.logger.Debug().Str("client_id", clientID).Str("room", req.RoomID).Msg("joined room")
	}
	return nil
}

func (h *Hub) handleLeave(clientID string, msg types.Message) error {
	var req types.RoomRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}
	if err := types.Required("roomId", req.RoomID); err != nil {
		return err
	}

	h.mu.Lock()
	left := h.rooms.Leave(clientID, req.RoomID)
	remaining := h.rooms.Size(req.RoomID)
	h.mu.Unlock()

	if left && remaining == 0 {
		h.closeRoom(req.RoomID)
	}
	return nil
}

func (h *Hub) handleReactionIntent(_ string, msg types.Message) error {
	var intent types.ReactionIntent
	if err := msg.Decode(&intent); err != nil {
		return err
	}
	return h.reactions.Relay(intent)
}

func (h *Hub) handleMusicSync(clientID string, msg types.Message) error {
	var action types.PlaybackAction
	if err := msg.Decode(&action); err != nil {
		return err
	}
	_, err := h.playback.Handle(clientID, action)
	return err
}

func (h *Hub) handlePing(clientID string, msg types.Message) error {
	pong := types.Message{Event: types.EventPong, Data: msg.Data, ClientID: clientID, Timestamp: msg.Timestamp}
	h.SendToClient(clientID, pong)
	return nil
}

// deliver sends msg to the local connections addressed by target and
// returns how many accepted it. Full or closed clients are skipped; there
// is no retry.
func (h *Hub) deliver(target types.Target, msg types.Message) int {
	h.mu.RLock()
	var recipients []*Client
	switch target.Scope {
	case types.ScopeAll:
		recipients = make([]*Client, 0, len(h.clients))
		for _, c := range h.clients {
			recipients = append(recipients, c)
		}
	case types.ScopeRoom:
		for _, id := range h.rooms.Members(target.Room) {
			if c, ok := h.clients[id]; ok {
				recipients = append(recipients, c)
			}
		}
	case types.ScopeUser:
		if id, ok := h.registry.Lookup(target.UserID); ok {
			if c, ok := h.clients[id]; ok {
				recipients = append(recipients, c)
			}
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range recipients {
		if c.ID == target.Except {
			continue
		}
		if !c.deliver(msg) {
			h.logger.Warn().Str("client_id", c.ID).Str("event", msg.Event).Msg("send buffer full or closed, dropping")
			continue
		}
		delivered++
	}
	return delivered
}

// publish delivers locally and forwards to the bridge if one is attached.
func (h *Hub) publish(target types.Target, msg types.Message) int {
	delivered := h.deliver(target, msg)
	h.publishToBridge(target, msg)
	return delivered
}

// publishToBridge forwards a message to the bridge if one is attached.
func (h *Hub) publishToBridge(target types.Target, msg types.Message) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(target, msg); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

// BroadcastToLocal delivers a message from the bridge to local connections
// only. It does not re-publish, preventing loops between instances.
func (h *Hub) BroadcastToLocal(target types.Target, msg types.Message) {
	h.deliver(target, msg)
}

// BroadcastAll sends msg to every connection, on every instance.
func (h *Hub) BroadcastAll(msg types.Message) {
	h.publish(types.All(), msg)
}

// BroadcastRoom sends msg to the members of room except one connection.
func (h *Hub) BroadcastRoom(room, except string, msg types.Message) {
	h.publish(types.Room(room, except), msg)
}

// SendToUser unicasts msg to the live connection of userID and reports
// whether a local connection accepted it. A user not connected here is
// looked up on the other instances through the bridge.
func (h *Hub) SendToUser(userID string, msg types.Message) bool {
	h.mu.RLock()
	_, local := h.registry.Lookup(userID)
	h.mu.RUnlock()

	if local {
		return h.deliver(types.User(userID), msg) > 0
	}
	h.publishToBridge(types.User(userID), msg)
	return false
}

// SendToClient sends a message directly to a specific connection.
func (h *Hub) SendToClient(clientID string, msg types.Message) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return client.deliver(msg)
}
