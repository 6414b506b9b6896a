package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"poll-service/internal/models"
	"poll-service/internal/service"
	"poll-service/pkg/zap"
)

// requestTimeout bounds the persistence work behind one inbound frame.
const requestTimeout = 10 * time.Second

// Hub owns the socket-to-room membership table for this instance. Requests
// are dispatched from each client's read pump, so handling is sequential per
// connection and concurrent across connections; the table itself is the only
// shared state and sits behind an RWMutex.
type Hub struct {
	rooms      map[string]map[*Client]bool
	roomsMutex sync.RWMutex

	register   chan *Client
	unregister chan *Client

	pollService        service.PollService
	voteService        service.VoteService
	participantService service.ParticipantService

	log    zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(
	pollService service.PollService,
	voteService service.VoteService,
	participantService service.ParticipantService,
	log zap.Logger,
) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:              make(map[string]map[*Client]bool),
		register:           make(chan *Client, 100),
		unregister:         make(chan *Client, 100),
		pollService:        pollService,
		voteService:        voteService,
		participantService: participantService,
		log:                log,
		ctx:                ctx,
		cancel:             cancel,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			h.log.Info("hub shutting down")
			return
		case client := <-h.register:
			h.addToRoom(client)
		case client := <-h.unregister:
			h.handleClientUnregister(client)
		}
	}
}

func (h *Hub) Shutdown() {
	h.cancel()
}

func (h *Hub) addToRoom(client *Client) {
	h.roomsMutex.Lock()
	if _, ok := h.rooms[client.roomCode]; !ok {
		h.rooms[client.roomCode] = make(map[*Client]bool)
	}
	h.rooms[client.roomCode][client] = true
	h.roomsMutex.Unlock()

	h.log.Infof("connection %s joined room %s as %q", client.connID, client.roomCode, client.nickname)
}

func (h *Hub) handleClientUnregister(client *Client) {
	h.roomsMutex.Lock()
	if clients, ok := h.rooms[client.roomCode]; ok {
		if _, found := clients[client]; found {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, client.roomCode)
			}
		}
	}
	h.roomsMutex.Unlock()
	client.closeOnce.Do(func() { close(client.send) })

	// The registry decides whether anyone gets told; connections that never
	// joined produce no broadcast.
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := h.participantService.MarkDisconnected(ctx, client.connID); err != nil {
		h.log.Warnf("disconnect cleanup for %s: %v", client.connID, err)
	}
}

// EmitLocal delivers a marshaled event to every socket of room on this
// instance. It is the bus's local delivery half and runs for self-originated
// messages too, keeping the delivery path uniform.
func (h *Hub) EmitLocal(room string, payload []byte) {
	h.roomsMutex.RLock()
	defer h.roomsMutex.RUnlock()

	clients, ok := h.rooms[room]
	if !ok {
		return
	}

	var dead []*Client
	for client := range clients {
		select {
		case client.send <- payload:
		default:
			dead = append(dead, client)
		}
	}

	for _, client := range dead {
		go func(c *Client) {
			select {
			case h.unregister <- c:
			default:
			}
		}(client)
	}
}

// dispatch handles one inbound frame. Called from the read pump, so frames
// from one connection never interleave.
func (h *Hub) dispatch(client *Client, raw []byte) {
	var req models.ClientRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.sendAck(client, models.FailAck("", models.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, requestTimeout)
	defer cancel()

	switch req.Type {
	case models.RequestJoinRoom:
		h.handleJoin(ctx, client, req)
	case models.RequestSubmitVote:
		h.handleSubmitVote(ctx, client, req)
	case models.RequestChangePollState:
		h.handleChangeState(ctx, client, req)
	default:
		h.log.Warnf("unknown request type %q from %s", req.Type, client.connID)
		h.sendAck(client, models.FailAck(req.Type, models.ErrValidation))
	}
}

func (h *Hub) handleJoin(ctx context.Context, client *Client, req models.ClientRequest) {
	if client.joined {
		h.sendAck(client, models.FailAck(models.RequestJoinRoom, models.ErrValidation))
		return
	}

	result, err := h.participantService.Join(ctx, req.RoomCode, req.Nickname, client.connID)
	if err != nil {
		h.logFailure("join", err)
		h.sendAck(client, models.FailAck(models.RequestJoinRoom, err))
		return
	}

	client.roomCode = result.Poll.RoomCode
	client.nickname = result.Participant.Nickname
	client.joined = true
	h.register <- client

	ack := models.OkAck(models.RequestJoinRoom)
	ack.Poll = result.Poll
	h.sendAck(client, ack)
}

func (h *Hub) handleSubmitVote(ctx context.Context, client *Client, req models.ClientRequest) {
	if req.OptionIndex == nil {
		h.sendAck(client, models.FailAck(models.RequestSubmitVote, models.ErrValidation))
		return
	}

	tally, err := h.voteService.SubmitVote(ctx, req.RoomCode, req.Nickname, *req.OptionIndex)
	if err != nil {
		h.logFailure("submit-vote", err)
		h.sendAck(client, models.FailAck(models.RequestSubmitVote, err))
		return
	}

	ack := models.OkAck(models.RequestSubmitVote)
	ack.Tally = &tally
	h.sendAck(client, ack)
}

func (h *Hub) handleChangeState(ctx context.Context, client *Client, req models.ClientRequest) {
	state, err := h.pollService.ChangeState(ctx, req.RoomCode, req.NewState, req.HostToken)
	if err != nil {
		h.logFailure("change-poll-state", err)
		h.sendAck(client, models.FailAck(models.RequestChangePollState, err))
		return
	}

	ack := models.OkAck(models.RequestChangePollState)
	ack.State = state
	h.sendAck(client, ack)
}

func (h *Hub) sendAck(client *Client, ack models.Ack) {
	payload, err := json.Marshal(ack)
	if err != nil {
		h.log.Errorf("marshal ack: %v", err)
		return
	}
	select {
	case client.send <- payload:
	default:
		// Slow consumer; the write pump will notice soon enough.
	}
}

func (h *Hub) logFailure(op string, err error) {
	if models.IsClientError(err) {
		h.log.Debugf("%s rejected: %v", op, err)
		return
	}
	h.log.Errorf("%s failed: %v", op, err)
}
