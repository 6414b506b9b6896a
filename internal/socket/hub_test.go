package socket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poll-service/internal/models"
	"poll-service/internal/service"
	"poll-service/pkg/zap"
)

type stubPollService struct {
	state    models.PollState
	stateErr error
}

func (s *stubPollService) Create(context.Context, string, []string) (*models.CreatedPoll, error) {
	return nil, nil
}
func (s *stubPollService) GetSnapshot(context.Context, string) (*models.PollSnapshot, error) {
	return nil, nil
}
func (s *stubPollService) GetByRoomCode(context.Context, string) (*models.Poll, error) {
	return nil, nil
}
func (s *stubPollService) ChangeState(context.Context, string, string, string) (models.PollState, error) {
	return s.state, s.stateErr
}
func (s *stubPollService) DeactivateExpired(context.Context) (int64, error) { return 0, nil }

type stubVoteService struct {
	tally models.Tally
	err   error
}

func (s *stubVoteService) SubmitVote(context.Context, string, string, int) (models.Tally, error) {
	return s.tally, s.err
}

type stubParticipantService struct {
	result       *service.JoinResult
	joinErr      error
	disconnected []string
}

func (s *stubParticipantService) Join(_ context.Context, _, _, connectionID string) (*service.JoinResult, error) {
	return s.result, s.joinErr
}
func (s *stubParticipantService) MarkDisconnected(_ context.Context, connectionID string) error {
	s.disconnected = append(s.disconnected, connectionID)
	return nil
}
func (s *stubParticipantService) MarkStaleDisconnected(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func newTestHub(polls *stubPollService, votes *stubVoteService, participants *stubParticipantService) *Hub {
	if polls == nil {
		polls = &stubPollService{}
	}
	if votes == nil {
		votes = &stubVoteService{}
	}
	if participants == nil {
		participants = &stubParticipantService{}
	}
	return NewHub(polls, votes, participants, zap.NewNop())
}

func newTestClient(hub *Hub, connID string) *Client {
	return &Client{
		hub:    hub,
		send:   make(chan []byte, 16),
		connID: connID,
	}
}

func joinRoomDirect(hub *Hub, client *Client, room, nickname string) {
	client.roomCode = room
	client.nickname = nickname
	client.joined = true
	hub.addToRoom(client)
}

func recvFrame(t *testing.T, client *Client) map[string]interface{} {
	t.Helper()
	select {
	case payload := <-client.send:
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(payload, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func TestEmitLocalScopedToRoom(t *testing.T) {
	hub := newTestHub(nil, nil, nil)

	alice := newTestClient(hub, "c1")
	bob := newTestClient(hub, "c2")
	stranger := newTestClient(hub, "c3")
	joinRoomDirect(hub, alice, "ROOMAA", "Alice")
	joinRoomDirect(hub, bob, "ROOMAA", "Bob")
	joinRoomDirect(hub, stranger, "ROOMBB", "Eve")

	hub.EmitLocal("ROOMAA", []byte(`{"type":"vote-update"}`))

	assert.Equal(t, "vote-update", recvFrame(t, alice)["type"])
	assert.Equal(t, "vote-update", recvFrame(t, bob)["type"])
	assert.Empty(t, stranger.send)
}

func TestDispatchJoinSuccess(t *testing.T) {
	poll := &models.Poll{RoomCode: "ROOMAA", Question: "Q", Options: []string{"A", "B"}, State: models.PollStateWaiting}
	participants := &stubParticipantService{
		result: &service.JoinResult{
			Poll:        poll,
			Participant: &models.Participant{Nickname: "Alice"},
		},
	}
	hub := newTestHub(nil, nil, participants)
	go hub.Run()
	defer hub.Shutdown()

	client := newTestClient(hub, "c1")
	hub.dispatch(client, []byte(`{"type":"join-room","roomCode":"ROOMAA","nickname":"Alice"}`))

	frame := recvFrame(t, client)
	assert.Equal(t, models.AckType, frame["type"])
	assert.Equal(t, models.RequestJoinRoom, frame["event"])
	assert.Equal(t, true, frame["success"])
	require.NotNil(t, frame["poll"])

	assert.True(t, client.joined)
	assert.Equal(t, "ROOMAA", client.roomCode)

	// Membership lands via the register channel.
	require.Eventually(t, func() bool {
		hub.roomsMutex.RLock()
		defer hub.roomsMutex.RUnlock()
		return hub.rooms["ROOMAA"][client]
	}, time.Second, 5*time.Millisecond)
}

func TestDispatchJoinFailureKeepsClientOut(t *testing.T) {
	participants := &stubParticipantService{joinErr: models.ErrNicknameTaken}
	hub := newTestHub(nil, nil, participants)

	client := newTestClient(hub, "c1")
	hub.dispatch(client, []byte(`{"type":"join-room","roomCode":"ROOMAA","nickname":"Alice"}`))

	frame := recvFrame(t, client)
	assert.Equal(t, false, frame["success"])
	assert.Equal(t, "nickname already in use", frame["error"])
	assert.False(t, client.joined)
}

func TestDispatchSubmitVoteAcks(t *testing.T) {
	hub := newTestHub(nil, &stubVoteService{tally: models.NewTally([]int{1, 0})}, nil)

	client := newTestClient(hub, "c1")
	hub.dispatch(client, []byte(`{"type":"submit-vote","roomCode":"ROOMAA","nickname":"Alice","optionIndex":0}`))

	frame := recvFrame(t, client)
	assert.Equal(t, true, frame["success"])
	assert.Equal(t, models.RequestSubmitVote, frame["event"])

	tally, ok := frame["tally"].(map[string]interface{})
	require.True(t, ok, "ack carries the fresh tally")
	assert.Equal(t, []interface{}{float64(100), float64(0)}, tally["percentages"])
}

func TestDispatchSubmitVoteWithoutOption(t *testing.T) {
	hub := newTestHub(nil, nil, nil)

	client := newTestClient(hub, "c1")
	hub.dispatch(client, []byte(`{"type":"submit-vote","roomCode":"ROOMAA","nickname":"Alice"}`))

	frame := recvFrame(t, client)
	assert.Equal(t, false, frame["success"])
}

func TestDispatchChangeStateAck(t *testing.T) {
	hub := newTestHub(&stubPollService{state: models.PollStateOpen}, nil, nil)

	client := newTestClient(hub, "c1")
	hub.dispatch(client, []byte(`{"type":"change-poll-state","roomCode":"ROOMAA","newState":"open","hostToken":"tok"}`))

	frame := recvFrame(t, client)
	assert.Equal(t, true, frame["success"])
	assert.Equal(t, "open", frame["state"])
}

func TestDispatchFailureHidesInternalDetail(t *testing.T) {
	hub := newTestHub(&stubPollService{stateErr: assert.AnError}, nil, nil)

	client := newTestClient(hub, "c1")
	hub.dispatch(client, []byte(`{"type":"change-poll-state","roomCode":"ROOMAA","newState":"open","hostToken":"tok"}`))

	frame := recvFrame(t, client)
	assert.Equal(t, false, frame["success"])
	assert.Equal(t, "something went wrong, please try again", frame["error"])
	assert.NotContains(t, frame["error"], assert.AnError.Error())
}

func TestDispatchUnknownType(t *testing.T) {
	hub := newTestHub(nil, nil, nil)

	client := newTestClient(hub, "c1")
	hub.dispatch(client, []byte(`{"type":"explode"}`))

	frame := recvFrame(t, client)
	assert.Equal(t, false, frame["success"])
}

func TestUnregisterTriggersDisconnectCleanup(t *testing.T) {
	participants := &stubParticipantService{}
	hub := newTestHub(nil, nil, participants)

	client := newTestClient(hub, "c1")
	joinRoomDirect(hub, client, "ROOMAA", "Alice")

	hub.handleClientUnregister(client)

	hub.roomsMutex.RLock()
	_, stillThere := hub.rooms["ROOMAA"]
	hub.roomsMutex.RUnlock()
	assert.False(t, stillThere, "empty rooms are pruned")
	assert.Equal(t, []string{"c1"}, participants.disconnected)
}
