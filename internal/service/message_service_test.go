package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/erms-api/internal/dto"
	"github.com/noah-isme/erms-api/internal/models"
)

// fakeConn feeds frames to the hub and records what it writes back.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 8),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v interface{}) error {
	select {
	case frame := <-c.in:
		return json.Unmarshal(frame, v)
	case <-c.closed:
		return io.EOF
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.out <- payload:
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	}
}

func (c *fakeConn) WriteMessage(int, []byte) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(t *testing.T, frame interface{}) {
	t.Helper()
	payload, err := json.Marshal(frame)
	require.NoError(t, err)
	c.in <- payload
}

func (c *fakeConn) next(t *testing.T) map[string]json.RawMessage {
	t.Helper()
	select {
	case payload := <-c.out:
		var event map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for realtime event")
		return nil
	}
}

func eventType(t *testing.T, event map[string]json.RawMessage) string {
	t.Helper()
	var kind string
	require.NoError(t, json.Unmarshal(event["type"], &kind))
	return kind
}

func eventMessage(t *testing.T, event map[string]json.RawMessage) dto.MessageResponse {
	t.Helper()
	var message dto.MessageResponse
	require.NoError(t, json.Unmarshal(event["message"], &message))
	return message
}

func connect(t *testing.T, svc MessageService, user models.User) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	go svc.ServeConnection(conn, RealtimeOptions{UserID: user.ID, Role: user.Role, CorrelationID: "test"})
	t.Cleanup(func() { _ = conn.Close() })

	hub := svc.(*messageService).hub
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.clients[user.ID]) > 0
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

type messageFixture struct {
	db       *gorm.DB
	repos    testRepos
	svc      MessageService
	teacher  models.User
	student  models.User
	peer     models.User
	inactive models.User
}

func newMessageFixture(t *testing.T) messageFixture {
	t.Helper()
	db := setupServiceDB(t)
	repos := newTestRepos(db)
	inactive := createUser(t, db, "Gone", models.RoleTeacher)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", inactive.ID).Update("active", false).Error)

	return messageFixture{
		db:       db,
		repos:    repos,
		svc:      NewMessageService(repos.messages, repos.users, MessageBroker{}, testValidator(), testLogger()),
		teacher:  createUser(t, db, "Teacher", models.RoleTeacher),
		student:  createUser(t, db, "Student", models.RoleStudent),
		peer:     createUser(t, db, "Peer", models.RoleStudent),
		inactive: inactive,
	}
}

func TestSendMessageRules(t *testing.T) {
	fx := newMessageFixture(t)
	ctx := context.Background()
	student := actorOf(fx.student)

	sent, err := fx.svc.Send(ctx, student, dto.SendMessageRequest{RecipientID: fx.teacher.ID, Content: "<script>x()</script>Hello <b>sir</b>"})
	require.NoError(t, err)
	require.Equal(t, "Hello sir", sent.Content)
	require.Nil(t, sent.ReadAt)

	_, err = fx.svc.Send(ctx, student, dto.SendMessageRequest{RecipientID: fx.teacher.ID, Content: "<img src=x>"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = fx.svc.Send(ctx, student, dto.SendMessageRequest{RecipientID: fx.student.ID, Content: "me"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = fx.svc.Send(ctx, student, dto.SendMessageRequest{RecipientID: fx.peer.ID, Content: "hi"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = fx.svc.Send(ctx, student, dto.SendMessageRequest{RecipientID: 9999, Content: "hi"})
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = fx.svc.Send(ctx, student, dto.SendMessageRequest{RecipientID: fx.inactive.ID, Content: "hi"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = fx.svc.Send(ctx, student, dto.SendMessageRequest{RecipientID: fx.teacher.ID})
	require.Error(t, err)

	_, err = fx.svc.Send(ctx, actorOf(fx.teacher), dto.SendMessageRequest{RecipientID: fx.peer.ID, Content: "Welcome"})
	require.NoError(t, err)
}

func TestConversationsThreadsAndReads(t *testing.T) {
	fx := newMessageFixture(t)
	ctx := context.Background()
	teacher, student := actorOf(fx.teacher), actorOf(fx.student)

	first, err := fx.svc.Send(ctx, student, dto.SendMessageRequest{RecipientID: fx.teacher.ID, Content: "Question one"})
	require.NoError(t, err)
	_, err = fx.svc.Send(ctx, student, dto.SendMessageRequest{RecipientID: fx.teacher.ID, Content: "Question two"})
	require.NoError(t, err)
	_, err = fx.svc.Send(ctx, teacher, dto.SendMessageRequest{RecipientID: fx.peer.ID, Content: "Reminder"})
	require.NoError(t, err)

	conversations, err := fx.svc.Conversations(ctx, teacher)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	require.Equal(t, fx.peer.ID, conversations[0].Counterpart.ID, "most recent conversation first")
	require.Equal(t, int64(2), conversations[1].Unread)
	require.Equal(t, "Question two", conversations[1].LastMessage.Content)

	thread, err := fx.svc.Thread(ctx, teacher, fx.student.ID, dto.ThreadRequest{})
	require.NoError(t, err)
	require.Len(t, thread, 2)
	require.Equal(t, "Question one", thread[0].Content)

	_, err = fx.svc.Thread(ctx, teacher, fx.teacher.ID, dto.ThreadRequest{})
	require.ErrorIs(t, err, ErrInvalidInput)

	unread, err := fx.svc.UnreadCount(ctx, teacher)
	require.NoError(t, err)
	require.Equal(t, int64(2), unread)

	_, err = fx.svc.MarkRead(ctx, student, first.ID)
	require.ErrorIs(t, err, ErrForbidden)

	read, err := fx.svc.MarkRead(ctx, teacher, first.ID)
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)

	again, err := fx.svc.MarkRead(ctx, teacher, first.ID)
	require.NoError(t, err)
	require.NotNil(t, again.ReadAt)

	marked, err := fx.svc.MarkThreadRead(ctx, teacher, fx.student.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), marked)

	unread, err = fx.svc.UnreadCount(ctx, teacher)
	require.NoError(t, err)
	require.Zero(t, unread)

	_, err = fx.svc.MarkRead(ctx, teacher, 4242)
	require.ErrorIs(t, err, ErrMessageNotFound)

	empty, err := fx.svc.Conversations(ctx, actorOf(fx.inactive))
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestRealtimeDeliveryOnOneNode(t *testing.T) {
	fx := newMessageFixture(t)
	teacherConn := connect(t, fx.svc, fx.teacher)
	studentConn := connect(t, fx.svc, fx.student)

	studentConn.send(t, dto.SendMessageRequest{RecipientID: fx.teacher.ID, Content: "Are we meeting today?"})

	event := teacherConn.next(t)
	require.Equal(t, EventMessage, eventType(t, event))
	message := eventMessage(t, event)
	require.Equal(t, fx.student.ID, message.SenderID)
	require.Equal(t, "Are we meeting today?", message.Content)

	echo := studentConn.next(t)
	require.Equal(t, EventMessage, eventType(t, echo))

	_, err := fx.svc.MarkRead(context.Background(), actorOf(fx.teacher), message.ID)
	require.NoError(t, err)
	receipt := studentConn.next(t)
	require.Equal(t, EventRead, eventType(t, receipt))
	require.NotNil(t, eventMessage(t, receipt).ReadAt)
	require.Equal(t, EventRead, eventType(t, teacherConn.next(t)))

	studentConn.send(t, dto.SendMessageRequest{RecipientID: fx.peer.ID, Content: "psst"})
	rejected := studentConn.next(t)
	require.Equal(t, EventError, eventType(t, rejected))
	var reason string
	require.NoError(t, json.Unmarshal(rejected["error"], &reason))
	require.Equal(t, ErrForbidden.Error(), reason)
}

func TestRealtimeDeliveryAcrossNodesViaRedis(t *testing.T) {
	fx := newMessageFixture(t)
	mr := miniredis.RunT(t)
	newNode := func() MessageService {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewMessageService(fx.repos.messages, fx.repos.users, MessageBroker{Redis: client, Channel: "erms"}, testValidator(), testLogger())
	}
	nodeA, nodeB := newNode(), newNode()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	nodeA.Start(ctx)
	nodeB.Start(ctx)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("erms:messages")["erms:messages"] == 2
	}, 2*time.Second, 10*time.Millisecond)

	teacherConn := connect(t, nodeB, fx.teacher)

	sent, err := nodeA.Send(context.Background(), actorOf(fx.student), dto.SendMessageRequest{RecipientID: fx.teacher.ID, Content: "From node A"})
	require.NoError(t, err)

	event := teacherConn.next(t)
	require.Equal(t, EventMessage, eventType(t, event))
	require.Equal(t, sent.ID, eventMessage(t, event).ID)

	select {
	case extra := <-teacherConn.out:
		t.Fatalf("unexpected duplicate event: %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func runNATSServer(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second), "nats server did not start")
	return srv.ClientURL()
}

func TestRealtimeDeliveryAcrossNodesViaNATS(t *testing.T) {
	fx := newMessageFixture(t)
	url := runNATSServer(t)
	mr := miniredis.RunT(t)

	var conns []*nats.Conn
	newNode := func() MessageService {
		conn, err := nats.Connect(url)
		require.NoError(t, err)
		t.Cleanup(conn.Close)
		conns = append(conns, conn)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewMessageService(fx.repos.messages, fx.repos.users, MessageBroker{NATS: conn, Redis: client, Channel: "erms:prod"}, testValidator(), testLogger())
	}
	nodeA, nodeB := newNode(), newNode()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	nodeA.Start(ctx)
	nodeB.Start(ctx)
	for _, conn := range conns {
		require.NoError(t, conn.Flush())
	}
	require.Zero(t, mr.PubSubNumSub("erms:prod:messages")["erms:prod:messages"], "redis is not used when nats is configured")

	teacherConn := connect(t, nodeB, fx.teacher)
	studentConn := connect(t, nodeA, fx.student)

	sent, err := nodeA.Send(context.Background(), actorOf(fx.student), dto.SendMessageRequest{RecipientID: fx.teacher.ID, Content: "Over NATS"})
	require.NoError(t, err)

	event := teacherConn.next(t)
	require.Equal(t, EventMessage, eventType(t, event))
	require.Equal(t, sent.ID, eventMessage(t, event).ID)
	require.Equal(t, "Over NATS", eventMessage(t, event).Content)
	require.Equal(t, EventMessage, eventType(t, studentConn.next(t)))

	_, err = nodeB.MarkRead(context.Background(), actorOf(fx.teacher), sent.ID)
	require.NoError(t, err)
	require.Equal(t, EventRead, eventType(t, teacherConn.next(t)))
	require.Equal(t, EventRead, eventType(t, studentConn.next(t)))

	select {
	case extra := <-teacherConn.out:
		t.Fatalf("unexpected event: %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFrameErrorHidesInternalFailures(t *testing.T) {
	require.Equal(t, "internal server error", frameError(io.ErrUnexpectedEOF))
	require.Equal(t, ErrUserNotFound.Error(), frameError(ErrUserNotFound))
	require.Equal(t, "invalid message payload", frameError(testValidator().Struct(dto.SendMessageRequest{})))
}
