package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/benvon/gateway-console/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	mu         sync.Mutex
	channel    string
	message    interface{}
	publishErr error
	pingErr    error
	closed     bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channel
	f.message = message
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if f.publishErr != nil {
		cmd.SetErr(f.publishErr)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "ping")
	if f.pingErr != nil {
		cmd.SetErr(f.pingErr)
	}
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

type fakeChannel struct {
	declared   string
	kind       string
	durable    bool
	declareErr error
	published  []amqp.Publishing
	exchange   string
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	f.declared, f.kind, f.durable = name, kind, durable
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) IsClosed() bool { return f.closed }
func (f *fakeChannel) Close() error   { f.closed = true; return nil }

type fakeConn struct{ closed bool }

func (f *fakeConn) IsClosed() bool { return f.closed }
func (f *fakeConn) Close() error   { f.closed = true; return nil }

type recordingPublisher struct {
	name string
	err  error

	mu     sync.Mutex
	bodies [][]byte
	sent   chan struct{}
}

func newRecordingPublisher(name string, err error) *recordingPublisher {
	return &recordingPublisher{name: name, err: err, sent: make(chan struct{}, 16)}
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(_ context.Context, body []byte) error {
	p.mu.Lock()
	p.bodies = append(p.bodies, body)
	p.mu.Unlock()
	p.sent <- struct{}{}
	return p.err
}

func (p *recordingPublisher) HealthCheck(context.Context) error { return p.err }
func (p *recordingPublisher) Close() error                      { return nil }

func decode(t *testing.T, body []byte) SnapshotMessage {
	t.Helper()
	var msg SnapshotMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}
	return msg
}

func TestRedisPublisher(t *testing.T) {
	t.Parallel()

	client := &fakeRedis{}
	p := newRedisPublisher(client, "")
	if p.Channel() != DefaultRedisChannel {
		t.Errorf("Expected default channel %s, got %s", DefaultRedisChannel, p.Channel())
	}

	if err := p.Publish(context.Background(), []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if client.channel != DefaultRedisChannel {
		t.Errorf("Expected publish on %s, got %s", DefaultRedisChannel, client.channel)
	}
	if string(client.message.([]byte)) != `{"a":1}` {
		t.Errorf("Unexpected payload %v", client.message)
	}

	client.publishErr = errors.New("READONLY")
	if err := p.Publish(context.Background(), []byte("x")); err == nil {
		t.Error("Expected publish error to surface")
	}

	client.pingErr = errors.New("down")
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Error("Expected health check to fail")
	}
	_ = p.Close()
	if !client.closed {
		t.Error("Expected Close to close the client")
	}
}

func TestRabbitMQPublisher(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	conn := &fakeConn{}
	p, err := newRabbitMQPublisher(conn, ch, "")
	if err != nil {
		t.Fatalf("newRabbitMQPublisher: %v", err)
	}
	if ch.declared != DefaultExchangeName || ch.kind != amqp.ExchangeFanout || !ch.durable {
		t.Errorf("Expected durable fanout %s, got %s/%s durable=%v", DefaultExchangeName, ch.declared, ch.kind, ch.durable)
	}

	if err := p.Publish(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(ch.published) != 1 || ch.exchange != DefaultExchangeName {
		t.Fatalf("Expected one publish to %s, got %d to %q", DefaultExchangeName, len(ch.published), ch.exchange)
	}
	if ch.published[0].ContentType != "application/json" {
		t.Errorf("Expected JSON content type, got %s", ch.published[0].ContentType)
	}

	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("Expected healthy publisher, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Error("Expected health check to fail after Close")
	}
}

func TestRabbitMQPublisher_DeclareFailure(t *testing.T) {
	t.Parallel()

	_, err := newRabbitMQPublisher(&fakeConn{}, &fakeChannel{declareErr: errors.New("access refused")}, "x")
	if err == nil {
		t.Fatal("Expected setup error")
	}
}

func TestForwarder_ForwardToAll(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	ok := newRecordingPublisher("ok", nil)
	bad := newRecordingPublisher("bad", errors.New("broker down"))
	f := NewForwarder(nil, []Publisher{bad, ok}, WithForwarderClock(mock))

	snap := models.MetricsSnapshot{TotalRequests: 10, CacheHits: 4, ThreatsBlocked: 1}
	err := f.Forward(context.Background(), snap)
	if err == nil {
		t.Error("Expected joined error from failing publisher")
	}

	if len(ok.bodies) != 1 {
		t.Fatalf("Expected healthy publisher to still receive the snapshot, got %d", len(ok.bodies))
	}
	msg := decode(t, ok.bodies[0])
	if msg.Metrics != snap || msg.Source != Source || !msg.CapturedAt.Equal(mock.Now()) {
		t.Errorf("Unexpected message %+v", msg)
	}
	if f.HealthCheck(context.Background()) == nil {
		t.Error("Expected health check to report the failing publisher")
	}
}

func TestForwarder_RunPublishesFromListener(t *testing.T) {
	t.Parallel()

	pub := newRecordingPublisher("rec", nil)
	f := NewForwarder(nil, []Publisher{pub})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	f.Listener()(models.MetricsSnapshot{TotalRequests: 7})
	select {
	case <-pub.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for publish")
	}

	cancel()
	<-done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if got := decode(t, pub.bodies[0]).Metrics.TotalRequests; got != 7 {
		t.Errorf("Expected total 7, got %d", got)
	}
}

func TestForwarder_ListenerKeepsLatest(t *testing.T) {
	t.Parallel()

	f := NewForwarder(nil, nil)
	l := f.Listener()
	l(models.MetricsSnapshot{TotalRequests: 1})
	l(models.MetricsSnapshot{TotalRequests: 2})
	l(models.MetricsSnapshot{TotalRequests: 3})

	got := <-f.pending
	if got.TotalRequests != 3 {
		t.Errorf("Expected only the latest snapshot pending, got %d", got.TotalRequests)
	}
	select {
	case extra := <-f.pending:
		t.Errorf("Expected a single pending snapshot, got extra %+v", extra)
	default:
	}
}
