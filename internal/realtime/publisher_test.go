package realtime

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPublishing(t *testing.T) {
	body, err := encode("newProduct", map[string]any{"id": "p-1"})
	require.NoError(t, err)

	msg := newPublishing(body)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.False(t, msg.Timestamp.IsZero())
	assert.JSONEq(t, `{"event":"newProduct","data":{"id":"p-1"}}`, string(msg.Body))
}

// silentBroker accepts TCP connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublisher_BroadcastDoesNotWaitForBroker(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	pub := newPublisher(PublisherConfig{URL: silentBroker(t), Exchange: "catalog.events"}, zap.NewNop(), m, 8)
	pub.dialTimeout = 200 * time.Millisecond
	go pub.run()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	pub.Broadcast(ctx, "newProduct", map[string]any{"id": "p-1"})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	failed := m.Events.WithLabelValues(sinkAMQP, resultFailed)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(failed) == 1
	}, 2*time.Second, 20*time.Millisecond, "reconnect should give up after the dial timeout")

	closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
	defer closeCancel()
	assert.NoError(t, pub.Close(closeCtx))
}

func TestPublisher_FullQueueDropsEvent(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	pub := newPublisher(PublisherConfig{URL: "amqp://unused/", Exchange: "catalog.events"}, zap.NewNop(), m, 1)

	pub.Broadcast(context.Background(), "newProduct", map[string]any{"id": "p-1"})
	pub.Broadcast(context.Background(), "newProduct", map[string]any{"id": "p-2"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues(sinkAMQP, resultDropped)))
	assert.Len(t, pub.queue, 1)
}

func TestPublisher_BroadcastAfterClose(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	pub := newPublisher(PublisherConfig{URL: "amqp://unused/", Exchange: "catalog.events"}, zap.NewNop(), m, 1)
	go pub.run()

	require.NoError(t, pub.Close(context.Background()))

	assert.NotPanics(t, func() {
		pub.Broadcast(context.Background(), "newProduct", map[string]any{"id": "p-1"})
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues(sinkAMQP, resultDropped)))
}

func TestPublisher_RoundTrip(t *testing.T) {
	url := os.Getenv("CATALOG_TEST_RABBITMQ_URL")
	if url == "" {
		t.Skip("CATALOG_TEST_RABBITMQ_URL not set")
	}

	exchange := "catalog.events.test"
	pub, err := NewPublisher(PublisherConfig{URL: url, Exchange: exchange}, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close(context.Background()) })

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ch, err := conn.Channel()
	require.NoError(t, err)

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "", exchange, false, nil))

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	pub.Broadcast(context.Background(), "newProduct", map[string]any{"id": "p-42"})

	select {
	case d := <-deliveries:
		assert.Equal(t, "newProduct", d.RoutingKey)

		var env Envelope
		require.NoError(t, json.Unmarshal(d.Body, &env))
		assert.Equal(t, "newProduct", env.Event)
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery within 5s")
	}
}
