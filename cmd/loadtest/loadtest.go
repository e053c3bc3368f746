// Command loadtest opens many websocket clients against a running server,
// joins each one and drives room and private traffic.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/huddle/internal/model"
)

type stats struct {
	sent     atomic.Int64
	acked    atomic.Int64
	rejected atomic.Int64
	received atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *stats) observe(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func (s *stats) percentile(p float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), s.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*p)]
}

type client struct {
	name  string
	conn  *websocket.Conn
	stats *stats

	mu      sync.Mutex
	nextAck int64
	pending map[int64]time.Time
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	endpoint := flag.String("url", "ws://localhost:3000/ws", "websocket endpoint")
	clients := flag.Int("clients", 50, "number of concurrent clients")
	messages := flag.Int("messages", 20, "messages sent by each client")
	interval := flag.Duration("interval", 200*time.Millisecond, "delay between messages of one client")
	private := flag.Float64("private", 0.2, "fraction of messages sent privately to another client")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runID := uuid.NewString()[:8]
	names := make([]string, *clients)
	for i := range names {
		names[i] = fmt.Sprintf("load-%s-%d", runID, i)
	}

	st := &stats{}
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		peer := names[(i+1)%len(names)]
		g.Go(func() error {
			return run(ctx, *endpoint, name, peer, *messages, *interval, *private, st)
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("load test stopped early: %v", err)
	}

	elapsed := time.Since(start)
	log.Printf("clients=%d sent=%d acked=%d rejected=%d received=%d elapsed=%s",
		*clients, st.sent.Load(), st.acked.Load(), st.rejected.Load(), st.received.Load(),
		elapsed.Round(time.Millisecond))
	log.Printf("ack latency p50=%s p95=%s p99=%s",
		st.percentile(0.50), st.percentile(0.95), st.percentile(0.99))
}

func run(ctx context.Context, endpoint, name, peer string, messages int, interval time.Duration, privateRatio float64, st *stats) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, endpoint, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("cmd/loadtest: %s failed to dial: %w", name, err)
	}
	defer conn.CloseNow()

	c := &client{
		name:    name,
		conn:    conn,
		stats:   st,
		pending: make(map[int64]time.Time),
	}

	readCtx, stopRead := context.WithCancel(ctx)
	defer stopRead()
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.read(readCtx)
	}()

	if err := c.send(ctx, model.EventJoin, model.JoinRequest{Username: name}); err != nil {
		return err
	}

	privateEvery := 0
	if privateRatio > 0 {
		privateEvery = max(1, int(1/privateRatio))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := range messages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		text := fmt.Sprintf("message %d from %s", i, name)
		if privateEvery > 0 && i%privateEvery == 0 {
			err = c.send(ctx, model.EventPrivateMessage, model.PrivateMessageRequest{To: peer, Text: text})
		} else {
			err = c.send(ctx, model.EventRoomMessage, model.RoomMessageRequest{Text: text})
		}
		if err != nil {
			return err
		}
	}

	// Give outstanding acks a moment to arrive.
	time.Sleep(time.Second)
	conn.Close(websocket.StatusNormalClosure, "done")
	stopRead()
	<-readDone
	return nil
}

func (c *client) send(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cmd/loadtest: failed to encode %s: %w", event, err)
	}

	c.mu.Lock()
	c.nextAck++
	id := c.nextAck
	c.pending[id] = time.Now()
	c.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := wsjson.Write(writeCtx, c.conn, model.Envelope{Event: event, Ack: id, Data: data}); err != nil {
		return fmt.Errorf("cmd/loadtest: %s failed to send %s: %w", c.name, event, err)
	}
	c.stats.sent.Add(1)
	return nil
}

func (c *client) read(ctx context.Context) {
	for {
		var env model.Envelope
		if err := wsjson.Read(ctx, c.conn, &env); err != nil {
			return
		}

		if env.Event != model.EventAck {
			c.stats.received.Add(1)
			continue
		}

		c.mu.Lock()
		sentAt, ok := c.pending[env.Ack]
		delete(c.pending, env.Ack)
		c.mu.Unlock()
		if !ok {
			continue
		}
		c.stats.observe(time.Since(sentAt))

		var ack model.StatusAck
		if err := json.Unmarshal(env.Data, &ack); err == nil && ack.OK {
			c.stats.acked.Add(1)
		} else {
			c.stats.rejected.Add(1)
		}
	}
}
