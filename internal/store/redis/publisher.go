// Package redis mirrors scanner output to Redis so external consumers can
// follow signals and position changes live. Redis is optional: while it
// is unreachable writes are buffered behind a circuit breaker and
// replayed once it recovers.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"gainer-scanner/internal/breaker"
	"gainer-scanner/internal/portfolio"
	"gainer-scanner/internal/strategy"
)

const (
	SignalChannel   = "scanner:signals"
	PositionChannel = "scanner:positions"
	SignalStream    = "scanner:signals:stream"
	StatsKey        = "scanner:stats"

	signalStreamMaxLen = 5000
	statsTTL           = 24 * time.Hour
	writeTimeout       = 5 * time.Second
	defaultMaxBuffer   = 10000
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"; empty disables the publisher
	Password string
	DB       int
}

// Client is the subset of *goredis.Client the publisher uses.
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

type opKind int

const (
	opPublish opKind = iota
	opSet
	opStream
)

// pendingWrite is a write held back while the breaker is open.
type pendingWrite struct {
	op     opKind
	target string
	data   string
}

// Publisher writes signals, ledger events and statistics to Redis.
type Publisher struct {
	client Client
	cb     *breaker.Breaker

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int

	// Callbacks
	OnBuffer func()          // a write was buffered
	OnFlush  func(count int) // buffered writes were replayed
}

// New connects to Redis, pings it and returns a publisher guarded by a
// breaker that opens after 5 consecutive failures.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, breaker.New("redis", 5, 10*time.Second), 0), nil
}

// NewWithClient wraps an existing client. maxBufferSize <= 0 selects the
// default.
func NewWithClient(c Client, cb *breaker.Breaker, maxBufferSize int) *Publisher {
	if maxBufferSize <= 0 {
		maxBufferSize = defaultMaxBuffer
	}
	p := &Publisher{
		client: c,
		cb:     cb,
		buffer: make([]pendingWrite, 0, 64),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to breaker.State) {
		if prev != nil {
			prev(from, to)
		}
		if to == breaker.Closed {
			go p.flush()
		}
	}
	return p
}

// PublishSignal appends sig to the signal stream and announces it on the
// signal channel.
func (p *Publisher) PublishSignal(ctx context.Context, sig strategy.Signal) error {
	b, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis encode signal %s: %w", sig.Symbol, err)
	}
	data := string(b)
	if err := p.write(ctx, pendingWrite{op: opStream, target: SignalStream, data: data}); err != nil {
		return err
	}
	return p.write(ctx, pendingWrite{op: opPublish, target: SignalChannel, data: data})
}

// PublishEvent announces a ledger event. Close events also refresh the
// statistics key.
func (p *Publisher) PublishEvent(ctx context.Context, ev portfolio.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis encode event %s: %w", ev.Symbol, err)
	}
	if err := p.write(ctx, pendingWrite{op: opPublish, target: PositionChannel, data: string(b)}); err != nil {
		return err
	}
	if ev.Stats == nil {
		return nil
	}
	return p.PublishStats(ctx, *ev.Stats)
}

// PublishStats stores the latest statistics snapshot.
func (p *Publisher) PublishStats(ctx context.Context, st portfolio.Statistics) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis encode stats: %w", err)
	}
	return p.write(ctx, pendingWrite{op: opSet, target: StatsKey, data: string(b)})
}

// Run publishes ledger events until ctx is cancelled or events is closed.
func (p *Publisher) Run(ctx context.Context, events <-chan portfolio.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := p.PublishEvent(ctx, ev); err != nil {
				log.Printf("[redis] publish %s %s: %v", ev.Kind, ev.Symbol, err)
			}
		}
	}
}

// Ping checks the connection without going through the breaker.
func (p *Publisher) Ping(ctx context.Context) *goredis.StatusCmd {
	return p.client.Ping(ctx)
}

// Breaker returns the breaker guarding writes.
func (p *Publisher) Breaker() *breaker.Breaker { return p.cb }

// PendingCount returns the number of buffered writes.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Close releases the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// write sends w through the breaker, buffering it when the breaker is
// open. Other failures are returned to the caller.
func (p *Publisher) write(ctx context.Context, w pendingWrite) error {
	err := p.cb.Execute(func() error { return p.send(ctx, w) })
	if errors.Is(err, breaker.ErrOpen) {
		p.bufferWrite(w)
		return nil
	}
	return err
}

func (p *Publisher) send(ctx context.Context, w pendingWrite) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	switch w.op {
	case opPublish:
		return p.client.Publish(ctx, w.target, w.data).Err()
	case opSet:
		return p.client.Set(ctx, w.target, w.data, statsTTL).Err()
	case opStream:
		return p.client.XAdd(ctx, &goredis.XAddArgs{
			Stream: w.target,
			MaxLen: signalStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": w.data},
		}).Err()
	}
	return fmt.Errorf("redis: unknown write op %d", w.op)
}

func (p *Publisher) bufferWrite(w pendingWrite) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, w)

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered writes in order. A write that fails again is
// logged and dropped.
func (p *Publisher) flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = make([]pendingWrite, 0, 64)
	p.mu.Unlock()

	flushed := 0
	for _, w := range toFlush {
		if err := p.send(context.Background(), w); err != nil {
			log.Printf("[redis] replay to %s failed: %v", w.target, err)
			continue
		}
		flushed++
	}

	log.Printf("[redis] flushed %d/%d buffered writes", flushed, len(toFlush))
	if p.OnFlush != nil {
		p.OnFlush(flushed)
	}
}
