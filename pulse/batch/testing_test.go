package batch

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/pegabatch/errors"
	"github.com/teranos/pegabatch/pegabot"
)

// memStore is an in-memory Store that records every save.
type memStore struct {
	mu       sync.Mutex
	cps      map[string]Checkpoint
	cooldown *time.Time
	saves    []Checkpoint
	failSave error
	failLoad error
}

func newMemStore() *memStore {
	return &memStore{cps: make(map[string]Checkpoint)}
}

func (s *memStore) Load(_ context.Context, jobID string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad != nil {
		return Checkpoint{}, s.failLoad
	}
	cp := s.cps[jobID]
	return Checkpoint{Results: cp.Results.Clone(), Errors: append([]LineError(nil), cp.Errors...)}, nil
}

func (s *memStore) Save(_ context.Context, jobID string, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	snap := Checkpoint{Results: cp.Results.Clone(), Errors: append([]LineError(nil), cp.Errors...)}
	s.cps[jobID] = snap
	s.saves = append(s.saves, snap)
	return nil
}

func (s *memStore) Cooldown(context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldown, nil
}

func (s *memStore) SetCooldown(_ context.Context, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldown = &until
	return nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]*pegabot.Payload
	failGet error
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*pegabot.Payload)}
}

func (c *memCache) Get(_ context.Context, id string) (*pegabot.Payload, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet != nil {
		return nil, false, c.failGet
	}
	p, ok := c.entries[id]
	return p, ok, nil
}

func (c *memCache) Set(_ context.Context, id string, p *pegabot.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = p
	return nil
}

// fakeClient answers from a script and counts calls per identifier.
type fakeClient struct {
	mu        sync.Mutex
	calls     []string
	remaining map[string]int   // rate_limit.remaining per identifier; absent = no block
	toReset   int              // rate_limit.toReset on every response
	fail      map[string]error // scripted failures
	block     chan struct{}    // when set, Analyze waits on it
	onCall    func(id string)  // hook run before answering
	resetOnly bool             // rate_limit block without remaining when none is scripted
}

func (c *fakeClient) Analyze(ctx context.Context, id string) (*pegabot.Payload, error) {
	c.mu.Lock()
	c.calls = append(c.calls, id)
	block, hook := c.block, c.onCall
	c.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := c.fail[id]; ok {
		return nil, err
	}

	p := payloadFor(id)
	if rem, ok := c.remaining[id]; ok {
		n := pegabot.Count(rem)
		p.RateLimit = &pegabot.RateLimit{Remaining: &n, ToReset: pegabot.Count(c.toReset)}
	} else if c.resetOnly {
		p.RateLimit = &pegabot.RateLimit{ToReset: pegabot.Count(c.toReset)}
	}
	return p, nil
}

func (c *fakeClient) callsFor(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, got := range c.calls {
		if got == id {
			n++
		}
	}
	return n
}

func (c *fakeClient) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func payloadFor(id string) *pegabot.Payload {
	all := float64(len(id)) / 10
	return &pegabot.Payload{
		Profiles:    []pegabot.Profile{{Username: id, BotProbability: pegabot.BotProbability{All: &all}}},
		TwitterData: &pegabot.TwitterData{UserName: pegabot.Text(id)},
	}
}

func notFound(msg string) error {
	return &pegabot.Error{Reason: pegabot.NotFound, Status: 404, Message: msg}
}

var errDisk = errors.New("disk I/O error")
