package fetcher

import "sync"

// UserAgentPool hands out User-Agent strings round-robin.
type UserAgentPool struct {
	mu     sync.Mutex
	agents []string
	next   int
}

// NewUserAgentPool creates a pool. An empty list yields a single generic browser UA.
func NewUserAgentPool(agents []string) *UserAgentPool {
	if len(agents) == 0 {
		agents = []string{"Mozilla/5.0 (compatible; gemradar/1.0)"}
	}
	cp := make([]string, len(agents))
	copy(cp, agents)
	return &UserAgentPool{agents: cp}
}

// Next returns the next agent in rotation.
func (p *UserAgentPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ua := p.agents[p.next%len(p.agents)]
	p.next++
	return ua
}

// Rotate returns an agent different from current when the pool allows it.
func (p *UserAgentPool) Rotate(current string) string {
	p.mu.Lock()
	n := len(p.agents)
	p.mu.Unlock()
	for i := 0; i < n; i++ {
		if ua := p.Next(); ua != current {
			return ua
		}
	}
	return current
}

// Len returns the pool size.
func (p *UserAgentPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.agents)
}
