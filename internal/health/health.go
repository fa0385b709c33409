package health

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CheckResult is one dependency's verdict, serialized into the readiness
// response body.
type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Checker probes a single dependency.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// ProbeRunner runs all checkers with a per-probe timeout and caches the
// combined result briefly so a scraping load balancer cannot hammer the
// backing stores.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checkers []Checker

	mu         sync.Mutex
	lastRun    time.Time
	lastReady  bool
	lastChecks []CheckResult
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *ProbeRunner {
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, checkers: checkers}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cacheTTL > 0 && time.Since(p.lastRun) < p.cacheTTL && p.lastChecks != nil {
		return p.lastReady, p.lastChecks
	}

	ready := true
	results := make([]CheckResult, 0, len(p.checkers))
	for _, c := range p.checkers {
		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		res := c.Check(probeCtx)
		cancel()
		if !res.Healthy {
			ready = false
		}
		results = append(results, res)
	}

	p.lastRun = time.Now()
	p.lastReady = ready
	p.lastChecks = results
	return ready, results
}

// GormChecker pings the relational store behind the user and device tables.
type GormChecker struct {
	name string
	db   *gorm.DB
}

func NewGormChecker(name string, db *gorm.DB) *GormChecker {
	return &GormChecker{name: name, db: db}
}

func (c *GormChecker) Check(ctx context.Context) CheckResult {
	sqlDB, err := c.db.DB()
	if err != nil {
		return CheckResult{Name: c.name, Healthy: false, Error: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return CheckResult{Name: c.name, Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: c.name, Healthy: true}
}

// RedisChecker pings the session store.
type RedisChecker struct {
	name   string
	client redis.UniversalClient
}

func NewRedisChecker(name string, client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{name: name, client: client}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return CheckResult{Name: c.name, Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: c.name, Healthy: true}
}
