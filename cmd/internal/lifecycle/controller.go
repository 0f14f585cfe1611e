package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
)

// Deps are the collaborators a Controller drives.
type Deps struct {
	Log     *slog.Logger
	Clock   clockwork.Clock
	Signer  Signer
	Store   Store
	Payload PayloadSource
	Metrics *Metrics
}

// View is an immutable published state. Readers load it without locking.
type View struct {
	Active      Info
	Passive     []Info
	PublishedAt time.Time
}

// Controller owns the rotation/expiry policy.
//
// Writers (Bootstrap, Maintain, ForceRotate, Reset) are serialized by mu and
// may block on the Signer and the Store. Readers (Current, View, Status) read
// the last published View through an atomic pointer and never block.
type Controller struct {
	cfg     Config
	log     *slog.Logger
	clock   clockwork.Clock
	signer  Signer
	store   Store
	payload PayloadSource
	metrics *Metrics

	mu  sync.Mutex
	mgr *Manager
	// dirty is set when the last save failed so the next pass retries it.
	dirty bool

	view atomic.Pointer[View]
	feed *feed
}

// NewController validates cfg and wires the collaborators.
// Until Bootstrap succeeds readers see a placeholder token.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Signer == nil {
		return nil, fmt.Errorf("%w: signer is required", ErrConfig)
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrConfig)
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Payload == nil {
		deps.Payload = StaticPayload(nil)
	}

	c := &Controller{
		cfg:     cfg,
		log:     deps.Log,
		clock:   deps.Clock,
		signer:  deps.Signer,
		store:   deps.Store,
		payload: deps.Payload,
		metrics: deps.Metrics,
		mgr:     NewManager(),
		feed:    newFeed(),
	}
	now := c.clock.Now()
	c.view.Store(&View{Active: placeholderInfo(now), PublishedAt: now.UTC()})
	return c, nil
}

// Config returns the policy the controller was built with.
func (c *Controller) Config() Config { return c.cfg }

// Bootstrap loads persisted state and makes sure an active token exists.
// A persisted active token that is already expired is treated as absent.
// It is called once at startup. If signing fails the placeholder stays
// published and the error wraps ErrSigning; the next tick retries.
func (c *Controller) Bootstrap(ctx context.Context) (Info, error) {
	now := c.clock.Now()

	snap, err := c.store.Load(ctx)
	if err != nil {
		c.metrics.storeFailed("load")
		c.log.Warn("lifecycle.bootstrap.load.fail", "err", err)
		snap = Snapshot{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.Active != nil && snap.Active.IsExpired(now) {
		c.log.Info("lifecycle.bootstrap.active_expired", "token", *snap.Active)
		snap.Active = nil
	}
	c.mgr = NewManagerFromSnapshot(snap)
	c.log.Info("lifecycle.bootstrap.loaded",
		"has_active", c.mgr.HasActive(),
		"passive", c.mgr.PassiveCount(),
	)

	return c.maintainLocked(ctx, now)
}

// Maintain runs one maintenance pass at now:
//
//  1. prune expired passive tokens;
//  2. rotate when the active token is older than the rotation period (or absent);
//  3. persist when state changed or a previous save failed;
//  4. publish and return the active token.
//
// Signing failures defer the rotation and are returned wrapped in ErrSigning
// together with the still-active token. Store failures are logged only.
func (c *Controller) Maintain(ctx context.Context, now time.Time) (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maintainLocked(ctx, now)
}

// Tick runs Maintain at the clock's current time. It is the Scheduler callback.
func (c *Controller) Tick(ctx context.Context) {
	c.metrics.tick()
	active, err := c.Maintain(ctx, c.clock.Now())
	if err != nil {
		c.log.Warn("lifecycle.tick.degraded", "active", active, "err", err)
		return
	}
	c.log.Debug("lifecycle.tick.ok", "active", active)
}

func (c *Controller) maintainLocked(ctx context.Context, now time.Time) (Info, error) {
	changed := false

	if c.pruneLocked(now) {
		changed = true
	}

	var rotErr error
	if c.rotationDue(now) {
		next, err := c.mint(ctx, now)
		if err != nil {
			rotErr = err
			c.metrics.rotationFailed()
			c.log.Error("lifecycle.rotate.fail", "has_active", c.mgr.HasActive(), "err", err)
		} else {
			c.mgr.SetActive(next)
			changed = true
			c.metrics.rotated()
			c.log.Info("lifecycle.rotate", "active", next, "passive", c.mgr.PassiveCount())
			// A demoted token that had already expired leaves right away.
			c.pruneLocked(now)
		}
	}

	if changed || c.dirty {
		c.persistLocked(ctx)
	}

	return c.publishLocked(now), rotErr
}

func (c *Controller) rotationDue(now time.Time) bool {
	active, ok := c.mgr.Active()
	if !ok {
		return true
	}
	return active.IsExpired(now) || now.Sub(active.CreatedAt()) >= c.cfg.RotationPeriod
}

func (c *Controller) pruneLocked(now time.Time) bool {
	n := c.mgr.RemoveExpired(now)
	if n == 0 {
		return false
	}
	c.metrics.prunedN(n)
	c.log.Info("lifecycle.prune", "removed", n, "passive", c.mgr.PassiveCount())
	return true
}

// mint signs a fresh token valid from now for one TTL.
func (c *Controller) mint(ctx context.Context, now time.Time) (Info, error) {
	claims, err := c.payload.Payload(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("%w: payload: %w", ErrSigning, err)
	}

	exp := now.Add(c.cfg.TTL)
	p := Payload{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		IssuedAt:  now,
		ExpiresAt: exp,
		Claims:    claims,
	}

	tok, err := c.signer.Sign(ctx, p)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	info, err := NewInfo(tok, now, exp)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	return info, nil
}

func (c *Controller) persistLocked(ctx context.Context) {
	if err := c.store.Save(ctx, c.mgr.Snapshot()); err != nil {
		c.dirty = true
		c.metrics.storeFailed("save")
		c.log.Error("lifecycle.store.save.fail", "err", err)
		return
	}
	c.dirty = false
}

// publishLocked swaps in a new View and notifies subscribers when the active
// token changed. It returns what readers now see.
func (c *Controller) publishLocked(now time.Time) Info {
	active, ok := c.mgr.Active()
	if !ok {
		prev := c.view.Load()
		if prev != nil && prev.Active.IsPlaceholder() {
			active = prev.Active
		} else {
			active = placeholderInfo(now)
		}
	}

	passive := c.mgr.Passive()
	prev := c.view.Swap(&View{Active: active, Passive: passive, PublishedAt: now.UTC()})
	c.metrics.observe(active, len(passive))

	if prev == nil || !prev.Active.Equal(active) {
		c.feed.broadcast(active)
	}
	return active
}

// Current returns the latest published active token. It never blocks and
// never fails: before the first successful signing it returns a placeholder,
// and after that the last known-good token, even past its expiry.
func (c *Controller) Current() Info {
	return c.view.Load().Active
}

// View returns the latest published state.
func (c *Controller) View() View {
	v := c.view.Load()
	return View{
		Active:      v.Active,
		Passive:     append([]Info(nil), v.Passive...),
		PublishedAt: v.PublishedAt,
	}
}

// Ready reports whether a real (non-placeholder) token is published.
func (c *Controller) Ready() bool {
	return !c.Current().IsPlaceholder()
}

// Subscribe returns a channel that receives every newly published active
// token. Only the latest value is buffered. Call cancel to unsubscribe.
func (c *Controller) Subscribe() (<-chan Info, func()) {
	return c.feed.subscribe()
}

// ForceRotate signs a new active token now, regardless of the rotation period.
// On signing failure state is unchanged and the current token is returned with
// an error wrapping ErrSigning.
func (c *Controller) ForceRotate(ctx context.Context) (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	next, err := c.mint(ctx, now)
	if err != nil {
		c.metrics.rotationFailed()
		c.log.Error("lifecycle.rotate.force.fail", "err", err)
		return c.view.Load().Active, err
	}

	c.mgr.SetActive(next)
	c.metrics.rotated()
	c.log.Info("lifecycle.rotate.force", "active", next, "passive", c.mgr.PassiveCount())

	c.persistLocked(ctx)
	return c.publishLocked(now), nil
}

// Reset clears persisted records and all in-memory tokens, then runs one
// maintenance pass so a fresh active token is in place on return.
func (c *Controller) Reset(ctx context.Context) (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		c.metrics.storeFailed("clear")
		c.log.Error("lifecycle.store.clear.fail", "err", err)
		c.dirty = true
	}
	c.mgr.Reset()
	c.log.Info("lifecycle.reset")

	return c.maintainLocked(ctx, c.clock.Now())
}

// Summary renders the manager state. It takes the writer lock.
func (c *Controller) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mgr.Summary()
}

// Status renders a detailed, human-readable report from the published View.
// Tokens appear as fingerprints only.
func (c *Controller) Status(now time.Time) string {
	v := c.View()

	var b strings.Builder
	b.WriteString("=== JWS Active/Passive Token Status ===\n")
	fmt.Fprintf(&b, "Configuration: Expiration=%s, Rotation=%s, Interval=%s\n",
		c.cfg.TTL, c.cfg.RotationPeriod, c.cfg.MaintenanceInterval)

	var active *Info
	if !v.Active.IsPlaceholder() {
		a := v.Active
		active = &a
		fmt.Fprintf(&b, "Last Token Creation: %s\n", a.CreatedAt().Format(displayLayout))
		fmt.Fprintf(&b, "Next Rotation Due: %s\n", a.CreatedAt().Add(c.cfg.RotationPeriod).Format(displayLayout))
	}
	fmt.Fprintf(&b, "Current Time: %s\n", now.UTC().Format(displayLayout))
	b.WriteString(summarize(active, v.Passive))
	b.WriteByte('\n')

	if active != nil {
		b.WriteString("Active Token Details:\n")
		fmt.Fprintf(&b, "  Fingerprint: %s\n", active.Fingerprint())
		fmt.Fprintf(&b, "  Created: %s\n", active.CreatedAt().Format(displayLayout))
		fmt.Fprintf(&b, "  Expires: %s\n", active.ExpiresAt().Format(displayLayout))
		fmt.Fprintf(&b, "  Is Expired: %t\n", active.IsExpired(now))
	} else {
		b.WriteString("Active Token: none (degraded)\n")
	}

	if len(v.Passive) > 0 {
		b.WriteString("Passive Tokens:\n")
		for i, p := range v.Passive {
			b.WriteString("  " + strconv.Itoa(i+1) + ": ")
			fmt.Fprintf(&b, "Fingerprint=%s, Created=%s, Expires=%s, Expired=%t\n",
				p.Fingerprint(),
				p.CreatedAt().Format(displayLayout),
				p.ExpiresAt().Format(displayLayout),
				p.IsExpired(now),
			)
		}
	}
	return b.String()
}
