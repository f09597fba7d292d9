// Package health implements the pet's vitality: it heals while the user is
// focused and decays, after a grace period, while they are not.
package health

import "fmt"

// MaxVitality is the vitality of a freshly started session.
const MaxVitality = 100

// Vitality is the pet's health, always within [0, MaxVitality].
type Vitality int

// Config holds the difficulty tuning knobs.
type Config struct {
	HealAmount   int // vitality gained per focused tick
	DamageAmount int // vitality lost per unfocused tick once the grace period has elapsed
	GraceTicks   int // unfocused ticks tolerated before decay begins
}

// DefaultConfig is a slow-heal, fast-damage curve.
func DefaultConfig() Config {
	return Config{HealAmount: 2, DamageAmount: 5, GraceTicks: 5}
}

// Validate reports whether c describes a usable curve.
func (c Config) Validate() error {
	if c.HealAmount <= 0 {
		return fmt.Errorf("heal amount must be positive, got %d", c.HealAmount)
	}
	if c.DamageAmount <= 0 {
		return fmt.Errorf("damage amount must be positive, got %d", c.DamageAmount)
	}
	if c.GraceTicks < 0 {
		return fmt.Errorf("grace period must not be negative, got %d", c.GraceTicks)
	}
	return nil
}

// Mechanic owns the vitality state. It is not safe for concurrent use.
type Mechanic struct {
	cfg      Config
	vitality Vitality
	onDeath  func()

	// tick counts evaluated (active, unpaused) ticks since the last reset.
	tick uint64
	// graceDeadline is the tick at which decay starts; nil while focused.
	graceDeadline *uint64
	dead          bool
}

// New returns a Mechanic at full vitality. onDeath, if non-nil, is called
// exactly once per life cycle when vitality first reaches zero.
func New(cfg Config, onDeath func()) *Mechanic {
	return &Mechanic{cfg: cfg, vitality: MaxVitality, onDeath: onDeath}
}

// Tick evaluates one tick interval and returns the resulting vitality.
func (m *Mechanic) Tick(focused, sessionActive, paused bool) Vitality {
	if !sessionActive || paused {
		return m.vitality
	}
	m.tick++

	if focused {
		m.graceDeadline = nil
		m.vitality = clamp(m.vitality + Vitality(m.cfg.HealAmount))
		return m.vitality
	}

	if m.graceDeadline == nil {
		deadline := m.tick + uint64(m.cfg.GraceTicks)
		m.graceDeadline = &deadline
	}
	if m.tick < *m.graceDeadline {
		return m.vitality
	}

	m.vitality = clamp(m.vitality - Vitality(m.cfg.DamageAmount))
	if m.vitality == 0 && !m.dead {
		m.dead = true
		if m.onDeath != nil {
			m.onDeath()
		}
	}
	return m.vitality
}

// OnSessionReset restores full vitality and clears the death flag and any
// pending grace deadline.
func (m *Mechanic) OnSessionReset() {
	m.vitality = MaxVitality
	m.tick = 0
	m.graceDeadline = nil
	m.dead = false
}

// Restore sets vitality and the death flag from a persisted status. The
// grace period starts clear.
func (m *Mechanic) Restore(v Vitality, dead bool) {
	m.vitality = clamp(v)
	m.dead = dead
	m.tick = 0
	m.graceDeadline = nil
}

// Vitality returns the current vitality.
func (m *Mechanic) Vitality() Vitality { return m.vitality }

// Dead reports whether vitality has hit zero during this life cycle.
func (m *Mechanic) Dead() bool { return m.dead }

// InGrace reports whether an unfocused grace period is pending.
func (m *Mechanic) InGrace() bool {
	return m.graceDeadline != nil && m.tick < *m.graceDeadline
}

func clamp(v Vitality) Vitality {
	switch {
	case v < 0:
		return 0
	case v > MaxVitality:
		return MaxVitality
	}
	return v
}
