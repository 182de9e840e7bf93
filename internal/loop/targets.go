package loop

import (
	"sort"
	"sync"
	"time"

	"github.com/san-kum/velctl/internal/velocity"
)

// Constant commands the same speed for the whole run.
type Constant float64

func (c Constant) Target(time.Duration) velocity.Sample {
	return velocity.Known(float64(c))
}

// Waypoint switches the target to Speed at time At.
type Waypoint struct {
	At    time.Duration `yaml:"at"`
	Speed float64       `yaml:"speed"`
}

// Profile is a piecewise constant target. Before the first waypoint the
// target is zero.
type Profile struct {
	points []Waypoint
}

func NewProfile(points []Waypoint) *Profile {
	p := append([]Waypoint(nil), points...)
	sort.SliceStable(p, func(i, j int) bool { return p[i].At < p[j].At })
	return &Profile{points: p}
}

func (p *Profile) Target(elapsed time.Duration) velocity.Sample {
	i := sort.Search(len(p.points), func(i int) bool { return p.points[i].At > elapsed })
	if i == 0 {
		return velocity.Known(0)
	}
	return velocity.Known(p.points[i-1].Speed)
}

// End is the time of the last waypoint.
func (p *Profile) End() time.Duration {
	if len(p.points) == 0 {
		return 0
	}
	return p.points[len(p.points)-1].At
}

// Manual is a target changed from another goroutine, e.g. the dashboard.
type Manual struct {
	mu    sync.Mutex
	speed float64
	limit float64
}

// NewManual starts at speed; Set and Nudge clamp to [-limit, limit].
func NewManual(speed, limit float64) *Manual {
	m := &Manual{limit: limit}
	m.Set(speed)
	return m
}

func (m *Manual) Set(speed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speed = velocity.Clamp(speed, -m.limit, m.limit)
}

func (m *Manual) Nudge(delta float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speed = velocity.Clamp(m.speed+delta, -m.limit, m.limit)
	return m.speed
}

func (m *Manual) Target(time.Duration) velocity.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return velocity.Known(m.speed)
}
