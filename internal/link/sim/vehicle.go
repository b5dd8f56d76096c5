package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/roman-kulish/drone-supervisor/internal/link"
)

const (
	defaultHeartbeatPeriod = time.Second
	defaultTelemetryPeriod = 100 * time.Millisecond
	defaultMailboxSize     = 64
)

// WithStart places the vehicle at (x, y, z) heading yaw radians.
func WithStart(x, y, z, yaw float64) func(*Vehicle) {
	return func(v *Vehicle) {
		v.x, v.y, v.z, v.yaw = x, y, z, yaw
	}
}

// WithHeartbeatPeriod sets how often the vehicle sends a heartbeat.
func WithHeartbeatPeriod(d time.Duration) func(*Vehicle) {
	return func(v *Vehicle) {
		v.heartbeatPeriod = d
	}
}

// WithTelemetryPeriod sets how often position and attitude are reported.
func WithTelemetryPeriod(d time.Duration) func(*Vehicle) {
	return func(v *Vehicle) {
		v.telemetryPeriod = d
	}
}

// WithSilenceAfter makes the vehicle stop sending heartbeats after d, which
// looks like a lost link to the receiver.
func WithSilenceAfter(d time.Duration) func(*Vehicle) {
	return func(v *Vehicle) {
		v.silenceAfter = d
	}
}

// Stats counts what the vehicle received from the ground station.
type Stats struct {
	Heartbeats      int
	AltitudeChanges int
	YawChanges      int
}

// Vehicle is an in-process link.Link flying a simple kinematic model. It
// answers altitude and yaw commands and reports position, attitude and
// heartbeats like a real autopilot would.
type Vehicle struct {
	heartbeatPeriod time.Duration
	telemetryPeriod time.Duration
	silenceAfter    time.Duration

	mailbox *link.Mailbox
	started time.Time
	linked  chan struct{}

	mu         sync.Mutex
	x, y, z    float64
	yaw        float64
	vz         float64
	yawRate    float64
	altTarget  *float64
	climbRate  float64
	yawPending float64 // degrees left to turn, signed
	turnRate   float64 // deg/s
	stats      Stats

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts a simulated vehicle.
func New(options ...func(*Vehicle)) (*Vehicle, error) {
	v := Vehicle{
		heartbeatPeriod: defaultHeartbeatPeriod,
		telemetryPeriod: defaultTelemetryPeriod,
		linked:          make(chan struct{}),
	}

	for _, option := range options {
		option(&v)
	}

	if v.heartbeatPeriod <= 0 || v.telemetryPeriod <= 0 {
		return nil, fmt.Errorf("invalid vehicle periods: heartbeat=%s, telemetry=%s", v.heartbeatPeriod, v.telemetryPeriod)
	}

	mailbox, err := link.NewMailbox(defaultMailboxSize)
	if err != nil {
		return nil, err
	}
	v.mailbox = mailbox

	var ctx context.Context
	ctx, v.cancel = context.WithCancel(context.Background())
	v.started = time.Now()

	v.wg.Add(2)
	go v.heartbeats(ctx)
	go v.fly(ctx)

	return &v, nil
}

func (v *Vehicle) heartbeats(ctx context.Context) {
	defer v.wg.Done()

	ticker := time.NewTicker(v.heartbeatPeriod)
	defer ticker.Stop()

	v.mailbox.Put(link.Heartbeat{SystemID: 1})
	close(v.linked)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if v.silenceAfter > 0 && time.Since(v.started) >= v.silenceAfter {
				continue
			}
			v.mailbox.Put(link.Heartbeat{SystemID: 1})
		}
	}
}

func (v *Vehicle) fly(ctx context.Context) {
	defer v.wg.Done()

	ticker := time.NewTicker(v.telemetryPeriod)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			position, attitude := v.step(now.Sub(last), now)
			last = now

			v.mailbox.Put(position)
			v.mailbox.Put(attitude)
		}
	}
}

// step advances the model by dt and returns the messages describing the new state.
func (v *Vehicle) step(dt time.Duration, now time.Time) (link.LocalPosition, link.Attitude) {
	v.mu.Lock()
	defer v.mu.Unlock()

	seconds := dt.Seconds()

	v.vz = 0
	if v.altTarget != nil {
		remaining := *v.altTarget - v.z
		delta := math.Copysign(math.Min(math.Abs(remaining), v.climbRate*seconds), remaining)
		v.z += delta
		if seconds > 0 {
			v.vz = delta / seconds
		}
		if v.z == *v.altTarget {
			v.altTarget = nil
		}
	}

	v.yawRate = 0
	if v.yawPending != 0 {
		turn := math.Copysign(math.Min(math.Abs(v.yawPending), v.turnRate*seconds), v.yawPending)
		v.yawPending -= turn
		v.yaw = wrap(v.yaw + turn*math.Pi/180)
		if seconds > 0 {
			v.yawRate = turn * math.Pi / 180 / seconds
		}
	}

	bootMs := uint32(now.Sub(v.started).Milliseconds())
	return link.LocalPosition{
			TimeBootMs: bootMs,
			X:          v.x,
			Y:          v.y,
			Z:          v.z,
			VZ:         v.vz,
		}, link.Attitude{
			TimeBootMs: bootMs,
			Yaw:        v.yaw,
			YawSpeed:   v.yawRate,
		}
}

func (v *Vehicle) WaitForInitialLink(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-v.linked:
		return nil
	case <-timer.C:
		return link.ErrNoLink
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Vehicle) Receive(ctx context.Context, timeout time.Duration, classes ...link.Class) (link.Message, error) {
	return v.mailbox.Get(ctx, timeout, classes...)
}

func (v *Vehicle) SendHeartbeat() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stats.Heartbeats++
	return nil
}

func (v *Vehicle) SendAltitudeChange(_ int, climbRate, altitude float64) error {
	if climbRate <= 0 {
		return fmt.Errorf("invalid climb rate: %f", climbRate)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.altTarget = &altitude
	v.climbRate = climbRate
	v.stats.AltitudeChanges++
	return nil
}

func (v *Vehicle) SendYawChange(magnitude, turnRate float64, direction int, relative bool) error {
	if turnRate <= 0 {
		return fmt.Errorf("invalid turn rate: %f", turnRate)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	delta := magnitude
	if direction < 0 {
		delta = -magnitude
	}
	if !relative {
		// absolute heading in degrees, take the shortest turn
		delta = wrap(magnitude*math.Pi/180-v.yaw) * 180 / math.Pi
	}

	v.yawPending = delta
	v.turnRate = turnRate
	v.stats.YawChanges++
	return nil
}

// Stats returns what the vehicle received so far.
func (v *Vehicle) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.stats
}

// Close stops the vehicle.
func (v *Vehicle) Close() error {
	v.closeOnce.Do(func() {
		v.cancel()
		v.wg.Wait()
		v.mailbox.Close()
	})
	return nil
}

// wrap normalizes an angle in radians into (-π, π].
func wrap(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
