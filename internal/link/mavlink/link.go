package mavlink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v2"
	"github.com/bluenviron/gomavlib/v2/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v2/pkg/message"

	"github.com/roman-kulish/drone-supervisor/internal/link"
)

const (
	defaultSystemID       = 255
	defaultTargetSystem   = 1
	defaultMailboxPerType = 64
)

// Config describes how to reach the vehicle.
type Config struct {
	Endpoint        string // Connection string, see ParseEndpoint
	SystemID        uint8  // Our own system ID, 255 when zero
	TargetSystem    uint8  // Vehicle system ID, 1 when zero
	TargetComponent uint8  // Vehicle component ID, 0 targets all components
	MailboxSize     int    // Messages kept per class, 64 when zero
}

// WithLogger sets the logger for the link
func WithLogger(logger *slog.Logger) func(*Link) {
	return func(l *Link) {
		l.logger = logger.With(slog.String("link", l.endpoint))
	}
}

// Link is a link.Link speaking MAVLink v2 through gomavlib. A single reader
// goroutine decodes incoming frames into the mailbox, so any number of
// workers can receive concurrently.
type Link struct {
	endpoint string
	node     *gomavlib.Node
	mailbox  *link.Mailbox

	targetSystem    uint8
	targetComponent uint8

	linked     chan struct{}
	linkedOnce sync.Once

	closeOnce sync.Once
	done      chan struct{}

	logger *slog.Logger
}

// Dial opens the endpoint and starts decoding incoming frames.
func Dial(config Config, options ...func(*Link)) (*Link, error) {
	endpoint, err := ParseEndpoint(config.Endpoint)
	if err != nil {
		return nil, err
	}

	if config.SystemID == 0 {
		config.SystemID = defaultSystemID
	}
	if config.TargetSystem == 0 {
		config.TargetSystem = defaultTargetSystem
	}
	if config.MailboxSize == 0 {
		config.MailboxSize = defaultMailboxPerType
	}

	mailbox, err := link.NewMailbox(config.MailboxSize)
	if err != nil {
		return nil, err
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{endpoint},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: config.SystemID,

		// heartbeats are sent by the heartbeat sender worker
		HeartbeatDisable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening endpoint '%s': %w", config.Endpoint, err)
	}

	l := Link{
		endpoint:        config.Endpoint,
		node:            node,
		mailbox:         mailbox,
		targetSystem:    config.TargetSystem,
		targetComponent: config.TargetComponent,
		linked:          make(chan struct{}),
		done:            make(chan struct{}),
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&l)
	}

	go l.readEvents()

	return &l, nil
}

func (l *Link) readEvents() {
	defer close(l.done)

	for evt := range l.node.Events() {
		switch e := evt.(type) {
		case *gomavlib.EventFrame:
			if msg := decode(e.SystemID(), e.Message()); msg != nil {
				if _, ok := msg.(link.Heartbeat); ok {
					l.linkedOnce.Do(func() {
						l.logger.Info("vehicle link established", slog.Int("systemID", int(msg.(link.Heartbeat).SystemID)))
						close(l.linked)
					})
				}
				l.mailbox.Put(msg)
			}

		case *gomavlib.EventChannelOpen:
			l.logger.Debug("channel open", slog.String("channel", fmt.Sprintf("%v", e.Channel)))

		case *gomavlib.EventChannelClose:
			l.logger.Warn("channel closed", slog.String("channel", fmt.Sprintf("%v", e.Channel)))

		case *gomavlib.EventParseError:
			l.logger.Debug(fmt.Sprintf("parse error: %s", e.Error.Error()))
		}
	}
}

func decode(systemID uint8, m message.Message) link.Message {
	switch msg := m.(type) {
	case *common.MessageHeartbeat:
		return link.Heartbeat{SystemID: systemID}

	case *common.MessageLocalPositionNed:
		return link.LocalPosition{
			TimeBootMs: msg.TimeBootMs,
			X:          float64(msg.X),
			Y:          float64(msg.Y),
			Z:          float64(msg.Z),
			VX:         float64(msg.Vx),
			VY:         float64(msg.Vy),
			VZ:         float64(msg.Vz),
		}

	case *common.MessageAttitude:
		return link.Attitude{
			TimeBootMs: msg.TimeBootMs,
			Roll:       float64(msg.Roll),
			Pitch:      float64(msg.Pitch),
			Yaw:        float64(msg.Yaw),
			RollSpeed:  float64(msg.Rollspeed),
			PitchSpeed: float64(msg.Pitchspeed),
			YawSpeed:   float64(msg.Yawspeed),
		}

	default:
		return nil
	}
}

// WaitForInitialLink blocks until the first heartbeat of the vehicle arrives.
func (l *Link) WaitForInitialLink(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.linked:
		return nil
	case <-l.done:
		return link.ErrClosed
	case <-timer.C:
		return fmt.Errorf("%w: no heartbeat within %s", link.ErrNoLink, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Link) Receive(ctx context.Context, timeout time.Duration, classes ...link.Class) (link.Message, error) {
	return l.mailbox.Get(ctx, timeout, classes...)
}

func (l *Link) SendHeartbeat() error {
	return l.write(&common.MessageHeartbeat{
		Type:           common.MAV_TYPE_GCS,
		Autopilot:      common.MAV_AUTOPILOT_INVALID,
		MavlinkVersion: 3,
	})
}

func (l *Link) SendAltitudeChange(direction int, climbRate, altitude float64) error {
	_ = direction // the climb direction follows from the target altitude

	return l.write(&common.MessageCommandLong{
		TargetSystem:    l.targetSystem,
		TargetComponent: l.targetComponent,
		Command:         common.MAV_CMD_CONDITION_CHANGE_ALT,
		Param1:          float32(climbRate),
		Param7:          float32(altitude),
	})
}

func (l *Link) SendYawChange(magnitude, turnRate float64, direction int, relative bool) error {
	var offset float32
	if relative {
		offset = 1
	}

	return l.write(&common.MessageCommandLong{
		TargetSystem:    l.targetSystem,
		TargetComponent: l.targetComponent,
		Command:         common.MAV_CMD_CONDITION_YAW,
		Param1:          float32(magnitude),
		Param2:          float32(turnRate),
		Param3:          float32(direction),
		Param4:          offset,
	})
}

func (l *Link) write(msg message.Message) error {
	select {
	case <-l.done:
		return link.ErrClosed
	default:
	}

	l.node.WriteMessageAll(msg)
	return nil
}

// Close stops the node and releases every receiver.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.node.Close()
		l.mailbox.Close()
	})
	return nil
}
