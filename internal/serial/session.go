package serial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"racetimer"
	"racetimer/internal/logger"
)

// Sentinel failures surfaced synchronously to callers.
var (
	ErrNotConnected  = errors.New("not connected to timer hardware")
	ErrNoDeviceFound = errors.New("no timer device found on any serial port")
)

// Broadcaster fans decoded events out to UI clients. Emit must not block the
// caller materially; the session treats it as fire-and-forget.
type Broadcaster interface {
	Emit(event string, data any)
}

// ResultSink persists completed race timing data. Each call is one opaque
// operation that can fail independently of the broadcast; lookups return
// (nil, nil) when nothing matches.
type ResultSink interface {
	FindRace(ctx context.Context, raceID int64) (*racetimer.Race, error)
	FindRaceByHeat(ctx context.Context, heatID int64) (*racetimer.Race, error)
	FindActiveRace(ctx context.Context) (*racetimer.Race, error)
	UpsertLaneResult(ctx context.Context, raceID int64, lane int, timeSec float64, position int) error
	MarkRaceCompleted(ctx context.Context, raceID int64) error
}

// devicePort is the slice of a serial port the session needs. go.bug.st's
// Port satisfies it; tests substitute an in-memory fake.
type devicePort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Config holds session settings loaded from the application config.
type Config struct {
	Port     string // optional pinned port; empty means auto-detect on Connect
	BaudRate int
}

const (
	defaultBaudRate   = 115200
	pollDelay         = 10 * time.Millisecond
	errorBackoff      = 1 * time.Second
	disconnectTimeout = 2 * time.Second
	persistTimeout    = 3 * time.Second
)

// Session owns one serial link to the race timer hardware: connection
// lifecycle, the background read loop, the last-known device status and
// command sends. At most one read loop runs per session.
type Session struct {
	mu         sync.Mutex
	port       devicePort
	portName   string
	baudRate   int
	pinnedPort string
	connected  bool
	lastStatus map[string]any
	stopCh     chan struct{}
	doneCh     chan struct{}

	backoff time.Duration

	broadcaster Broadcaster
	sink        ResultSink
	log         *logger.Logger

	// Injection points for tests; default to the go.bug.st implementations.
	listPorts func() ([]racetimer.PortInfo, error)
	openPort  func(name string, baudRate int) (devicePort, error)
}

// NewSession creates an inert session; call Connect to open the link.
func NewSession(cfg Config, broadcaster Broadcaster, sink ResultSink, log *logger.Logger) *Session {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Session{
		baudRate:    cfg.BaudRate,
		pinnedPort:  cfg.Port,
		broadcaster: broadcaster,
		sink:        sink,
		log:         log,
		backoff:     errorBackoff,
		listPorts:   listDetailedPorts,
		openPort:    openDevicePort,
	}
}

// AvailablePorts enumerates serial ports at call time. Pure query.
func (s *Session) AvailablePorts() ([]racetimer.PortInfo, error) {
	return s.listPorts()
}

// Connected reports whether the link is currently open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// PortName returns the connected port name, or "" when disconnected.
func (s *Session) PortName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ""
	}
	return s.portName
}

// LastStatus returns a copy of the most recent status payload from the
// device, or nil if none has arrived yet.
func (s *Session) LastStatus() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastStatus == nil {
		return nil
	}
	snapshot := make(map[string]any, len(s.lastStatus))
	for k, v := range s.lastStatus {
		snapshot[k] = v
	}
	return snapshot
}

// Connect opens the serial link and starts the read loop. With an empty port
// it uses the configured pinned port, or scans for the first port whose
// description names a known USB-serial bridge chip. Connecting while already
// connected is a no-op. The initial status request is best-effort; its
// failure does not fail Connect.
func (s *Session) Connect(port string) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}

	if port == "" {
		port = s.pinnedPort
	}
	if port == "" {
		found, err := s.autoDetectLocked()
		if err != nil {
			s.mu.Unlock()
			return err
		}
		port = found
	}

	p, err := s.openPort(port, s.baudRate)
	if err != nil {
		s.mu.Unlock()
		s.emit("error", map[string]any{
			"type":    "error",
			"message": fmt.Sprintf("error connecting to serial port: %v", err),
		})
		return fmt.Errorf("open serial port %q: %w", port, err)
	}

	s.port = p
	s.portName = port
	s.connected = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.readLoop(p, s.stopCh, s.doneCh)
	s.mu.Unlock()

	s.log.Infow("connected to timer hardware", "port", port, "baud", s.baudRate)

	if err := s.SendCommand("status", nil); err != nil {
		s.log.Debugw("initial status request failed", "err", err)
	}
	s.emit("hardware_status", map[string]any{
		"connected": true,
		"port":      port,
		"status":    s.LastStatus(),
	})
	return nil
}

// autoDetectLocked scans the available ports for a known USB bridge chip.
func (s *Session) autoDetectLocked() (string, error) {
	ports, err := s.listPorts()
	if err != nil {
		return "", err
	}
	for _, p := range ports {
		if matchesKnownBridge(p.Description) {
			return p.Port, nil
		}
	}
	s.emit("error", map[string]any{
		"type":    "error",
		"message": "no timer device found",
	})
	return "", ErrNoDeviceFound
}

// Disconnect signals the read loop to stop, waits up to two seconds for it
// to exit and closes the port. Disconnecting when not connected succeeds
// trivially.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	stop, done, port := s.stopCh, s.doneCh, s.port
	s.connected = false
	s.port = nil
	s.portName = ""
	s.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(disconnectTimeout):
		// A blocked OS read can outlive the join timeout; closing the port
		// below unblocks it eventually.
		s.log.Warnw("read loop did not stop within timeout")
	}

	if err := port.Close(); err != nil {
		return fmt.Errorf("close serial port: %w", err)
	}
	s.log.Infow("disconnected from timer hardware")
	return nil
}

// SendCommand serializes {"cmd": name, ...params} as one JSON line and
// writes it atomically to the connection. Write failures are reported, not
// retried.
func (s *Session) SendCommand(name string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}

	msg := make(map[string]any, len(params)+1)
	msg["cmd"] = name
	for k, v := range params {
		msg[k] = v
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode command %q: %w", name, err)
	}
	b = append(b, '\n')

	if _, err := s.port.Write(b); err != nil {
		return fmt.Errorf("write command %q: %w", name, err)
	}
	s.log.Debugw("command sent", "cmd", name)
	return nil
}

// readLoop polls the port, frames lines and dispatches decoded events until
// the stop channel closes. Read errors back off and retry; only Disconnect
// ends the loop.
func (s *Session) readLoop(port devicePort, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	s.log.Infow("serial read loop started")

	var framer LineFramer
	buf := make([]byte, 1024)

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			for _, line := range framer.Push(buf[:n]) {
				s.handleLine(line)
			}
		}
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			s.log.Errorw("error reading from serial port", "err", err)
			select {
			case <-stop:
				return
			case <-time.After(s.backoff):
			}
			continue
		}
		if n == 0 {
			// Read timeout expired with no data; yield briefly.
			time.Sleep(pollDelay)
		}
	}
}

func (s *Session) handleLine(line string) {
	ev := DecodeLine(line)
	if ev == nil {
		if IsBootChatter(line) {
			s.log.Debugw("device boot message", "line", line)
		} else {
			s.log.Debugw("non-JSON message from device", "line", line)
		}
		return
	}
	s.dispatch(ev)
}

// dispatch routes one decoded event: status replaces the cached snapshot,
// result-bearing kinds are broadcast and persisted, everything else is
// broadcast or logged. Events carry the port name so consumers always know
// provenance.
func (s *Session) dispatch(ev *Event) {
	s.mu.Lock()
	ev.Fields["port"] = s.portName
	s.mu.Unlock()

	switch ev.Kind {
	case KindStatus:
		s.mu.Lock()
		s.lastStatus = ev.Fields
		port := s.portName
		s.mu.Unlock()
		s.emit("hardware_status", map[string]any{
			"connected": true,
			"port":      port,
			"status":    ev.Fields,
		})

	case KindRaceResult, KindRaceFinish, KindRaceCompleted:
		s.emit(string(ev.Kind), ev.Fields)
		s.persistResult(ev)

	case KindSensorReading, KindRaceStart, KindRaceUpdate:
		s.emit(string(ev.Kind), ev.Fields)

	case KindError:
		s.log.Errorw("device error", "message", ev.Fields["message"])
		s.emit("error", ev.Fields)

	case KindUnrecognized:
		s.log.Warnw("unrecognized device message", "fields", ev.Fields)
	}
}

// persistResult records lane times for a result event, best-effort. The race
// is resolved from race_id, then heat_id, then the most recently started
// in-progress race; failures are logged and swallowed because the broadcast
// already reached operators.
func (s *Session) persistResult(ev *Event) {
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	race, err := s.resolveRace(ctx, ev.Fields)
	if err != nil {
		s.log.Errorw("race lookup failed", "err", err)
		return
	}
	if race == nil {
		s.log.Warnw("race result received but no race could be resolved", "fields", ev.Fields)
		return
	}

	car1 := normalizeSeconds(numberField(ev.Fields, "car1_time"))
	car2 := normalizeSeconds(numberField(ev.Fields, "car2_time"))
	winner, _ := ev.Fields["winner"].(string)

	if err := s.sink.UpsertLaneResult(ctx, race.ID, 1, car1, lanePosition(winner, "car1")); err != nil {
		s.log.Errorw("persist lane 1 result failed", "race_id", race.ID, "err", err)
		return
	}
	if err := s.sink.UpsertLaneResult(ctx, race.ID, 2, car2, lanePosition(winner, "car2")); err != nil {
		s.log.Errorw("persist lane 2 result failed", "race_id", race.ID, "err", err)
		return
	}
	if err := s.sink.MarkRaceCompleted(ctx, race.ID); err != nil {
		s.log.Errorw("mark race completed failed", "race_id", race.ID, "err", err)
		return
	}
	s.log.Infow("race results recorded", "race_id", race.ID,
		"lane1", car1, "lane2", car2, "winner", winner)
}

func (s *Session) resolveRace(ctx context.Context, fields map[string]any) (*racetimer.Race, error) {
	if id, ok := idField(fields, "race_id"); ok {
		return s.sink.FindRace(ctx, id)
	}
	if id, ok := idField(fields, "heat_id"); ok {
		return s.sink.FindRaceByHeat(ctx, id)
	}
	// Compatibility fallback; racy under concurrent heats.
	s.log.Warnw("race result without race_id or heat_id, using most recent in-progress race")
	return s.sink.FindActiveRace(ctx)
}

func (s *Session) emit(event string, data any) {
	if s.broadcaster != nil {
		s.broadcaster.Emit(event, data)
	}
}

// normalizeSeconds converts milliseconds to seconds when the value is large
// enough to be milliseconds. The firmware does not tag the unit on the wire,
// so anything above 1000 is assumed to be milliseconds.
func normalizeSeconds(v float64) float64 {
	if v > 1000 {
		return v / 1000.0
	}
	return v
}

// lanePosition derives a finishing position from the winner tag: 1 for the
// winner, 2 for the loser, 0 for a tie.
func lanePosition(winner, lane string) int {
	switch winner {
	case lane:
		return 1
	case "tie":
		return 0
	default:
		return 2
	}
}

func numberField(fields map[string]any, key string) float64 {
	if v, ok := fields[key].(float64); ok {
		return v
	}
	return 0
}

func idField(fields map[string]any, key string) (int64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}
