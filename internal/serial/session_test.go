package serial

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"racetimer"
)

// ---- fakes ----

// fakePort is an in-memory serial port: queued chunks come back from Read,
// writes are captured, and Close unblocks pending reads.
type fakePort struct {
	mu     sync.Mutex
	readCh chan []byte
	errCh  chan error
	closed chan struct{}
	once   sync.Once
	writes []string
}

func newFakePort() *fakePort {
	return &fakePort{
		readCh: make(chan []byte, 16),
		errCh:  make(chan error, 4),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) feed(s string) { p.readCh <- []byte(s) }

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case b := <-p.readCh:
		return copy(buf, b), nil
	case err := <-p.errCh:
		return 0, err
	case <-p.closed:
		return 0, io.EOF
	case <-time.After(5 * time.Millisecond):
		// Emulates the hardware read timeout expiring with no data.
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.writes = append(p.writes, string(b))
	p.mu.Unlock()
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

// fakeEmitter records broadcast events.
type fakeEmitter struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (e *fakeEmitter) Emit(event string, data any) {
	e.mu.Lock()
	e.events = append(e.events, event)
	e.data = append(e.data, data)
	e.mu.Unlock()
}

func (e *fakeEmitter) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == event {
			n++
		}
	}
	return n
}

// fakeSink records persistence calls.
type laneCall struct {
	raceID   int64
	lane     int
	timeSec  float64
	position int
}

type fakeSink struct {
	mu        sync.Mutex
	byID      map[int64]*racetimer.Race
	byHeat    map[int64]*racetimer.Race
	active    *racetimer.Race
	lanes     []laneCall
	completed []int64

	findRaceCalls   int
	findByHeatCalls int
	findActiveCalls int
}

func (f *fakeSink) FindRace(_ context.Context, raceID int64) (*racetimer.Race, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findRaceCalls++
	return f.byID[raceID], nil
}

func (f *fakeSink) FindRaceByHeat(_ context.Context, heatID int64) (*racetimer.Race, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findByHeatCalls++
	return f.byHeat[heatID], nil
}

func (f *fakeSink) FindActiveRace(_ context.Context) (*racetimer.Race, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findActiveCalls++
	return f.active, nil
}

func (f *fakeSink) UpsertLaneResult(_ context.Context, raceID int64, lane int, timeSec float64, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lanes = append(f.lanes, laneCall{raceID, lane, timeSec, position})
	return nil
}

func (f *fakeSink) MarkRaceCompleted(_ context.Context, raceID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, raceID)
	return nil
}

func (f *fakeSink) laneCalls() []laneCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]laneCall(nil), f.lanes...)
}

func (f *fakeSink) completedRaces() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.completed...)
}

// newTestSession wires a session to a fake port, emitter and sink. The port
// enumeration returns one uninteresting port plus one CH340 bridge.
func newTestSession(t *testing.T, sink ResultSink) (*Session, *fakePort, *fakeEmitter) {
	t.Helper()
	port := newFakePort()
	emitter := &fakeEmitter{}
	s := NewSession(Config{}, emitter, sink, nil)
	s.backoff = 5 * time.Millisecond
	s.listPorts = func() ([]racetimer.PortInfo, error) {
		return []racetimer.PortInfo{
			{Port: "/dev/ttyS0", Description: "PCI Serial Port"},
			{Port: "/dev/ttyUSB0", Description: "USB2.0-Serial CH340"},
		}, nil
	}
	s.openPort = func(name string, baudRate int) (devicePort, error) {
		if name != "/dev/ttyUSB0" {
			return nil, errors.New("no such port: " + name)
		}
		if baudRate != defaultBaudRate {
			t.Errorf("baud=%d, want %d", baudRate, defaultBaudRate)
		}
		return port, nil
	}
	return s, port, emitter
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

// ---- tests ----

func TestSession_SendCommandRequiresConnection(t *testing.T) {
	s, _, _ := newTestSession(t, nil)
	if err := s.SendCommand("status", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err=%v, want ErrNotConnected", err)
	}
}

func TestSession_ConnectAutoDetectsBridge(t *testing.T) {
	s, port, emitter := newTestSession(t, nil)

	if err := s.Connect(""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect()

	if !s.Connected() || s.PortName() != "/dev/ttyUSB0" {
		t.Fatalf("connected=%v port=%q", s.Connected(), s.PortName())
	}

	// Connect fires an initial best-effort status request
	writes := port.written()
	if len(writes) != 1 || !strings.Contains(writes[0], `"cmd":"status"`) {
		t.Fatalf("writes=%v", writes)
	}
	if !strings.HasSuffix(writes[0], "\n") {
		t.Fatalf("command not newline-terminated: %q", writes[0])
	}
	if emitter.count("hardware_status") != 1 {
		t.Fatalf("hardware_status events=%d", emitter.count("hardware_status"))
	}

	// Connecting again is a no-op
	if err := s.Connect(""); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if got := port.written(); len(got) != 1 {
		t.Fatalf("second connect should not resend status: %v", got)
	}
}

func TestSession_ConnectNoDeviceFound(t *testing.T) {
	s, _, emitter := newTestSession(t, nil)
	s.listPorts = func() ([]racetimer.PortInfo, error) {
		return []racetimer.PortInfo{{Port: "/dev/ttyS0", Description: "PCI Serial Port"}}, nil
	}

	if err := s.Connect(""); !errors.Is(err, ErrNoDeviceFound) {
		t.Fatalf("err=%v, want ErrNoDeviceFound", err)
	}
	if s.Connected() {
		t.Fatalf("must not be connected after failed detect")
	}
	if emitter.count("error") != 1 {
		t.Fatalf("error events=%d", emitter.count("error"))
	}
}

func TestSession_StatusUpdatesSnapshot(t *testing.T) {
	s, port, emitter := newTestSession(t, nil)
	if err := s.Connect(""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect()

	port.feed("{\"type\":\"status\",\"sensors_powered\":true}\n")

	waitFor(t, func() bool { return s.LastStatus() != nil })
	st := s.LastStatus()
	if st["sensors_powered"] != true {
		t.Fatalf("status snapshot: %+v", st)
	}
	if st["port"] != "/dev/ttyUSB0" {
		t.Fatalf("port not injected: %+v", st)
	}
	// One emit from Connect, one from the status line
	waitFor(t, func() bool { return emitter.count("hardware_status") == 2 })
}

func TestSession_ResultPersistedWithNormalizedTimes(t *testing.T) {
	sink := &fakeSink{byID: map[int64]*racetimer.Race{
		7: {ID: 7, HeatID: 3, Status: racetimer.RaceStatusInProgress},
	}}
	s, port, emitter := newTestSession(t, sink)
	if err := s.Connect(""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect()

	// Times on the wire are milliseconds when > 1000, seconds otherwise
	port.feed("{\"type\":\"race_result\",\"race_id\":7,\"car1_time\":2500,\"car2_time\":980,\"winner\":\"car1\"}\n")

	waitFor(t, func() bool { return len(sink.completedRaces()) == 1 })
	if got := sink.completedRaces(); got[0] != 7 {
		t.Fatalf("completed=%v", got)
	}

	lanes := sink.laneCalls()
	if len(lanes) != 2 {
		t.Fatalf("lane calls=%v", lanes)
	}
	if lanes[0] != (laneCall{raceID: 7, lane: 1, timeSec: 2.5, position: 1}) {
		t.Fatalf("lane 1: %+v", lanes[0])
	}
	if lanes[1] != (laneCall{raceID: 7, lane: 2, timeSec: 980, position: 2}) {
		t.Fatalf("lane 2: %+v", lanes[1])
	}
	if emitter.count("race_result") != 1 {
		t.Fatalf("race_result events=%d", emitter.count("race_result"))
	}
}

func TestSession_ResultResolutionFallsBack(t *testing.T) {
	heatRace := &racetimer.Race{ID: 11, HeatID: 4, Status: racetimer.RaceStatusInProgress}
	activeRace := &racetimer.Race{ID: 12, Status: racetimer.RaceStatusInProgress}
	sink := &fakeSink{
		byHeat: map[int64]*racetimer.Race{4: heatRace},
		active: activeRace,
	}
	s, port, _ := newTestSession(t, sink)
	if err := s.Connect(""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect()

	// No race_id: resolved via heat_id
	port.feed("{\"type\":\"race_finish\",\"heat_id\":4,\"car1_time\":5.1,\"car2_time\":5.4,\"winner\":\"car1\"}\n")
	waitFor(t, func() bool { return len(sink.completedRaces()) == 1 })
	if sink.completedRaces()[0] != 11 {
		t.Fatalf("completed=%v", sink.completedRaces())
	}

	// Neither id: falls back to the most recent in-progress race
	port.feed("{\"type\":\"race_result\",\"car1_time\":4.2,\"car2_time\":4.2,\"winner\":\"tie\"}\n")
	waitFor(t, func() bool { return len(sink.completedRaces()) == 2 })
	if sink.completedRaces()[1] != 12 {
		t.Fatalf("completed=%v", sink.completedRaces())
	}

	// A tie records position 0 for both lanes
	lanes := sink.laneCalls()
	last2 := lanes[len(lanes)-2:]
	if last2[0].position != 0 || last2[1].position != 0 {
		t.Fatalf("tie positions: %+v", last2)
	}
}

func TestNormalizeSeconds_MillisecondBoundary(t *testing.T) {
	cases := map[float64]float64{
		500:    500,
		980:    980,
		1000:   1000, // exactly 1000 is taken as seconds
		1001:   1.001,
		1500:   1.5,
		2500:   2.5,
		0:      0,
		300000: 300,
	}
	for in, want := range cases {
		if got := normalizeSeconds(in); got != want {
			t.Fatalf("normalizeSeconds(%v)=%v, want %v", in, got, want)
		}
	}
}

func TestLanePosition(t *testing.T) {
	cases := []struct {
		winner, lane string
		want         int
	}{
		{"car1", "car1", 1},
		{"car1", "car2", 2},
		{"car2", "car2", 1},
		{"tie", "car1", 0},
		{"tie", "car2", 0},
	}
	for _, tc := range cases {
		if got := lanePosition(tc.winner, tc.lane); got != tc.want {
			t.Fatalf("lanePosition(%q, %q)=%d, want %d", tc.winner, tc.lane, got, tc.want)
		}
	}
}

func TestSession_SplitLinesAcrossReads(t *testing.T) {
	s, port, emitter := newTestSession(t, nil)
	if err := s.Connect(""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect()

	port.feed("{\"type\":\"sensor_read")
	port.feed("ing\",\"sensor1\":512,\"sensor2\":498}\n")

	waitFor(t, func() bool { return emitter.count("sensor_reading") == 1 })
}

func TestSession_DisconnectStopsLoopAndIsIdempotent(t *testing.T) {
	s, port, _ := newTestSession(t, nil)
	if err := s.Connect(""); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := s.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if s.Connected() || s.PortName() != "" {
		t.Fatalf("still connected after disconnect")
	}
	select {
	case <-port.closed:
	default:
		t.Fatalf("port not closed")
	}

	// Second disconnect is a no-op
	if err := s.Disconnect(); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
}

func TestSession_ReadErrorBacksOffAndRecovers(t *testing.T) {
	s, port, emitter := newTestSession(t, nil)
	if err := s.Connect(""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect()

	// Inject one read error, then normal traffic; the loop must survive
	port.errCh <- errors.New("device glitch")
	port.feed("{\"type\":\"race_start\",\"race_id\":2}\n")

	waitFor(t, func() bool { return emitter.count("race_start") == 1 })
}
