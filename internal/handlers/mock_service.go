package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"racetimer"
	"racetimer/internal/service"
	"racetimer/internal/ws"
)

// ---- Service Mocks ----

type mockHardware struct {
	connectErr    error
	disconnectErr error
	commandErr    error
	startRaceErr  error
	status        racetimer.HardwareStatus
	ports         []racetimer.PortInfo
	portsErr      error

	lastConnectPort string
	lastCommand     string
	lastParams      map[string]any
	lastRaceID      int64

	connectCalls    int
	disconnectCalls int
	commandCalls    int
	startRaceCalls  int
	resetTimerCalls int
	calibrateCalls  int
}

func (m *mockHardware) Connect(ctx context.Context, port string) error {
	m.connectCalls++
	m.lastConnectPort = port
	return m.connectErr
}
func (m *mockHardware) Disconnect(ctx context.Context) error {
	m.disconnectCalls++
	return m.disconnectErr
}
func (m *mockHardware) Status() racetimer.HardwareStatus {
	return m.status
}
func (m *mockHardware) Ports() ([]racetimer.PortInfo, error) {
	return m.ports, m.portsErr
}
func (m *mockHardware) SendCommand(name string, params map[string]any) error {
	m.commandCalls++
	m.lastCommand = name
	m.lastParams = params
	return m.commandErr
}
func (m *mockHardware) StartRace(ctx context.Context, raceID int64) error {
	m.startRaceCalls++
	m.lastRaceID = raceID
	return m.startRaceErr
}
func (m *mockHardware) ResetTimer() error {
	m.resetTimerCalls++
	return m.commandErr
}
func (m *mockHardware) Calibrate() error {
	m.calibrateCalls++
	return m.commandErr
}

type mockCountdown struct {
	status racetimer.CountdownStatus

	lastHeatID   int64
	lastDuration int
	startCalls   int
	pauseCalls   int
	resetCalls   int
	statusCalls  int
}

func (m *mockCountdown) withHeat(heatID int64) racetimer.CountdownStatus {
	st := m.status
	st.HeatID = heatID
	return st
}

func (m *mockCountdown) Start(heatID int64, duration int) racetimer.CountdownStatus {
	m.startCalls++
	m.lastHeatID = heatID
	m.lastDuration = duration
	return m.withHeat(heatID)
}
func (m *mockCountdown) Pause(heatID int64) racetimer.CountdownStatus {
	m.pauseCalls++
	m.lastHeatID = heatID
	return m.withHeat(heatID)
}
func (m *mockCountdown) Reset(heatID int64, duration int) racetimer.CountdownStatus {
	m.resetCalls++
	m.lastHeatID = heatID
	m.lastDuration = duration
	return m.withHeat(heatID)
}
func (m *mockCountdown) Status(heatID int64) racetimer.CountdownStatus {
	m.statusCalls++
	m.lastHeatID = heatID
	return m.withHeat(heatID)
}

type mockEventLog struct {
	resp     []racetimer.RaceEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]racetimer.RaceEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, ws.NewHub(nil), nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}
