// Package rtmonitor publishes real-time scenario/goal events and mirrored
// log records to a broker (spec.md §4.7, C7), grounded on
// original_source/goalee/rtmonitor.py's RTMonitor/RemoteLogHandler pair.
// Emission is best-effort: every failure is logged but never propagated
// to the evaluation core.
package rtmonitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/robotics-4-all/goalee/broker"
	"github.com/robotics-4-all/goalee/internal/glog"
)

// EventMsg is published on the event topic for scenario_started,
// scenario_update, scenario_finished, and per-goal goal_state transitions.
type EventMsg struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// LogMsg is published on the log topic, mirroring every log record
// emitted through the attached logger.
type LogMsg struct {
	Msg   string `json:"msg"`
	Level string `json:"level"`
}

// RTMonitor wraps a shared broker.Conn to publish events and logs for one
// scenario. It implements both goal.EventSink and glog.Sink so goals and
// the structured logger can report through the same object.
type RTMonitor struct {
	conn      broker.Conn
	eventTopic string
	logTopic   string
	log        *zap.SugaredLogger
}

// New attaches a monitor to conn, publishing on etopic/ltopic (the
// conventional monitor.<scenario>.event / .log names, spec.md §6).
func New(conn broker.Conn, etopic, ltopic string) *RTMonitor {
	m := &RTMonitor{conn: conn, eventTopic: etopic, logTopic: ltopic, log: glog.New("rtmonitor")}
	m.log.Infow("initialized monitor topics", "events", etopic, "logs", ltopic)
	return m
}

const publishTimeout = 2 * time.Second

// Emit publishes an EventMsg. Implements goal.EventSink.
func (m *RTMonitor) Emit(eventType string, data map[string]any) {
	if m == nil || m.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := m.conn.Publish(ctx, m.eventTopic, EventMsg{Type: eventType, Data: data}); err != nil {
		m.log.Warnw("failed to publish event", "type", eventType, "error", err)
	}
}

// SendLog publishes a LogMsg. Implements glog.Sink.
func (m *RTMonitor) SendLog(msg, level string) {
	if m == nil || m.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := m.conn.Publish(ctx, m.logTopic, LogMsg{Msg: msg, Level: level}); err != nil {
		m.log.Warnw("failed to publish log", "error", err)
	}
}
