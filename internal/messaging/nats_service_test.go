/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package messaging

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/errs"
	"github.com/loqalabs/loqa-voicechat/internal/events"
)

type published struct {
	subject string
	data    []byte
}

// mockConn records publishes instead of talking to a server
type mockConn struct {
	mu         sync.Mutex
	messages   []published
	publishErr error
	closed     bool
}

func (m *mockConn) Publish(subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.messages = append(m.messages, published{subject: subject, data: data})
	return nil
}

func (m *mockConn) Subscribe(string, nats.MsgHandler) (*nats.Subscription, error) {
	return nil, errors.New("not supported")
}

func (m *mockConn) IsConnected() bool { return !m.closed }

func (m *mockConn) Stats() nats.Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nats.Statistics{OutMsgs: uint64(len(m.messages))}
}

func (m *mockConn) Close() { m.closed = true }

func newTestService(mc *mockConn) *NATSService {
	ns := NewNATSService(config.NATSConfig{Subject: "voicechat.turns"})
	ns.conn = mc
	return ns
}

func TestPublishTurnEvent(t *testing.T) {
	successful := events.NewTurnEvent("session-1", "conv-1")
	successful.SetTranscription("سلام")
	successful.SetResponse("جواب", false)
	successful.Complete()

	failed := events.NewTurnEvent("session-2", "conv-2")
	failed.SetError(errs.Wrap(errs.ErrGeneration, errs.ReasonGeneration))

	tests := []struct {
		name    string
		event   *events.TurnEvent
		subject string
	}{
		{name: "successful turn", event: successful, subject: "voicechat.turns.completed"},
		{name: "failed turn", event: failed, subject: "voicechat.turns.failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &mockConn{}
			ns := newTestService(mc)

			require.NoError(t, ns.PublishTurnEvent(tt.event))
			require.Len(t, mc.messages, 1)
			assert.Equal(t, tt.subject, mc.messages[0].subject)

			var decoded events.TurnEvent
			require.NoError(t, json.Unmarshal(mc.messages[0].data, &decoded))
			assert.Equal(t, tt.event.UUID, decoded.UUID)
			assert.Equal(t, tt.event.SessionID, decoded.SessionID)
			assert.Equal(t, tt.event.Success, decoded.Success)
		})
	}
}

func TestPublishTurnEvent_Errors(t *testing.T) {
	event := events.NewTurnEvent("session-1", "conv-1")

	t.Run("not connected", func(t *testing.T) {
		ns := NewNATSService(config.NATSConfig{Subject: "voicechat.turns"})
		assert.ErrorIs(t, ns.PublishTurnEvent(event), ErrNotConnected)
		_, err := ns.SubscribeToTurnEvents(func(*events.TurnEvent) {})
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.False(t, ns.IsConnected())
		assert.Equal(t, nats.Statistics{}, ns.GetStats())
	})

	t.Run("publish failure", func(t *testing.T) {
		mc := &mockConn{publishErr: nats.ErrConnectionClosed}
		ns := newTestService(mc)
		err := ns.PublishTurnEvent(event)
		assert.ErrorIs(t, err, nats.ErrConnectionClosed)
		assert.Contains(t, err.Error(), "voicechat.turns.completed")
	})
}

func TestNATSService_Lifecycle(t *testing.T) {
	mc := &mockConn{}
	ns := newTestService(mc)

	assert.True(t, ns.IsConnected())
	require.NoError(t, ns.PublishTurnEvent(events.NewTurnEvent("s", "c")))
	assert.Equal(t, uint64(1), ns.GetStats().OutMsgs)

	ns.Close()
	assert.True(t, mc.closed)
	assert.False(t, ns.IsConnected())
}

func TestConnect_Unreachable(t *testing.T) {
	ns := NewNATSService(config.NATSConfig{
		URL:           "nats://127.0.0.1:1",
		Subject:       "voicechat.turns",
		MaxReconnect:  0,
		ReconnectWait: 10 * time.Millisecond,
	})

	err := ns.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
	assert.False(t, ns.IsConnected())
}

func TestNoopPublisher(t *testing.T) {
	var p EventPublisher = NoopPublisher{}
	assert.NoError(t, p.PublishTurnEvent(events.NewTurnEvent("s", "c")))
	p.Close()
}
