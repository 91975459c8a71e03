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

package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-voicechat/internal/audio"
	"github.com/loqalabs/loqa-voicechat/internal/errs"
)

func greetingTurn(handle string) Turn {
	return Turn{
		Role:  RoleAssistant,
		Text:  "السلام علیکم",
		Audio: &AudioRef{Handle: audio.Handle(handle), Format: "mp3", DurationMS: 1000},
	}
}

func TestNewSession_StartsWithGreeting(t *testing.T) {
	s := NewSession(greetingTurn("g1"))

	conv := s.Snapshot()
	require.Len(t, conv.Turns, 1)
	assert.Equal(t, RoleAssistant, conv.Turns[0].Role)
	assert.True(t, conv.Turns[0].HasAudio())
	assert.NotEmpty(t, conv.Turns[0].ID)
	assert.False(t, conv.Turns[0].CreatedAt.IsZero())
	assert.Empty(t, s.Archive())
}

func TestSession_AppendKeepsOrder(t *testing.T) {
	s := NewSession(greetingTurn("g1"))

	user := s.Append(Turn{Role: RoleUser, Text: "one"})
	assistant := s.Append(Turn{Role: RoleAssistant, Text: "two"})

	conv := s.Snapshot()
	require.Len(t, conv.Turns, 3)
	assert.Equal(t, user.ID, conv.Turns[1].ID)
	assert.Equal(t, assistant.ID, conv.Turns[2].ID)
	assert.Nil(t, conv.Turns[1].Audio)
	assert.False(t, conv.Turns[1].HasAudio())
}

func TestSession_ArchiveAndResetOrder(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("%d resets", n), func(t *testing.T) {
			s := NewSession(greetingTurn("g0"))

			for i := 0; i < n; i++ {
				s.Append(Turn{Role: RoleUser, Text: fmt.Sprintf("message %d", i)})

				index := s.ArchiveAndReset(greetingTurn(fmt.Sprintf("g%d", i+1)))
				assert.Equal(t, i, index)

				active := s.Snapshot()
				require.Len(t, active.Turns, 1)
				assert.Equal(t, RoleAssistant, active.Turns[0].Role)
			}

			archive := s.Archive()
			require.Len(t, archive, n)
			for i, conv := range archive {
				require.Len(t, conv.Turns, 2)
				assert.Equal(t, fmt.Sprintf("message %d", i), conv.Turns[1].Text)
			}
		})
	}
}

func TestSession_TwoNewChats(t *testing.T) {
	s := NewSession(greetingTurn("g0"))
	before := len(s.Archive())

	s.ArchiveAndReset(greetingTurn("g1"))
	s.ArchiveAndReset(greetingTurn("g2"))

	assert.Len(t, s.Archive(), before+2)
	assert.Len(t, s.Snapshot().Turns, 1)
}

func TestSession_SelectIsNonDestructive(t *testing.T) {
	s := NewSession(greetingTurn("g0"))
	s.Append(Turn{Role: RoleUser, Text: "first chat"})
	s.ArchiveAndReset(greetingTurn("g1"))
	s.Append(Turn{Role: RoleUser, Text: "second chat"})
	s.ArchiveAndReset(greetingTurn("g2"))

	archiveBefore := s.Archive()

	require.NoError(t, s.Select(0))
	active := s.Snapshot()
	require.Len(t, active.Turns, 2)
	assert.Equal(t, "first chat", active.Turns[1].Text)
	assert.Equal(t, archiveBefore, s.Archive())

	// Continuing the selected conversation leaves the archived copy intact
	s.Append(Turn{Role: RoleUser, Text: "follow up"})
	require.NoError(t, s.MarkPlayed(active.Turns[0].ID))
	assert.Equal(t, archiveBefore, s.Archive())
	assert.Len(t, s.Snapshot().Turns, 3)
}

func TestSession_SelectOutOfRange(t *testing.T) {
	s := NewSession(greetingTurn("g0"))
	s.ArchiveAndReset(greetingTurn("g1"))
	activeBefore := s.Snapshot()

	for _, index := range []int{-1, 1, 42} {
		err := s.Select(index)
		assert.ErrorIs(t, err, errs.ErrArchiveIndex, "index %d", index)
		assert.True(t, errs.HasReason(err, errs.ReasonSession))
	}
	assert.Equal(t, activeBefore, s.Snapshot())
}

func TestSession_MarkPlayed(t *testing.T) {
	s := NewSession(greetingTurn("g0"))
	greeting := s.Snapshot().Turns[0]
	assert.False(t, greeting.Played)

	require.NoError(t, s.MarkPlayed(greeting.ID))
	assert.True(t, s.Snapshot().Turns[0].Played)

	assert.ErrorIs(t, s.MarkPlayed("missing"), errs.ErrTurnNotFound)
}

func TestSession_SnapshotIsACopy(t *testing.T) {
	s := NewSession(greetingTurn("g0"))

	snap := s.Snapshot()
	snap.Turns[0].Text = "changed"
	snap.Turns[0].Audio.Handle = "changed"
	snap.Turns = append(snap.Turns, Turn{Text: "extra"})

	fresh := s.Snapshot()
	require.Len(t, fresh.Turns, 1)
	assert.Equal(t, "السلام علیکم", fresh.Turns[0].Text)
	assert.Equal(t, audio.Handle("g0"), fresh.Turns[0].Audio.Handle)
}

func TestConversation_Transcript(t *testing.T) {
	conv := Conversation{Turns: []Turn{
		{Role: RoleAssistant, Text: "Hello"},
		{Role: RoleUser, Text: "I feel anxious"},
		{Role: RoleAssistant, Text: "Tell me more"},
	}}

	assert.Equal(t, "Assistant: Hello\nUser: I feel anxious\nAssistant: Tell me more", conv.Transcript())
	assert.Equal(t, "", Conversation{}.Transcript())
}

func TestSession_AudioHandles(t *testing.T) {
	s := NewSession(greetingTurn("g0"))
	s.Append(Turn{Role: RoleUser, Text: "hi", Audio: &AudioRef{Handle: "u1", Format: "wav"}})
	s.Append(Turn{Role: RoleAssistant, Text: "Error"})
	s.ArchiveAndReset(greetingTurn("g1"))
	require.NoError(t, s.Select(0))

	handles := s.AudioHandles()
	assert.ElementsMatch(t, []audio.Handle{"g0", "u1", "g1"}, handles)
	assert.True(t, s.OwnsAudio("u1"))
	assert.False(t, s.OwnsAudio("other"))
}

func TestSession_BeginTurnSerializes(t *testing.T) {
	s := NewSession(greetingTurn("g0"))

	end, err := s.BeginTurn(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.turnSlot, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.BeginTurn(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		end2, err := s.BeginTurn(context.Background())
		if err == nil {
			end2()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second turn started while the first was running")
	case <-time.After(20 * time.Millisecond):
	}

	end()
	end() // ending twice is harmless

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second turn never started")
	}
	assert.Empty(t, s.turnSlot)
}

func TestSession_BeginTurnAfterEnd(t *testing.T) {
	s := NewSession(greetingTurn("g0"))

	end, err := s.BeginTurn(context.Background())
	require.NoError(t, err)

	queued := make(chan error, 1)
	go func() {
		_, err := s.BeginTurn(context.Background())
		queued <- err
	}()

	s.markEnded()
	end()

	select {
	case err := <-queued:
		assert.ErrorIs(t, err, errs.ErrSessionNotFound)
	case <-time.After(time.Second):
		t.Fatal("queued turn never returned")
	}

	_, err = s.BeginTurn(context.Background())
	assert.ErrorIs(t, err, errs.ErrSessionNotFound)
	assert.Empty(t, s.turnSlot)
}
