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

package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/loqalabs/loqa-voicechat/internal/audio"
	"github.com/loqalabs/loqa-voicechat/internal/config"
	"github.com/loqalabs/loqa-voicechat/internal/conversation"
	"github.com/loqalabs/loqa-voicechat/internal/errs"
	"github.com/loqalabs/loqa-voicechat/internal/events"
	"github.com/loqalabs/loqa-voicechat/internal/llm"
	"github.com/loqalabs/loqa-voicechat/internal/logging"
	"github.com/loqalabs/loqa-voicechat/internal/messaging"
	"github.com/loqalabs/loqa-voicechat/internal/metrics"
	"github.com/loqalabs/loqa-voicechat/internal/persona"
)

// EventRecorder stores turn events
type EventRecorder interface {
	Insert(ctx context.Context, event *events.TurnEvent) error
}

// Deps wires the pipeline to its collaborators. Events, Publisher and
// Metrics are optional.
type Deps struct {
	Store      audio.Saver
	Recognizer llm.SpeechRecognizer
	Generator  llm.TextGenerator
	TTS        llm.TextToSpeech
	Persona    *persona.Persona

	STTConfig config.STTConfig
	LLMConfig config.LLMConfig
	TTSConfig config.TTSConfig

	Events    EventRecorder
	Publisher messaging.EventPublisher
	Metrics   *metrics.Metrics
}

// TurnResult is the outcome of one recorded voice message
type TurnResult struct {
	UserTurn      conversation.Turn `json:"user_turn"`
	AssistantTurn conversation.Turn `json:"assistant_turn"`
	Notices       []Notice          `json:"notices,omitempty"`
	SilentReply   bool              `json:"silent_reply"`
	EventID       string            `json:"event_id"`
}

// Pipeline runs recordings through transcription, generation and synthesis
type Pipeline struct {
	store       audio.Saver
	transcriber *Transcriber
	responder   *Responder
	synthesizer *Synthesizer
	persona     *persona.Persona

	events    EventRecorder
	publisher messaging.EventPublisher
	metrics   *metrics.Metrics
}

// New creates a pipeline
func New(deps Deps) *Pipeline {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}

	return &Pipeline{
		store:       deps.Store,
		transcriber: NewTranscriber(deps.Recognizer, deps.STTConfig),
		responder:   NewResponder(deps.Generator, deps.Persona, deps.LLMConfig.MaxTokens),
		synthesizer: NewSynthesizer(deps.TTS, deps.TTSConfig),
		persona:     deps.Persona,
		events:      deps.Events,
		publisher:   publisher,
		metrics:     deps.Metrics,
	}
}

// Persona returns the assistant persona the pipeline speaks as
func (p *Pipeline) Persona() *persona.Persona {
	return p.persona
}

// Greeting voices the persona greeting as the opening assistant turn. The
// turn carries audio even when synthesis fails.
func (p *Pipeline) Greeting(ctx context.Context) conversation.Turn {
	speech := p.synthesizer.Synthesize(ctx, p.persona.GreetingSpeech)
	if speech.Fallback {
		p.recordSilence(speech.Err)
	}

	turn := conversation.Turn{Role: conversation.RoleAssistant, Text: p.persona.Greeting}
	ref, err := p.storeSpeech(speech)
	if err != nil {
		logging.LogError(err, "❌ Failed to store greeting audio")
		return turn
	}
	turn.Audio = ref
	return turn
}

// ProcessRecording runs one turn for the session. Only an ingest failure is
// returned as an error, in which case nothing is appended. Every other
// failure is reported through the turn text and Notices.
func (p *Pipeline) ProcessRecording(ctx context.Context, session *conversation.Session, raw []byte) (*TurnResult, error) {
	release, err := session.BeginTurn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	// A started turn runs to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	turnStart := time.Now()
	event := events.NewTurnEvent(session.ID, session.Snapshot().ID)
	result := &TurnResult{EventID: event.UUID}
	defer func() {
		p.observe(metrics.StageTurn, turnStart)
		p.finishEvent(ctx, event)
	}()

	// Ingest
	stageStart := time.Now()
	handle, err := audio.Ingest(p.store, raw)
	p.observe(metrics.StageIngest, stageStart)
	if err != nil {
		event.SetAudioMetadata(raw, 0, 0)
		p.fail(event, err)
		logging.LogError(err, "❌ Failed to ingest recording", zap.String("session_id", session.ID))
		return nil, err
	}
	logging.LogTurnStage(session.ID, "ingested", zap.Int("bytes", len(raw)))

	// Transcribe
	stageStart = time.Now()
	transcript, err := p.transcriber.Transcribe(ctx, raw)
	p.observe(metrics.StageTranscribe, stageStart)
	event.SetAudioMetadata(raw, transcript.Duration, transcript.Chunks)
	event.SetTranscription(transcript.Text)
	if err != nil {
		p.fail(event, err)
		result.Notices = append(result.Notices, noticeFor(err))
		logging.LogError(err, "❌ Transcription failed", zap.String("session_id", session.ID))
	} else if p.metrics != nil {
		p.metrics.RecordRecording(transcript.Duration, transcript.Chunks)
	}
	logging.LogTurnStage(session.ID, "transcribed", zap.Int("chunks", transcript.Chunks))

	result.UserTurn = session.Append(conversation.Turn{
		Role: conversation.RoleUser,
		Text: transcript.Text,
		Audio: &conversation.AudioRef{
			Handle:     handle,
			Format:     "wav",
			DurationMS: transcript.Duration.Milliseconds(),
		},
	})

	// Generate, with the new user turn already part of the history
	stageStart = time.Now()
	reply, err := p.responder.Respond(ctx, session.Snapshot(), transcript.Text)
	p.observe(metrics.StageGenerate, stageStart)
	if err != nil {
		p.fail(event, err)
		result.Notices = append(result.Notices, noticeFor(err))
		logging.LogError(err, "❌ Response generation failed", zap.String("session_id", session.ID))
	}
	logging.LogTurnStage(session.ID, "generated", zap.Int("reply_chars", len(reply)))

	// Synthesize
	stageStart = time.Now()
	speech := p.synthesizer.Synthesize(ctx, reply)
	p.observe(metrics.StageSynthesize, stageStart)
	if speech.Fallback {
		p.recordSilence(speech.Err)
		result.SilentReply = true
	}
	event.SetResponse(reply, speech.Fallback)

	assistant := conversation.Turn{Role: conversation.RoleAssistant, Text: reply}
	if ref, err := p.storeSpeech(speech); err != nil {
		result.Notices = append(result.Notices, Notice{Stage: string(errs.ReasonSynthesis), Message: err.Error()})
		logging.LogError(err, "❌ Failed to store reply audio", zap.String("session_id", session.ID))
	} else {
		assistant.Audio = ref
	}
	result.AssistantTurn = session.Append(assistant)
	logging.LogTurnStage(session.ID, "completed",
		zap.Bool("silent_reply", result.SilentReply),
		zap.Int("notices", len(result.Notices)),
	)

	return result, nil
}

func (p *Pipeline) storeSpeech(speech Speech) (*conversation.AudioRef, error) {
	handle, err := p.store.Save(speech.Encoded, speech.Format)
	if err != nil {
		return nil, err
	}
	return &conversation.AudioRef{
		Handle:     handle,
		Format:     speech.Format,
		DurationMS: speech.Segment.Duration().Milliseconds(),
	}, nil
}

func (p *Pipeline) fail(event *events.TurnEvent, err error) {
	event.SetError(err)
	if p.metrics != nil {
		p.metrics.RecordStageError(string(errs.Reason(err)))
	}
}

func (p *Pipeline) recordSilence(err error) {
	if p.metrics != nil {
		p.metrics.RecordSilenceFallback()
		p.metrics.RecordStageError(string(errs.Reason(err)))
	}
}

func (p *Pipeline) observe(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveStage(stage, time.Since(start))
	}
}

// finishEvent stores and publishes the event. Failures here never affect
// the turn.
func (p *Pipeline) finishEvent(ctx context.Context, event *events.TurnEvent) {
	event.Complete()
	if p.metrics != nil {
		p.metrics.RecordTurn(event.Success)
	}

	if p.events != nil {
		if err := p.events.Insert(ctx, event); err != nil {
			logging.LogError(err, "❌ Failed to store turn event", zap.String("event_uuid", event.UUID))
		}
	}

	if err := p.publisher.PublishTurnEvent(event); err != nil {
		logging.LogWarn("⚠️  Failed to publish turn event",
			zap.String("event_uuid", event.UUID),
			zap.Error(err),
		)
	}
}
