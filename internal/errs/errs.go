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

package errs

import "errors"

// ReasonCode is a short machine-readable failure category.
type ReasonCode string

const (
	ReasonUnknown       ReasonCode = "unknown"
	ReasonIngest        ReasonCode = "ingest"
	ReasonTranscription ReasonCode = "transcription"
	ReasonGeneration    ReasonCode = "generation"
	ReasonSynthesis     ReasonCode = "synthesis"
	ReasonSession       ReasonCode = "session"
)

var (
	// ErrIngest is returned when a recording cannot be persisted.
	ErrIngest = errors.New("cannot persist recorded audio")

	// ErrTranscription is returned when the speech-to-text service call fails.
	ErrTranscription = errors.New("transcription failed")

	// ErrAudioTooLarge is returned when a recording exceeds the upload ceiling.
	ErrAudioTooLarge = errors.New("audio exceeds size limit")

	// ErrGeneration is returned when prompt rendering, the generation call or
	// stream consumption fails.
	ErrGeneration = errors.New("response generation failed")

	// ErrSynthesis is returned by speech synthesis clients. It never reaches a
	// conversation: the synthesizer degrades to silence instead.
	ErrSynthesis = errors.New("speech synthesis failed")

	ErrSessionNotFound = errors.New("session not found")
	ErrArchiveIndex    = errors.New("archive index out of range")
	ErrTurnNotFound    = errors.New("turn not found")
)

// ReasonedError attaches a reason code to an error.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error {
	return e.Err
}

// Wrap attaches a reason code to err. It is a no-op for nil errors and for
// errors that already carry a reason.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Reason extracts the reason code from err.
func Reason(err error) ReasonCode {
	if err == nil {
		return ReasonUnknown
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

// HasReason reports whether err carries the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}
