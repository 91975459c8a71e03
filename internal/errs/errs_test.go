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

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(fmt.Errorf("upload: %w", ErrTranscription), ReasonTranscription)
	if Reason(err) != ReasonTranscription {
		t.Fatalf("expected reason %s, got %s", ReasonTranscription, Reason(err))
	}
	if !HasReason(err, ReasonTranscription) {
		t.Fatalf("expected HasReason true")
	}
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected wrapped sentinel to be preserved")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(ErrIngest, ReasonIngest)
	second := Wrap(fmt.Errorf("turn aborted: %w", first), ReasonGeneration)
	if Reason(second) != ReasonIngest {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ReasonSynthesis) != nil {
		t.Fatal("expected nil")
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil error")
	}
}
