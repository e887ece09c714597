// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package msaddr

import (
	"errors"
	"io"
	"testing"
)

// TestErrorKindStringer tests the stringized output for the ErrorKind type.
func TestErrorKindStringer(t *testing.T) {
	tests := []struct {
		in   ErrorKind
		want string
	}{
		{ErrInvalidAddress, "ErrInvalidAddress"},
		{ErrUnknownTransport, "ErrUnknownTransport"},
		{ErrMissingKey, "ErrMissingKey"},
	}

	for i, test := range tests {
		result := test.in.Error()
		if result != test.want {
			t.Errorf("#%d: got: %s want: %s", i, result, test.want)
			continue
		}
	}
}

// TestErrorKindIsAs ensures both ErrorKind and Error can be identified as
// being a specific error kind via errors.Is and unwrapped via errors.As.
func TestErrorKindIsAs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
		wantAs    ErrorKind
	}{{
		name:      "ErrInvalidAddress == ErrInvalidAddress",
		err:       ErrInvalidAddress,
		target:    ErrInvalidAddress,
		wantMatch: true,
		wantAs:    ErrInvalidAddress,
	}, {
		name:      "Error.ErrInvalidAddress == ErrInvalidAddress",
		err:       makeError(ErrInvalidAddress, ""),
		target:    ErrInvalidAddress,
		wantMatch: true,
		wantAs:    ErrInvalidAddress,
	}, {
		name:      "ErrMissingKey != ErrInvalidAddress",
		err:       ErrMissingKey,
		target:    ErrInvalidAddress,
		wantMatch: false,
		wantAs:    ErrMissingKey,
	}, {
		name:      "Error.ErrMissingKey != Error.ErrInvalidAddress",
		err:       makeError(ErrMissingKey, ""),
		target:    makeError(ErrInvalidAddress, ""),
		wantMatch: false,
		wantAs:    ErrMissingKey,
	}, {
		name:      "Error.ErrUnknownTransport != io.EOF",
		err:       makeError(ErrUnknownTransport, ""),
		target:    io.EOF,
		wantMatch: false,
		wantAs:    ErrUnknownTransport,
	}}

	for _, test := range tests {
		result := errors.Is(test.err, test.target)
		if result != test.wantMatch {
			t.Errorf("%s: incorrect error identification -- got %v, want %v",
				test.name, result, test.wantMatch)
			continue
		}

		var kind ErrorKind
		if !errors.As(test.err, &kind) {
			t.Errorf("%s: unable to unwrap to error kind", test.name)
			continue
		}
		if kind != test.wantAs {
			t.Errorf("%s: unexpected unwrapped error kind -- got %v, want %v",
				test.name, kind, test.wantAs)
			continue
		}
	}
}
