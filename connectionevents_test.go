// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"testing"
	"time"
)

func TestReconnectDelay(t *testing.T) {
	cases := []struct {
		name    string
		code    int
		attempt int
		want    time.Duration
	}{
		{"first attempt", 0, 1, 2 * time.Second},
		{"second attempt", 0, 2, 4 * time.Second},
		{"last attempt", 0, 5, 30 * time.Second},
		{"attempt clamped high", 0, 9, 30 * time.Second},
		{"attempt clamped low", 0, 0, 2 * time.Second},
		{"service unavailable doubles", 503, 2, 8 * time.Second},
		{"rate limit triples", 429, 1, 6 * time.Second},
		{"login timeout halves", 408, 2, 2 * time.Second},
		{"login timeout floor", 408, 1, time.Second},
		{"unauthorized floor", 401, 1, 3 * time.Second},
		{"unauthorized scales", 401, 3, 12 * time.Second},
		{"client outdated floor", 405, 1, 2 * time.Second},
		{"abnormal closure", websocketCodeAbnormalClosure, 1, 2400 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := reconnectDelay(tc.code, tc.attempt)
			if got != tc.want {
				t.Errorf("reconnectDelay(%d, %d) = %v, want %v", tc.code, tc.attempt, got, tc.want)
			}
		})
	}
}

func TestReconnectDelayNeverBelowOneSecond(t *testing.T) {
	for _, code := range []int{0, 401, 403, 405, 408, 428, 429, 503, websocketCodeAbnormalClosure} {
		for attempt := 0; attempt <= 7; attempt++ {
			if got := reconnectDelay(code, attempt); got < time.Second {
				t.Errorf("reconnectDelay(%d, %d) = %v, below one second", code, attempt, got)
			}
		}
	}
}

func TestIsAuthFailureCode(t *testing.T) {
	for _, code := range []int{401, 403, 419, 428} {
		if !isAuthFailureCode(code) {
			t.Errorf("isAuthFailureCode(%d) = false, want true", code)
		}
	}
	for _, code := range []int{0, 402, 405, 408, 429, 500, 503, 515} {
		if isAuthFailureCode(code) {
			t.Errorf("isAuthFailureCode(%d) = true, want false", code)
		}
	}
}
