// KNG - Road Incident Alerts and Real-Time Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Iornfire12211221/KNG-sub000

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/stats", "200"))
	RecordAPIRequest("GET", "/stats", "200", 3*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/stats", "200"))

	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestRecordPostStoreFetch(t *testing.T) {
	RecordPostStoreFetch(10*time.Millisecond, 7, nil)
	if got := testutil.ToFloat64(PostStoreActivePosts); got != 7 {
		t.Errorf("active posts gauge = %v, want 7", got)
	}

	// A failed fetch must not overwrite the last known count.
	RecordPostStoreFetch(10*time.Millisecond, 0, errors.New("timeout"))
	if got := testutil.ToFloat64(PostStoreActivePosts); got != 7 {
		t.Errorf("active posts gauge = %v after error, want 7", got)
	}
}

func TestRecordGeofenceTick(t *testing.T) {
	okBefore := testutil.ToFloat64(GeofenceTicks.WithLabelValues("ok"))
	skipBefore := testutil.ToFloat64(GeofenceTicks.WithLabelValues("skipped"))

	RecordGeofenceTick(time.Millisecond, 4, false)
	RecordGeofenceTick(0, 0, true)

	if d := testutil.ToFloat64(GeofenceTicks.WithLabelValues("ok")) - okBefore; d != 1 {
		t.Errorf("ok ticks delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(GeofenceTicks.WithLabelValues("skipped")) - skipBefore; d != 1 {
		t.Errorf("skipped ticks delta = %v, want 1", d)
	}
	if got := testutil.ToFloat64(GeofenceZones); got != 4 {
		t.Errorf("zones gauge = %v, want 4", got)
	}
}

func TestRecordGeofenceAlert(t *testing.T) {
	tests := []struct {
		delivered bool
		label     string
	}{
		{true, "delivered"},
		{false, "missed"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			before := testutil.ToFloat64(GeofenceAlerts.WithLabelValues(tt.label))
			RecordGeofenceAlert(tt.delivered)
			if d := testutil.ToFloat64(GeofenceAlerts.WithLabelValues(tt.label)) - before; d != 1 {
				t.Errorf("delta = %v, want 1", d)
			}
		})
	}
}
