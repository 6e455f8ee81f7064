// Copyright (c) 2026 Lettervault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lettervault/ingestion/internal/models"
)

// fakeCounters implements CounterSource in memory.
type fakeCounters struct {
	counters  *models.UsageCounters
	recounted *models.UsageCounters
	recounts  int
}

func (f *fakeCounters) GetUsageCounters(_ context.Context, _ string) (*models.UsageCounters, error) {
	return f.counters, nil
}

func (f *fakeCounters) RecountUsage(_ context.Context, _ string) (*models.UsageCounters, error) {
	f.recounts++
	return f.recounted, nil
}

func TestDecide(t *testing.T) {
	free := Entitlements{HardCap: 100, UnlockedCap: 25}

	tests := []struct {
		name     string
		ent      Entitlements
		counters models.UsageCounters
		want     Decision
	}{
		{
			name:     "unrestricted tier always accepts",
			ent:      Entitlements{IsUnrestricted: true},
			counters: models.UsageCounters{TotalStored: 99999},
			want:     Accept,
		},
		{
			name:     "under both caps",
			ent:      free,
			counters: models.UsageCounters{TotalStored: 10, UnlockedStored: 10},
			want:     Accept,
		},
		{
			name:     "unlocked cap reached stores locked",
			ent:      free,
			counters: models.UsageCounters{TotalStored: 30, UnlockedStored: 25, LockedStored: 5},
			want:     AcceptLocked,
		},
		{
			name:     "hard cap reached rejects",
			ent:      free,
			counters: models.UsageCounters{TotalStored: 100, UnlockedStored: 25, LockedStored: 75},
			want:     RejectAtCap,
		},
		{
			name:     "hard cap exceeded rejects",
			ent:      free,
			counters: models.UsageCounters{TotalStored: 150, UnlockedStored: 25, LockedStored: 125},
			want:     RejectAtCap,
		},
		{
			name:     "one below hard cap still stores locked",
			ent:      free,
			counters: models.UsageCounters{TotalStored: 99, UnlockedStored: 25, LockedStored: 74},
			want:     AcceptLocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.counters
			e := NewEngine(&Static{Entitlements: tt.ent}, &fakeCounters{counters: &c})
			got, err := e.Decide(context.Background(), "u1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecide_RebuildsAbsentCounters(t *testing.T) {
	fc := &fakeCounters{
		counters:  nil,
		recounted: &models.UsageCounters{TotalStored: 3, UnlockedStored: 3},
	}
	e := NewEngine(&Static{Entitlements: Entitlements{HardCap: 100, UnlockedCap: 25}}, fc)

	got, err := e.Decide(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Accept {
		t.Errorf("Decide() = %v, want Accept", got)
	}
	if fc.recounts != 1 {
		t.Errorf("recounts = %d, want 1", fc.recounts)
	}
}

func TestClient_GetEntitlements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/u-42/entitlements" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Entitlements{IsUnrestricted: false, HardCap: 100, UnlockedCap: 25})
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	ent, err := c.GetEntitlements(context.Background(), "u-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ent.HardCap != 100 || ent.UnlockedCap != 25 || ent.IsUnrestricted {
		t.Errorf("entitlements = %+v", ent)
	}
}

func TestClient_GetEntitlements_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	if _, err := c.GetEntitlements(context.Background(), "u-1"); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}
