package rbac

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/guardplane/internal/domain"
)

func testActors() []domain.SystemPermissions {
	return []domain.SystemPermissions{
		{
			Name: "trading-bot",
			Permissions: map[string]domain.PermissionLevel{
				"read_market":   domain.LevelRead,
				"place_order":   domain.LevelExecute,
				"cancel_order":  domain.LevelSuggest,
				"drain_account": domain.LevelNone,
			},
			MaxSpendPerDay:    10_000, // центы
			MaxActionsPerHour: 3,
			RequiresApproval:  []string{"cancel_order", "place_order"},
		},
		{
			Name: "reporter",
			Permissions: map[string]domain.PermissionLevel{
				"send_report": domain.LevelFull,
			},
		},
	}
}

func newTestRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()
	r := NewRegistry(testActors(), nil, zap.NewNop())
	// Управляемые часы: тесты двигают время вручную
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	// Трекеры созданы до подмены часов — выравниваем их окна на фиктивное время
	for _, tr := range r.trackers {
		tr.HourStart = now
		tr.DayStart = now
	}
	return r, &now
}

func TestCanPerformActionOrdering(t *testing.T) {
	r, _ := newTestRegistry(t)

	cases := []struct {
		name   string
		actor  string
		action string
		spend  int64
		want   Decision
	}{
		{"unknown actor", "ghost", "anything", 0,
			Decision{Allowed: false, Reason: ReasonUnknownActor}},
		{"unlisted action", "trading-bot", "delete_db", 0,
			Decision{Allowed: false, Reason: ReasonNotPermitted}},
		{"level none", "trading-bot", "drain_account", 0,
			Decision{Allowed: false, Reason: ReasonNotPermitted}},
		{"suggest plus approval list", "trading-bot", "cancel_order", 0,
			Decision{Allowed: false, Reason: ReasonRequiresApproval, RequiresApproval: true}},
		// execute в списке requires_approval проходит без апрува
		{"execute bypasses approval list", "trading-bot", "place_order", 100,
			Decision{Allowed: true}},
		{"plain read", "trading-bot", "read_market", 0,
			Decision{Allowed: true}},
		{"no ceilings configured", "reporter", "send_report", 1_000_000,
			Decision{Allowed: true}},
	}

	for _, tc := range cases {
		if got := r.CanPerformAction(tc.actor, tc.action, tc.spend); got != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestCheckDoesNotChargeQuota(t *testing.T) {
	r, _ := newTestRegistry(t)

	// Лимит 3/час, но проверка сама по себе квоту не трогает
	for i := 0; i < 10; i++ {
		if d := r.CanPerformAction("trading-bot", "read_market", 0); !d.Allowed {
			t.Fatalf("check #%d refused: %+v", i, d)
		}
	}
	if st := r.Status()["trading-bot"]; st.Tracker.LastHourActions != 0 {
		t.Fatalf("LastHourActions = %d after checks only, want 0", st.Tracker.LastHourActions)
	}
}

func TestHourlyCeilingAndActorLocalWindow(t *testing.T) {
	r, now := newTestRegistry(t)

	for i := 0; i < 3; i++ {
		if err := r.RecordAction("trading-bot", "read_market", 0); err != nil {
			t.Fatal(err)
		}
	}
	if d := r.CanPerformAction("trading-bot", "read_market", 0); d.Allowed || d.Reason != ReasonRateLimited {
		t.Fatalf("at ceiling: %+v", d)
	}

	// За минуту до границы окна — все еще отказ
	*now = now.Add(59 * time.Minute)
	if d := r.CanPerformAction("trading-bot", "read_market", 0); d.Allowed {
		t.Fatalf("before window edge: %+v", d)
	}

	// Ровно час от HourStart — окно сдвинулось, счетчик обнулен
	*now = now.Add(time.Minute)
	if d := r.CanPerformAction("trading-bot", "read_market", 0); !d.Allowed {
		t.Fatalf("after window roll: %+v", d)
	}
	if st := r.Status()["trading-bot"]; st.Tracker.LastHourActions != 0 {
		t.Fatalf("counter not reset: %d", st.Tracker.LastHourActions)
	}
}

func TestDailySpendCeiling(t *testing.T) {
	r, now := newTestRegistry(t)

	if err := r.RecordAction("trading-bot", "place_order", 9_500); err != nil {
		t.Fatal(err)
	}
	// 9500 + 600 > 10000 — отказ; ровно в потолок — можно
	if d := r.CanPerformAction("trading-bot", "place_order", 600); d.Allowed || d.Reason != ReasonSpendLimited {
		t.Fatalf("over ceiling: %+v", d)
	}
	if d := r.CanPerformAction("trading-bot", "place_order", 500); !d.Allowed {
		t.Fatalf("exactly at ceiling: %+v", d)
	}

	// Суточное окно сбрасывает траты
	*now = now.Add(24 * time.Hour)
	if d := r.CanPerformAction("trading-bot", "place_order", 10_000); !d.Allowed {
		t.Fatalf("after day roll: %+v", d)
	}
}

func TestRecordActionUnknownActor(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.RecordAction("ghost", "x", 0); !errors.Is(err, ErrUnknownActor) {
		t.Fatalf("want ErrUnknownActor, got %v", err)
	}
}

func TestLifetimeCounterSurvivesRolls(t *testing.T) {
	r, now := newTestRegistry(t)

	r.RecordAction("trading-bot", "read_market", 0)
	*now = now.Add(25 * time.Hour)
	r.RecordAction("trading-bot", "read_market", 0)

	st := r.Status()["trading-bot"]
	if st.Tracker.ActionCount != 2 {
		t.Fatalf("lifetime ActionCount = %d, want 2", st.Tracker.ActionCount)
	}
	if st.Tracker.LastHourActions != 1 {
		t.Fatalf("hour counter = %d, want 1", st.Tracker.LastHourActions)
	}
}
