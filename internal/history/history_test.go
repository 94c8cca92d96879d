package history

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/riskwatch/internal/model"
)

func entry(id string, kind model.SubjectKind, level model.RiskLevel, groups ...string) Entry {
	return Entry{ID: id, Kind: kind, Level: level, Groups: groups}
}

func TestNewEntry(t *testing.T) {
	a := &model.Assessment{
		Kind:            model.KindURL,
		Subject:         "http://x.example/",
		NormalizedScore: 55.07,
		RiskLevel:       model.RiskHigh,
		RuleSetVersion:  "v1",
		Indicators: []model.Indicator{
			{ID: "suspicious_tld", Category: model.CategoryFraud, Group: "suspicious_tld"},
			{ID: "unknown_domain", Category: model.CategoryFraud, Group: "unknown_domain"},
			{ID: "ip_host", Category: model.CategoryFraud, Group: "suspicious_tld"},
			{ID: "established_domain", Category: model.CategoryLegitimacy, Group: "established_domain"},
		},
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	e := NewEntry("", "", a, at)
	if e.ID == "" {
		t.Error("expected a generated id")
	}
	if e.Subject != a.Subject {
		t.Errorf("subject = %q", e.Subject)
	}
	if want := []string{"suspicious_tld", "unknown_domain"}; !reflect.DeepEqual(e.Groups, want) {
		t.Errorf("groups = %v, want %v", e.Groups, want)
	}
	if e.RecordedAt.Location() != time.UTC {
		t.Errorf("expected UTC timestamp, got %v", e.RecordedAt)
	}

	if e := NewEntry("fixed", "text from sms", a, at); e.ID != "fixed" || e.Subject != "text from sms" {
		t.Errorf("explicit id/subject not kept: %+v", e)
	}
}

func TestMemoryStore_Recent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	for i := 1; i <= 5; i++ {
		if err := s.Record(ctx, entry(fmt.Sprint(i), model.KindText, model.RiskLow)); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	tests := []struct {
		desc string
		n    int
		want []string
	}{
		{"all retained", 0, []string{"5", "4", "3"}},
		{"fewer than retained", 2, []string{"5", "4"}},
		{"more than retained", 10, []string{"5", "4", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := s.Recent(ctx, tt.n)
			if err != nil {
				t.Fatalf("Recent() error: %v", err)
			}
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("Recent(%d) = %v, want %v", tt.n, ids, tt.want)
			}
		})
	}
}

func TestMemoryStore_RecentBeforeFull(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5)

	got, _ := s.Recent(ctx, 0)
	if len(got) != 0 {
		t.Fatalf("expected empty log, got %v", got)
	}
	_ = s.Record(ctx, entry("a", model.KindText, model.RiskLow))
	_ = s.Record(ctx, entry("b", model.KindText, model.RiskLow))
	got, _ = s.Recent(ctx, 0)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("Recent() = %+v", got)
	}
}

func TestMemoryStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)

	empty, _ := s.Stats(ctx)
	if empty.Total != 0 || empty.LevelPercent[model.RiskLow] != 0 {
		t.Errorf("unexpected empty stats: %+v", empty)
	}

	_ = s.Record(ctx, entry("1", model.KindText, model.RiskCritical, "urgency", "unrealistic_return"))
	_ = s.Record(ctx, entry("2", model.KindText, model.RiskLow))
	_ = s.Record(ctx, entry("3", model.KindURL, model.RiskHigh, "suspicious_tld"))

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	// Totals outlive the ring's capacity
	if st.Total != 3 {
		t.Errorf("total = %d, want 3", st.Total)
	}
	if st.ByKind[model.KindText] != 2 || st.ByKind[model.KindURL] != 1 {
		t.Errorf("by kind = %v", st.ByKind)
	}
	if st.ByLevel[model.RiskMedium] != 0 || st.ByLevel[model.RiskCritical] != 1 {
		t.Errorf("by level = %v", st.ByLevel)
	}
	if st.LevelPercent[model.RiskLow] != 33.33 {
		t.Errorf("low percent = %v, want 33.33", st.LevelPercent[model.RiskLow])
	}
	if st.ByGroup["urgency"] != 1 || st.ByGroup["suspicious_tld"] != 1 {
		t.Errorf("by group = %v", st.ByGroup)
	}

	// Returned stats are a copy
	st.ByKind[model.KindText] = 99
	again, _ := s.Stats(ctx)
	if again.ByKind[model.KindText] != 2 {
		t.Error("Stats() exposed internal state")
	}
}

func TestParseCounters(t *testing.T) {
	st, err := parseCounters(map[string]string{
		"total":         "4",
		"level:high":    "3",
		"level:low":     "1",
		"kind:advisor":  "4",
		"group:urgency": "2",
	})
	if err != nil {
		t.Fatalf("parseCounters() error: %v", err)
	}
	if st.Total != 4 || st.ByLevel[model.RiskHigh] != 3 || st.ByKind[model.KindAdvisor] != 4 || st.ByGroup["urgency"] != 2 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if st.LevelPercent[model.RiskHigh] != 75 {
		t.Errorf("high percent = %v, want 75", st.LevelPercent[model.RiskHigh])
	}

	if _, err := parseCounters(map[string]string{"total": "x"}); err == nil {
		t.Error("expected error for a non-numeric counter")
	}
}

// TestRedisStore runs against a live server when RISKWATCH_TEST_REDIS is set
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("RISKWATCH_TEST_REDIS")
	if addr == "" {
		t.Skip("RISKWATCH_TEST_REDIS not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	prefix := fmt.Sprintf("riskwatch-test-%d:", time.Now().UnixNano())
	defer func() {
		client.Del(ctx, prefix+recentKey, prefix+countersKey)
	}()

	s := NewRedisStore(client, prefix, 2)
	for i := 1; i <= 3; i++ {
		if err := s.Record(ctx, entry(fmt.Sprint(i), model.KindText, model.RiskHigh, "urgency")); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	recent, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "3" || recent[1].ID != "2" {
		t.Errorf("Recent() = %+v", recent)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if st.Total != 3 || st.ByGroup["urgency"] != 3 || st.LevelPercent[model.RiskHigh] != 100 {
		t.Errorf("unexpected stats: %+v", st)
	}
}
