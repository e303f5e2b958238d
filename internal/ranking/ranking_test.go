package ranking_test

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/starford/opscore/internal/apperr"
	"github.com/starford/opscore/internal/ranking"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func hours(h float64) *float64 { return &h }

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func refs(rs []ranking.Ranked) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.EntityRef
	}
	return out
}

func TestUrgencyFromHours(t *testing.T) {
	tests := []struct {
		h    float64
		want float64
	}{
		{-5, 1.0},
		{0, 1.0},
		{6, 0.85},
		{12, 0.7},
		{18, 0.6},
		{24, 0.5},
		{96, 0.3},
		{168, 0.1},
		{336, 0.05},
	}
	for _, tt := range tests {
		if got := ranking.UrgencyFromHours(tt.h); !approx(got, tt.want) {
			t.Errorf("UrgencyFromHours(%v) = %v, want %v", tt.h, got, tt.want)
		}
	}
	prev := 2.0
	for h := -1.0; h < 2000; h += 0.5 {
		u := ranking.UrgencyFromHours(h)
		if u > prev || u <= 0 {
			t.Fatalf("urgency not monotone and positive at %vh: %v after %v", h, u, prev)
		}
		prev = u
	}
}

func TestBaseScore(t *testing.T) {
	c := ranking.Candidate{Impact: 1, Urgency: 0.5, Controllability: 0.5, Confidence: ranking.ConfidenceMed}
	if got, want := ranking.BaseScore(c), 0.30+0.15+0.10+0.12; !approx(got, want) {
		t.Errorf("BaseScore = %v, want %v", got, want)
	}

	clamped := ranking.Candidate{Impact: 3, Urgency: -1, Controllability: 2, Confidence: ranking.ConfidenceHigh}
	if got, want := ranking.BaseScore(clamped), 0.30+0+0.20+0.20; !approx(got, want) {
		t.Errorf("BaseScore clamped = %v, want %v", got, want)
	}
}

func TestProfiles_SumToOne(t *testing.T) {
	for _, p := range ranking.Profiles {
		var sum float64
		for _, w := range p.Weights {
			sum += w
		}
		if !approx(sum, 1) {
			t.Errorf("profile %s sums to %v", p.Name, sum)
		}
		if got := p.Weight("gardening"); got != ranking.UnknownDomainWeight {
			t.Errorf("profile %s unknown domain weight = %v", p.Name, got)
		}
	}
	if _, err := ranking.LookupProfile("nope"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("LookupProfile(nope) err = %v", err)
	}
}

func TestEligible(t *testing.T) {
	tests := []struct {
		name string
		c    ranking.Candidate
		want map[ranking.Horizon]bool
	}{
		{
			name: "due in 3h",
			c:    ranking.Candidate{HoursToConsequence: hours(3)},
			want: map[ranking.Horizon]bool{ranking.HorizonNow: true, ranking.HorizonToday: true, ranking.HorizonThisWeek: true},
		},
		{
			name: "dependency breaker without deadline",
			c:    ranking.Candidate{DependencyBreaker: true},
			want: map[ranking.Horizon]bool{ranking.HorizonNow: true, ranking.HorizonToday: true, ranking.HorizonThisWeek: true},
		},
		{
			name: "critical path in 10h",
			c:    ranking.Candidate{CriticalPath: true, HoursToConsequence: hours(10)},
			want: map[ranking.Horizon]bool{ranking.HorizonNow: true, ranking.HorizonToday: true, ranking.HorizonThisWeek: true},
		},
		{
			name: "critical path in 30h",
			c:    ranking.Candidate{CriticalPath: true, HoursToConsequence: hours(30)},
			want: map[ranking.Horizon]bool{ranking.HorizonNow: false, ranking.HorizonToday: true, ranking.HorizonThisWeek: true},
		},
		{
			name: "high impact in 40h",
			c:    ranking.Candidate{Impact: 0.8, HoursToConsequence: hours(40)},
			want: map[ranking.Horizon]bool{ranking.HorizonNow: false, ranking.HorizonToday: true, ranking.HorizonThisWeek: true},
		},
		{
			name: "low impact in 100h",
			c:    ranking.Candidate{Impact: 0.2, HoursToConsequence: hours(100)},
			want: map[ranking.Horizon]bool{ranking.HorizonNow: false, ranking.HorizonToday: false, ranking.HorizonThisWeek: true},
		},
		{
			name: "high impact without deadline",
			c:    ranking.Candidate{Impact: 0.5},
			want: map[ranking.Horizon]bool{ranking.HorizonNow: false, ranking.HorizonToday: false, ranking.HorizonThisWeek: true},
		},
		{
			name: "low impact next month",
			c:    ranking.Candidate{Impact: 0.1, HoursToConsequence: hours(700)},
			want: map[ranking.Horizon]bool{ranking.HorizonNow: false, ranking.HorizonToday: false, ranking.HorizonThisWeek: false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for h, want := range tt.want {
				if got := ranking.Eligible(tt.c, h); got != want {
					t.Errorf("Eligible(%s) = %v, want %v", h, got, want)
				}
			}
			if ranking.Eligible(tt.c, "someday") {
				t.Error("unknown horizon admitted a candidate")
			}
		})
	}
}

func TestRank_TieBreakOnHoursToConsequence(t *testing.T) {
	base := ranking.Candidate{Domain: "delivery", Impact: 0.6, Urgency: 0.6, Controllability: 0.6, Confidence: ranking.ConfidenceHigh}
	later, sooner, unknown := base, base, base
	later.EntityRef, later.HoursToConsequence = "later", hours(20)
	sooner.EntityRef, sooner.HoursToConsequence = "sooner", hours(2)
	unknown.EntityRef, unknown.Impact = "unknown", 0.6

	got := ranking.Rank([]ranking.Candidate{unknown, later, sooner}, ranking.Balanced, ranking.HorizonThisWeek, 0)
	if diff := cmp.Diff([]string{"sooner", "later", "unknown"}, refs(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRank_ProfileChangesOrder(t *testing.T) {
	delivery := ranking.Candidate{Domain: ranking.DomainDelivery, EntityRef: "d", Impact: 0.7, Urgency: 0.7, Controllability: 0.7, Confidence: ranking.ConfidenceHigh, HoursToConsequence: hours(5)}
	cash := delivery
	cash.Domain, cash.EntityRef = ranking.DomainCash, "c"

	if got := refs(ranking.Rank([]ranking.Candidate{cash, delivery}, ranking.DeliveryFirst, ranking.HorizonToday, 1)); got[0] != "d" {
		t.Errorf("delivery_first top = %v", got)
	}
	if got := refs(ranking.Rank([]ranking.Candidate{delivery, cash}, ranking.CashFirst, ranking.HorizonToday, 1)); got[0] != "c" {
		t.Errorf("cash_first top = %v", got)
	}
}

func TestRank_FiltersTruncatesAndExplains(t *testing.T) {
	var cands []ranking.Candidate
	for i := 0; i < 10; i++ {
		cands = append(cands, ranking.Candidate{
			Domain:     ranking.DomainDelivery, EntityRef: string(rune('a' + i)),
			Impact:     float64(i) / 10, Urgency: 0.5, Controllability: 0.5,
			Confidence: ranking.ConfidenceMed, HoursToConsequence: hours(float64(i * 3)),
		})
	}
	got := ranking.Rank(cands, ranking.Balanced, ranking.HorizonNow, 3)
	if len(got) != 2 {
		// Only 0h and 3h fall inside the 4h window.
		t.Fatalf("ranked = %v, want 2 eligible", refs(got))
	}
	for i, r := range got {
		if r.Rank != i+1 {
			t.Errorf("rank[%d] = %d", i, r.Rank)
		}
		if !strings.Contains(r.Explanation, "balanced weight 0.30 for delivery") {
			t.Errorf("explanation = %q", r.Explanation)
		}
	}

	if got := ranking.Rank(cands, ranking.Balanced, ranking.HorizonThisWeek, 3); len(got) != 3 {
		t.Errorf("truncated to %d, want 3", len(got))
	}
}

func TestRank_Deterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	domains := []string{"delivery", "cash", "comms", "clients", "capacity", "misc"}
	confs := []ranking.Confidence{ranking.ConfidenceLow, ranking.ConfidenceMed, ranking.ConfidenceHigh}
	var cands []ranking.Candidate
	for i := 0; i < 60; i++ {
		c := ranking.Candidate{
			Domain:          domains[r.IntN(len(domains))],
			EntityRef:       string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Impact:          float64(r.IntN(3)) / 2,
			Urgency:         float64(r.IntN(3)) / 2,
			Controllability: float64(r.IntN(3)) / 2,
			Confidence:      confs[r.IntN(len(confs))],
			CriticalPath:    r.IntN(4) == 0,
		}
		if r.IntN(3) > 0 {
			c.HoursToConsequence = hours(float64(r.IntN(6) * 12))
		}
		cands = append(cands, c)
	}

	want := ranking.Rank(cands, ranking.Balanced, ranking.HorizonThisWeek, 7)
	wantDigest, err := ranking.Digest(want)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		shuffled := append([]ranking.Candidate(nil), cands...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := ranking.Rank(shuffled, ranking.Balanced, ranking.HorizonThisWeek, 7)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("shuffle %d changed the ranking (-want +got):\n%s", i, diff)
		}
		if d, _ := ranking.Digest(got); d != wantDigest {
			t.Fatalf("shuffle %d changed the digest", i)
		}
	}
}

func TestLoadCandidates(t *testing.T) {
	doc := `
candidates:
  - domain: cash
    entity_ref: invoice:42
    impact: 0.8
    controllability: 0.6
    confidence: high
    hours_to_consequence: 12
  - domain: delivery
    entity_ref: task:7
    impact: 0.4
    urgency: 0.9
    controllability: 1
    confidence: LOW
    critical_path: true
`
	got, err := ranking.LoadCandidates(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}
	if !approx(got[0].Urgency, 0.7) || got[0].Confidence != ranking.ConfidenceHigh {
		t.Errorf("derived candidate = %+v", got[0])
	}
	if got[1].Urgency != 0.9 || !got[1].CriticalPath {
		t.Errorf("explicit candidate = %+v", got[1])
	}
}

func TestLoadCandidates_Invalid(t *testing.T) {
	tests := map[string]string{
		"impact out of range": "candidates:\n  - {domain: cash, entity_ref: x, impact: 1.5, confidence: HIGH}\n",
		"missing confidence":  "candidates:\n  - {domain: cash, entity_ref: x, impact: 0.5}\n",
		"missing entity":      "candidates:\n  - {domain: cash, impact: 0.5, confidence: MED}\n",
		"unknown confidence":  "candidates:\n  - {domain: cash, entity_ref: x, confidence: SURE}\n",
		"unknown field":       "candidates:\n  - {domain: cash, entity_ref: x, confidence: MED, colour: red}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ranking.LoadCandidates(strings.NewReader(doc)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRankSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cash.yaml")
	doc := "candidates:\n  - {domain: cash, entity_ref: inv-1, impact: 0.9, urgency: 0.9, controllability: 0.9, confidence: HIGH, finance_severe: true}\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	delivery := ranking.StaticSource{{
		Domain:          "delivery", EntityRef: "task-1", Impact: 0.2, Urgency: 0.2,
		Controllability: 0.2, Confidence: ranking.ConfidenceLow, DependencyBreaker: true,
	}}

	got, err := ranking.RankSources(context.Background(),
		[]ranking.Source{delivery, ranking.FileSource(path)}, ranking.Balanced, ranking.HorizonToday, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"inv-1", "task-1"}, refs(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	_, err = ranking.RankSources(context.Background(),
		[]ranking.Source{delivery, ranking.FileSource(filepath.Join(dir, "missing.yaml"))}, ranking.Balanced, ranking.HorizonToday, 5)
	if err == nil {
		t.Error("missing source file should fail the ranking")
	}
}
