package pipeline

import (
	"testing"

	"github.com/pauljones0/zdm-deals-bot/internal/models"
)

func item(id string, votes, comments int) models.DealItem {
	return models.DealItem{
		ID:       id,
		Title:    "Deal " + id,
		URL:      "https://www.smzdm.com/p/" + id + "/",
		Votes:    votes,
		Comments: comments,
	}
}

func TestDedup(t *testing.T) {
	in := []models.DealItem{
		item("a", 1, 1),
		item("b", 2, 2),
		item("a", 99, 99), // duplicate, later occurrence dropped
		{Title: "no id"},  // no identity, dropped
		item("c", 3, 3),
	}

	out := Dedup(in)
	if len(out) != 3 {
		t.Fatalf("Dedup() len = %d, want 3", len(out))
	}
	wantOrder := []string{"a", "b", "c"}
	for i, want := range wantOrder {
		if out[i].ID != want {
			t.Errorf("Dedup()[%d].ID = %q, want %q (first-occurrence order)", i, out[i].ID, want)
		}
	}
	if out[0].Votes != 1 {
		t.Errorf("Dedup() kept the later duplicate, votes = %d, want 1", out[0].Votes)
	}
}

func TestProcess_FiltersPushedRegardlessOfCounts(t *testing.T) {
	p := New()
	pushed := map[string]struct{}{"hot": {}}

	out := p.Process([]models.DealItem{item("hot", 9999, 9999), item("new", 50, 50)}, pushed)
	if len(out) != 1 || out[0].ID != "new" {
		t.Fatalf("Process() = %v, want only the unpushed item", out)
	}
}

func TestProcess_VoteThresholdBoundary(t *testing.T) {
	p := New()
	tests := []struct {
		name  string
		votes int
		want  bool
	}{
		{name: "Below threshold", votes: DefaultMinVotes - 1, want: false},
		{name: "At threshold", votes: DefaultMinVotes, want: true},
		{name: "Above threshold", votes: DefaultMinVotes + 1, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.Process([]models.DealItem{item("x", tt.votes, DefaultMinComments)}, nil)
			if got := len(out) == 1; got != tt.want {
				t.Errorf("votes=%d included=%v, want %v", tt.votes, got, tt.want)
			}
		})
	}
}

func TestProcess_CommentThreshold(t *testing.T) {
	p := New()
	out := p.Process([]models.DealItem{item("x", 100, DefaultMinComments-1)}, nil)
	if len(out) != 0 {
		t.Errorf("Item below comment threshold should be excluded, got %v", out)
	}
}

func TestProcess_FlashSaleExclusion(t *testing.T) {
	p := New()
	tests := []struct {
		name  string
		title string
		want  bool
	}{
		{name: "Digit flash sale", title: "前3名免单！大促", want: false},
		{name: "Digit flash sale embedded", title: "超值优惠 前100名半价", want: false},
		{name: "CJK numeral not excluded", title: "前三名晒单有奖", want: true},
		{name: "Plain title", title: "普通优惠商品", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := item("x", 50, 50)
			it.Title = tt.title
			out := p.Process([]models.DealItem{it}, nil)
			if got := len(out) == 1; got != tt.want {
				t.Errorf("title %q included=%v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func TestProcess_SortOrder(t *testing.T) {
	p := New()
	in := []models.DealItem{
		item("a", 10, 5),
		item("b", 10, 8),
		item("c", 20, 1),
	}

	out := p.Process(in, nil)
	if len(out) != 3 {
		t.Fatalf("Process() len = %d, want 3", len(out))
	}
	wantOrder := []string{"c", "b", "a"} // (20,1), (10,8), (10,5)
	for i, want := range wantOrder {
		if out[i].ID != want {
			t.Errorf("Process()[%d].ID = %q, want %q", i, out[i].ID, want)
		}
	}
}

func TestSetThresholds_PartialUpdate(t *testing.T) {
	p := New()
	minVotes := 42
	p.SetThresholds(&minVotes, nil)

	if p.minVotes != 42 {
		t.Errorf("minVotes = %d, want 42", p.minVotes)
	}
	if p.minComments != DefaultMinComments {
		t.Errorf("minComments = %d, want untouched default %d", p.minComments, DefaultMinComments)
	}

	minComments := 1
	p.SetThresholds(nil, &minComments)
	if p.minVotes != 42 || p.minComments != 1 {
		t.Errorf("thresholds = (%d,%d), want (42,1)", p.minVotes, p.minComments)
	}
}
