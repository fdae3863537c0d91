package paginate

import (
	"strings"
	"testing"

	"github.com/cardbridge/stream-renderer/internal/model"
)

func textSegs(n int) []model.Segment {
	segs := make([]model.Segment, n)
	for i := range segs {
		segs[i] = model.Segment{Key: "k", Kind: model.SegmentText, Content: "block"}
	}
	return segs
}

func TestRender_PacksUnderComponentBudget(t *testing.T) {
	p := New(4)
	// First card holds the banner plus 3 blocks, the rest hold 4.
	docs := p.Render(textSegs(10), model.TurnRunning, nil, nil)

	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	for i, doc := range docs {
		if doc.ComponentCount() > 4 {
			t.Fatalf("doc %d exceeds budget: %d components", i, doc.ComponentCount())
		}
	}
	if docs[0].Banner == "" {
		t.Fatal("first document must carry the banner")
	}
	if docs[1].Banner != "" || docs[2].Banner != "" {
		t.Fatal("only the first document carries the banner")
	}
	total := 0
	for _, doc := range docs {
		total += len(doc.Blocks)
	}
	if total != 10 {
		t.Fatalf("blocks lost or duplicated: %d", total)
	}
}

func TestRender_BannerCarriesActionableState(t *testing.T) {
	p := New(0)
	perm := &model.PendingPermission{Tool: "bash", Description: "run tests", Risk: "medium"}
	q := &PendingQuestion{Prompt: "Which branch?", Index: 1, Total: 3}

	docs := p.Render(nil, model.TurnRunning, perm, q)
	banner := docs[0].Banner
	for _, want := range []string{"status: processing", "permission requested: bash", "risk: medium", "question 2/3: Which branch?"} {
		if !strings.Contains(banner, want) {
			t.Fatalf("banner missing %q:\n%s", want, banner)
		}
	}
}

func TestRender_OversizedSegmentTruncatedNotSplit(t *testing.T) {
	p := New(0)
	segs := []model.Segment{{
		Key:     "big",
		Kind:    model.SegmentText,
		Content: strings.Repeat("a", maxBlockBytes+500) + "tail",
	}}

	docs := p.Render(segs, model.TurnCompleted, nil, nil)
	if len(docs) != 1 {
		t.Fatalf("oversized segment must not be split, got %d docs", len(docs))
	}
	block := docs[0].Blocks[0]
	if !strings.HasSuffix(block, "tail") {
		t.Fatal("truncation must keep the tail")
	}
	if !strings.Contains(block, "bytes truncated") {
		t.Fatalf("missing truncation marker: %.60q", block)
	}
}

func TestRender_ByteCapStartsNewCard(t *testing.T) {
	p := New(1000)
	big := strings.Repeat("x", maxDocBytes-100)
	segs := []model.Segment{
		{Key: "a", Kind: model.SegmentText, Content: big},
		{Key: "b", Kind: model.SegmentText, Content: big},
	}

	docs := p.Render(segs, model.TurnRunning, nil, nil)
	if len(docs) != 2 {
		t.Fatalf("byte cap should spill to a second card, got %d", len(docs))
	}
}

func TestRenderSegment_Kinds(t *testing.T) {
	cases := []struct {
		seg  model.Segment
		want string
	}{
		{model.Segment{Kind: model.SegmentText, Content: "plain"}, "plain"},
		{model.Segment{Kind: model.SegmentReasoning, Content: "thinking"}, "[reasoning]\nthinking"},
		{model.Segment{Kind: model.SegmentNote, Content: "rate limited", Variant: model.NoteError}, "[error] rate limited"},
		{model.Segment{Kind: model.SegmentTool, ToolName: "search", ToolStatus: model.ToolCompleted, ToolOutput: "hits"}, "[tool search: completed]\nhits"},
	}
	for _, tc := range cases {
		if got := renderSegment(&tc.seg); got != tc.want {
			t.Fatalf("kind=%q got=%q want=%q", tc.seg.Kind, got, tc.want)
		}
	}
}

func TestRenderQuestion(t *testing.T) {
	p := New(0)
	doc := p.RenderQuestion(model.Question{
		Prompt:      "Deploy where?",
		Options:     []string{"staging", "production"},
		AllowCustom: true,
	}, 0, 2, nil, 0, false)

	if doc.Banner != "question 1/2" {
		t.Fatalf("banner=%q", doc.Banner)
	}
	if len(doc.Blocks) != 4 {
		t.Fatalf("blocks=%v", doc.Blocks)
	}
	if doc.Blocks[1] != "1. staging" || doc.Blocks[2] != "2. production" {
		t.Fatalf("options not numbered: %v", doc.Blocks)
	}
}

func TestRenderQuestionPaged(t *testing.T) {
	p := New(0)
	doc := p.RenderQuestion(model.Question{
		Prompt:  "Pick a region",
		Options: []string{"a", "b", "c", "d"},
	}, 0, 1, []string{"c", "d"}, 2, true)

	if doc.Blocks[1] != "3. c" || doc.Blocks[2] != "4. d" {
		t.Fatalf("paged options misnumbered: %v", doc.Blocks)
	}
	if doc.Blocks[3] != "(more options on the next page)" {
		t.Fatalf("missing next-page hint: %v", doc.Blocks)
	}
}
