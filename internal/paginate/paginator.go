// Package paginate renders a timeline snapshot into one or more bounded
// card documents and reconciles them against previously sent artifacts.
package paginate

import (
	"fmt"
	"strings"

	"github.com/cardbridge/stream-renderer/internal/model"
	"github.com/cardbridge/stream-renderer/internal/timeline"
)

const (
	// DefaultComponentBudget caps components per card.
	DefaultComponentBudget = 40

	// maxBlockBytes caps one rendered segment body. A segment is never
	// split across cards, so an oversized one is hard-truncated instead,
	// keeping the tail.
	maxBlockBytes = 3500

	// maxDocBytes caps the combined body size of one card.
	maxDocBytes = 3800
)

// PendingQuestion is the banner summary of an outstanding question.
type PendingQuestion struct {
	Prompt string
	Index  int
	Total  int
}

// Paginator packs segments, in order, into successive documents under a
// component budget.
type Paginator struct {
	budget int
}

// New creates a paginator. A non-positive budget falls back to the default.
func New(componentBudget int) *Paginator {
	if componentBudget <= 0 {
		componentBudget = DefaultComponentBudget
	}
	return &Paginator{budget: componentBudget}
}

// Render produces the documents for one flush. The first document always
// carries the status banner and, when present, the pending-permission and
// pending-question summaries, so actionable state is on one card.
func (p *Paginator) Render(segs []model.Segment, status model.TurnStatus, perm *model.PendingPermission, question *PendingQuestion) []*model.Document {
	banner := renderBanner(status, perm, question)

	first := &model.Document{Banner: banner}
	docs := []*model.Document{first}
	cur := first
	curBytes := len(banner)

	for i := range segs {
		block := renderSegment(&segs[i])
		if block == "" {
			continue
		}
		if len(block) > maxBlockBytes {
			dropped := len(block) - maxBlockBytes
			block = fmt.Sprintf("… [%d bytes truncated]\n%s", dropped, block[dropped:])
		}
		if cur.ComponentCount()+1 > p.budget || (len(cur.Blocks) > 0 && curBytes+len(block) > maxDocBytes) {
			cur = &model.Document{}
			docs = append(docs, cur)
			curBytes = 0
		}
		cur.Blocks = append(cur.Blocks, block)
		curBytes += len(block)
	}

	return docs
}

// RenderQuestion produces the dedicated prompt card for one interactive
// question. Options carry the current page's slice; offset is the
// absolute index of its first option, so numbering stays stable across
// pages.
func (p *Paginator) RenderQuestion(q model.Question, index, total int, options []string, offset int, more bool) *model.Document {
	doc := &model.Document{
		Banner: fmt.Sprintf("question %d/%d", index+1, total),
		Blocks: []string{q.Prompt},
	}
	if options == nil {
		options = q.Options
	}
	for i, opt := range options {
		doc.Blocks = append(doc.Blocks, fmt.Sprintf("%d. %s", offset+i+1, opt))
	}
	if more {
		doc.Blocks = append(doc.Blocks, "(more options on the next page)")
	}
	if q.AllowCustom {
		doc.Blocks = append(doc.Blocks, "(or reply with a custom answer)")
	}
	return doc
}

// RenderNotice produces a small transient notice card.
func (p *Paginator) RenderNotice(text string) *model.Document {
	return &model.Document{Blocks: []string{text}}
}

func renderBanner(status model.TurnStatus, perm *model.PendingPermission, question *PendingQuestion) string {
	var lines []string
	switch status {
	case model.TurnRunning:
		lines = append(lines, "status: processing")
	case model.TurnCompleted:
		lines = append(lines, "status: completed")
	case model.TurnFailed:
		lines = append(lines, "status: failed")
	case model.TurnAborted:
		lines = append(lines, "status: aborted")
	}
	if perm != nil {
		line := fmt.Sprintf("permission requested: %s: %s", perm.Tool, perm.Description)
		if perm.Risk != "" {
			line += fmt.Sprintf(" (risk: %s)", perm.Risk)
		}
		lines = append(lines, line)
	}
	if question != nil {
		lines = append(lines, fmt.Sprintf("question %d/%d: %s", question.Index+1, question.Total, question.Prompt))
	}
	return strings.Join(lines, "\n")
}

func renderSegment(seg *model.Segment) string {
	switch seg.Kind {
	case model.SegmentText:
		return seg.Content
	case model.SegmentReasoning:
		return "[reasoning]\n" + seg.Content
	case model.SegmentTool:
		var b strings.Builder
		fmt.Fprintf(&b, "[tool %s: %s]", seg.ToolName, seg.ToolStatus)
		if seg.ToolOutput != "" {
			b.WriteString("\n")
			b.WriteString(timeline.ClipAnnotation(seg))
			b.WriteString(seg.ToolOutput)
		}
		return b.String()
	case model.SegmentNote:
		return fmt.Sprintf("[%s] %s", seg.Variant, seg.Content)
	default:
		return seg.Content
	}
}
