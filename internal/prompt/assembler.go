// Package prompt assembles the bounded instruction block handed to the
// downstream model. Assembly is a pure function of its input.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// DefaultMaxChars is the default prompt bound in characters.
const DefaultMaxChars = 12000

const (
	blockSeparator = "\n\n"
	ellipsis       = "..."
	trimmedMarker  = "(trimmed to fit)"
	emptyMarker    = "(none)"
)

// Input is everything the assembler merges.
type Input struct {
	// Preamble opens the prompt. Optional.
	Preamble string

	Question string

	// Chunks are retrieved passages in rank order.
	Chunks []domain.RetrievedChunk

	// Record is the structured snapshot. Nil renders as unavailable.
	Record *domain.AggregateRecord

	// Contract is the output-format instruction. It is always last and never cut.
	Contract string
}

// Assembler renders Input into a prompt of at most MaxChars characters.
type Assembler struct {
	MaxChars int
}

// New returns an assembler bounded by maxChars (DefaultMaxChars when <= 0).
func New(maxChars int) *Assembler {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Assembler{MaxChars: maxChars}
}

// dropOrder lists which block loses items first when over budget.
// Within a block, items are removed from the least relevant end.
var dropOrder = []string{
	string(domain.SectionChat),
	string(domain.SectionBroadcasts),
	string(domain.SectionPlaces),
	string(domain.SectionPreferences),
	string(domain.SectionPolls),
	string(domain.SectionLedger),
	string(domain.SectionRoster),
	string(domain.SectionCalendar),
	blockKnowledge,
}

const (
	blockQuestion  = "question"
	blockKnowledge = "knowledge"
	blockState     = "state"
)

// block is one titled region of the prompt.
type block struct {
	key    string
	header string
	items  []string

	// note replaces items when the block is empty from the start.
	note string

	// dropFront removes items from the front (oldest chat first).
	dropFront bool
	trimmed   int
}

func (b *block) render() string {
	var sb strings.Builder
	sb.WriteString(b.header)
	switch {
	case len(b.items) > 0:
		for _, item := range b.items {
			sb.WriteString("\n")
			sb.WriteString(item)
		}
		if b.trimmed > 0 {
			sb.WriteString("\n")
			sb.WriteString(trimmedMarker)
		}
	case b.trimmed > 0:
		sb.WriteString("\n")
		sb.WriteString(trimmedMarker)
	case b.note != "":
		sb.WriteString("\n")
		sb.WriteString(b.note)
	}
	return sb.String()
}

func (b *block) dropOne() bool {
	if len(b.items) == 0 {
		return false
	}
	if b.dropFront {
		b.items = b.items[1:]
	} else {
		b.items = b.items[:len(b.items)-1]
	}
	b.trimmed++
	return true
}

// Assemble renders in into a prompt. Identical input yields identical output.
// It fails with domain.ErrInvalidInput only when the preamble and contract
// cannot fit together.
func (a *Assembler) Assemble(in Input) (string, error) {
	maxChars := a.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	contract := renderContract(in.Contract)
	contractLen := utf8.RuneCountInString(contract)
	if contractLen > maxChars {
		return "", fmt.Errorf("%w: output contract is %d characters, budget is %d",
			domain.ErrInvalidInput, contractLen, maxChars)
	}
	budget := maxChars - contractLen - utf8.RuneCountInString(blockSeparator)

	// The preamble is never trimmed, so it must fit beside the contract.
	preamble := strings.TrimSpace(in.Preamble)
	if n := utf8.RuneCountInString(preamble); n > 0 && n > budget {
		return "", fmt.Errorf("%w: preamble is %d characters, %d left after the output contract",
			domain.ErrInvalidInput, n, max(budget, 0))
	}

	question := &block{key: blockQuestion, header: "## Question", items: []string{strings.TrimSpace(in.Question)}}
	blocks := []*block{question, knowledgeBlock(in.Chunks)}
	blocks = append(blocks, stateBlocks(in.Record)...)

	byKey := make(map[string]*block, len(blocks))
	for _, b := range blocks {
		byKey[b.key] = b
	}

	body := renderBody(preamble, blocks)
	for utf8.RuneCountInString(body) > budget {
		if !dropNext(byKey) {
			break
		}
		body = renderBody(preamble, blocks)
	}

	if over := utf8.RuneCountInString(body) - budget; over > 0 {
		q := question.items[0]
		keep := utf8.RuneCountInString(q) - over - utf8.RuneCountInString(ellipsis)
		if keep > 0 {
			question.items[0] = string([]rune(q)[:keep]) + ellipsis
			body = renderBody(preamble, blocks)
		}
	}

	// Headers alone can still exceed a tiny budget; cut the body hard.
	if utf8.RuneCountInString(body) > budget {
		if budget <= 0 {
			return contract, nil
		}
		body = string([]rune(body)[:budget])
	}

	return body + blockSeparator + contract, nil
}

func dropNext(byKey map[string]*block) bool {
	for _, key := range dropOrder {
		if b, ok := byKey[key]; ok && b.dropOne() {
			return true
		}
	}
	return false
}

func renderBody(preamble string, blocks []*block) string {
	parts := make([]string, 0, len(blocks)+1)
	if preamble != "" {
		parts = append(parts, preamble)
	}
	for _, b := range blocks {
		parts = append(parts, b.render())
	}
	return strings.Join(parts, blockSeparator)
}

func renderContract(contract string) string {
	return "## Output contract\n" + strings.TrimSpace(contract)
}

func knowledgeBlock(chunks []domain.RetrievedChunk) *block {
	b := &block{
		key:    blockKnowledge,
		header: "## Trip documents",
		note:   "(no matching documents)",
	}
	for i, rc := range chunks {
		b.items = append(b.items, formatChunk(i+1, rc))
	}
	return b
}

// stateBlocks renders the structured sections in the fixed section order.
func stateBlocks(rec *domain.AggregateRecord) []*block {
	if rec == nil {
		return []*block{{key: blockState, header: "## Trip state", note: "(unavailable)"}}
	}

	heading := &block{key: blockState, header: "## Trip state"}
	if rec.Stale {
		heading.note = fmt.Sprintf("(as of %s, may be out of date)", formatTime(rec.ComputedAt))
	} else if !rec.ComputedAt.IsZero() {
		heading.note = fmt.Sprintf("(as of %s)", formatTime(rec.ComputedAt))
	}

	blocks := []*block{heading}
	for _, kind := range domain.SectionOrder {
		b := &block{key: string(kind), header: sectionHeader(kind, rec), note: emptyMarker}
		if rec.IsOmitted(kind) {
			b.note = "(omitted: " + rec.OmissionReason(kind) + ")"
			blocks = append(blocks, b)
			continue
		}
		b.items = sectionItems(kind, rec)
		b.dropFront = kind == domain.SectionChat
		blocks = append(blocks, b)
	}
	return blocks
}
