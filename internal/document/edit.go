package document

import (
	"fmt"
	"slices"

	"go.bug.st/lsp"
	"go.bug.st/lsp/textedits"
)

// ContentChange is one entry of a textDocument/didChange params.contentChanges
// array. Range nil means "replace the whole document" (LSP's full-sync
// shape); Range non-nil means "replace the span described by Range"
// (incremental sync).
type ContentChange struct {
	Range       *lsp.Range
	RangeLength int // advisory only, ignored, per LSP spec wording
	Text        string
}

// TextEdit is one entry of an edit list applied to a single document, the
// shape workspace-edit packages carry per URI.
type TextEdit struct {
	Range   lsp.Range
	NewText string
}

// applyChanges applies each change in array order against the result of the
// previous one, using go.bug.st/lsp/textedits the same way the teacher's own
// test harness applies edits, rather than re-deriving UTF-16/line offset
// arithmetic by hand.
func applyChanges(content string, changes []ContentChange) (string, error) {
	for _, ch := range changes {
		if ch.Range == nil {
			content = ch.Text
			continue
		}
		updated, err := textedits.ApplyTextChange(content, *ch.Range, ch.Text)
		if err != nil {
			return "", err
		}
		content = updated
	}
	return content, nil
}

// ApplyEditList applies edits to content, sorting them into reverse
// document order by start position first so earlier offsets are unaffected
// by later replacements (spec.md §4.3, used by C6's workspace-edit engine).
// Edits are expected to be non-overlapping, per LSP's contract; no overlap
// detection is performed.
func ApplyEditList(content string, edits []TextEdit) (string, error) {
	sorted := slices.Clone(edits)
	slices.SortFunc(sorted, func(a, b TextEdit) int {
		if a.Range.Start.Line != b.Range.Start.Line {
			return b.Range.Start.Line - a.Range.Start.Line
		}
		return b.Range.Start.Character - a.Range.Start.Character
	})

	for _, e := range sorted {
		updated, err := textedits.ApplyTextChange(content, e.Range, e.NewText)
		if err != nil {
			return "", fmt.Errorf("document: apply edit: %w", err)
		}
		content = updated
	}
	return content, nil
}
