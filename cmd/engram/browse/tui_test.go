package browsecmder

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	bubbletea "github.com/charmbracelet/bubbletea"

	"github.com/papercomputeco/engram/pkg/search"
)

var _ = Describe("Browse TUI helpers", func() {
	Describe("splitKeywords", func() {
		It("splits on spaces and commas", func() {
			Expect(splitKeywords("deploy, rollback  kubernetes")).To(Equal([]string{"deploy", "rollback", "kubernetes"}))
		})

		It("returns nothing for blank input", func() {
			Expect(splitKeywords("   ,, ")).To(BeEmpty())
		})
	})

	Describe("clamp", func() {
		It("bounds values to [0, upper]", func() {
			Expect(clamp(-1, 5)).To(Equal(0))
			Expect(clamp(3, 5)).To(Equal(3))
			Expect(clamp(9, 5)).To(Equal(5))
		})
	})

	Describe("truncateText", func() {
		It("leaves short values alone", func() {
			Expect(truncateText("abc", 5)).To(Equal("abc"))
		})

		It("truncates with an ellipsis", func() {
			Expect(truncateText("abcdefgh", 6)).To(Equal("abc..."))
		})
	})

	Describe("visibleRange", func() {
		It("returns the whole range when it fits", func() {
			start, end := visibleRange(3, 0, 10)
			Expect(start).To(Equal(0))
			Expect(end).To(Equal(3))
		})

		It("centers the cursor in a scrolled window", func() {
			start, end := visibleRange(20, 10, 5)
			Expect(start).To(Equal(8))
			Expect(end).To(Equal(13))
		})

		It("clamps to the end", func() {
			start, end := visibleRange(10, 9, 4)
			Expect(start).To(Equal(6))
			Expect(end).To(Equal(10))
		})
	})

	Describe("wrapText", func() {
		It("wraps long paragraphs at the width", func() {
			lines := wrapText("one two three four", 9)
			Expect(lines).To(Equal([]string{"one two", "three", "four"}))
		})

		It("preserves blank lines between paragraphs", func() {
			lines := wrapText("a\n\nb", 10)
			Expect(lines).To(Equal([]string{"a", "", "b"}))
		})
	})

	Describe("newBrowseModel", func() {
		It("focuses the search input when no initial query is given", func() {
			model := newBrowseModel(nil, nil, "")
			Expect(model.input.Focused()).To(BeTrue())
		})

		It("carries an initial query into the input unfocused", func() {
			model := newBrowseModel(nil, nil, "deploy rollback")
			Expect(model.input.Focused()).To(BeFalse())
			Expect(model.input.Value()).To(Equal("deploy rollback"))
		})
	})

	Describe("Update", func() {
		It("stores results and resets the cursor", func() {
			model := newBrowseModel(nil, nil, "deploy")
			model.cursor = 4

			updated, _ := model.Update(resultsMsg{
				keywords: []string{"deploy"},
				results:  []search.Result{{MemoryID: "a"}, {MemoryID: "b"}},
			})

			m := updated.(browseModel)
			Expect(m.results).To(HaveLen(2))
			Expect(m.cursor).To(Equal(0))
			Expect(m.status).To(ContainSubstring("2 results"))
		})

		It("moves the cursor with j and k", func() {
			model := newBrowseModel(nil, nil, "deploy")
			model.results = []search.Result{{MemoryID: "a"}, {MemoryID: "b"}, {MemoryID: "c"}}

			updated, _ := model.Update(bubbletea.KeyMsg{Type: bubbletea.KeyRunes, Runes: []rune("j")})
			m := updated.(browseModel)
			Expect(m.cursor).To(Equal(1))

			updated, _ = m.Update(bubbletea.KeyMsg{Type: bubbletea.KeyRunes, Runes: []rune("k")})
			m = updated.(browseModel)
			Expect(m.cursor).To(Equal(0))

			updated, _ = m.Update(bubbletea.KeyMsg{Type: bubbletea.KeyRunes, Runes: []rune("k")})
			m = updated.(browseModel)
			Expect(m.cursor).To(Equal(0))
		})

		It("returns to the results view on escape", func() {
			model := newBrowseModel(nil, nil, "deploy")
			model.view = viewMemory

			updated, _ := model.Update(bubbletea.KeyMsg{Type: bubbletea.KeyEsc})
			m := updated.(browseModel)
			Expect(m.view).To(Equal(viewResults))
		})
	})
})
