package browsecmder

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/search"
	"github.com/papercomputeco/engram/pkg/store"
)

func init() {
	// Force TrueColor profile to fix lipgloss color detection issue
	// See: https://github.com/charmbracelet/lipgloss/issues/439
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.TrueColor))
	renderer.SetColorProfile(termenv.TrueColor)
	lipgloss.SetDefaultRenderer(renderer)
}

type browseView int

const (
	viewResults browseView = iota
	viewMemory
)

type browseModel struct {
	store   *store.Store
	engine  *search.Engine
	input   textinput.Model
	results []search.Result
	mem     *memory.Memory
	view    browseView
	cursor  int
	width   int
	height  int
	status  string
	keys    browseKeyMap
	help    help.Model
}

var (
	browseTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	browseMutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	browseSectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	browseDividerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	browseHighlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("235")).Background(lipgloss.Color("214")).Bold(true)
	browseTopicStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("135"))
	browseAgentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
)

type browseKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Back   key.Binding
	Search key.Binding
	Quit   key.Binding
}

func (k browseKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Down, k.Up, k.Enter, k.Back, k.Search, k.Quit}
}

func (k browseKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Down, k.Up, k.Enter}, {k.Back, k.Search, k.Quit}}
}

func defaultKeyMap() browseKeyMap {
	return browseKeyMap{
		Up:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		Enter:  key.NewBinding(key.WithKeys("enter", "l"), key.WithHelp("enter", "open")),
		Back:   key.NewBinding(key.WithKeys("h", "esc"), key.WithHelp("h", "back")),
		Search: key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type resultsMsg struct {
	keywords []string
	results  []search.Result
	err      error
}

type memoryLoadedMsg struct {
	mem *memory.Memory
	err error
}

func runBrowseTUI(ctx context.Context, st *store.Store, engine *search.Engine, initialQuery string) error {
	model := newBrowseModel(st, engine, initialQuery)

	program := bubbletea.NewProgram(model,
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)
	_, err := program.Run()
	return err
}

func newBrowseModel(st *store.Store, engine *search.Engine, initialQuery string) browseModel {
	input := textinput.New()
	input.Placeholder = "keywords"
	input.Prompt = "/ "
	input.CharLimit = 200
	input.SetValue(initialQuery)
	if initialQuery == "" {
		input.Focus()
	}

	return browseModel{
		store:  st,
		engine: engine,
		input:  input,
		view:   viewResults,
		keys:   defaultKeyMap(),
		help:   help.New(),
	}
}

func (m browseModel) Init() bubbletea.Cmd {
	if keywords := splitKeywords(m.input.Value()); len(keywords) > 0 {
		return searchCmd(m.engine, keywords)
	}
	return textinput.Blink
}

func (m browseModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case resultsMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.results = msg.results
		m.cursor = 0
		m.status = fmt.Sprintf("%d results for %s", len(msg.results), strings.Join(msg.keywords, " "))
		return m, nil
	case memoryLoadedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.mem = msg.mem
		m.view = viewMemory
		return m, nil
	case bubbletea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m browseModel) View() string {
	switch m.view {
	case viewMemory:
		return m.viewMemory()
	default:
		return m.viewResults()
	}
}

func (m browseModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	if m.input.Focused() {
		switch msg.String() {
		case "ctrl+c":
			return m, bubbletea.Quit
		case "esc":
			m.input.Blur()
			return m, nil
		case "enter":
			m.input.Blur()
			keywords := splitKeywords(m.input.Value())
			if len(keywords) == 0 {
				m.status = "type keywords to search"
				return m, nil
			}
			m.status = "searching..."
			return m, searchCmd(m.engine, keywords)
		}

		var cmd bubbletea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, bubbletea.Quit
	case "j", "down":
		return m.moveCursor(1)
	case "k", "up":
		return m.moveCursor(-1)
	case "l", "enter":
		if m.view == viewResults {
			return m.openMemory()
		}
	case "h", "esc":
		if m.view == viewMemory {
			m.view = viewResults
			m.mem = nil
		}
	case "/":
		if m.view == viewResults {
			m.input.Focus()
			return m, textinput.Blink
		}
	}

	return m, nil
}

func (m browseModel) moveCursor(delta int) (bubbletea.Model, bubbletea.Cmd) {
	if m.view != viewResults || len(m.results) == 0 {
		return m, nil
	}
	m.cursor = clamp(m.cursor+delta, len(m.results)-1)
	return m, nil
}

func (m browseModel) openMemory() (bubbletea.Model, bubbletea.Cmd) {
	if len(m.results) == 0 {
		return m, nil
	}
	return m, loadMemoryCmd(m.store, m.results[m.cursor].MemoryID)
}

func (m browseModel) viewResults() string {
	header := renderHeaderLine(m.width,
		browseTitleStyle.Render("engram browse"),
		browseMutedStyle.Render(m.status),
	)

	lines := []string{header, renderRule(m.width), "", m.input.View(), ""}

	if len(m.results) == 0 {
		lines = append(lines, browseMutedStyle.Render("no results"))
		return strings.Join(append(lines, "", m.viewFooter()), "\n")
	}

	lines = append(lines,
		browseSectionStyle.Render("results"),
		renderRule(m.width),
		browseMutedStyle.Render("  score  agent         topics                        preview"),
	)

	maxVisible := m.visibleResultRows()
	start, end := visibleRange(len(m.results), m.cursor, maxVisible)
	for i := start; i < end; i++ {
		result := m.results[i]
		cursor := " "
		if i == m.cursor {
			cursor = ">"
		}

		preview := result.ContentPreview
		if result.ContentPreviewIsTruncated {
			preview += "..."
		}

		line := fmt.Sprintf("%s %6.2f  %-12s  %-28s  %s",
			cursor,
			result.RelevanceScore,
			truncateText(result.Agent, 12),
			browseTopicStyle.Render(truncateText(strings.Join(result.MemoryTopics, ","), 28)),
			truncateText(strings.ReplaceAll(preview, "\n", " "), max(m.width-56, 16)),
		)

		if i == m.cursor {
			line = browseHighlightStyle.Render(line)
		}

		lines = append(lines, line)
	}

	return strings.Join(append(lines, "", m.viewFooter()), "\n")
}

func (m browseModel) viewMemory() string {
	if m.mem == nil {
		return browseMutedStyle.Render("no memory selected")
	}

	header := renderHeaderLine(m.width,
		browseTitleStyle.Render("engram browse › "+m.mem.ID),
		browseMutedStyle.Render(m.mem.Timestamp.Format("2006-01-02 15:04:05")),
	)

	lines := []string{header, renderRule(m.width), ""}
	lines = append(lines,
		fmt.Sprintf("%s %s    %s %s",
			browseMutedStyle.Render("agent:"), browseAgentStyle.Render(m.mem.Agent),
			browseMutedStyle.Render("user:"), browseAgentStyle.Render(m.mem.User),
		),
		fmt.Sprintf("%s %s", browseMutedStyle.Render("topics:"), browseTopicStyle.Render(strings.Join(m.mem.Topics, ", "))),
		"",
		browseSectionStyle.Render("content"),
		renderRule(m.width),
	)

	lines = append(lines, wrapText(m.mem.Content, max(m.width-2, 20))...)

	return strings.Join(append(lines, "", m.viewFooter()), "\n")
}

func (m browseModel) viewFooter() string {
	return browseMutedStyle.Render(m.help.View(m.keys))
}

// visibleResultRows leaves room for the header, search box, column labels,
// and footer.
func (m browseModel) visibleResultRows() int {
	screenHeight := m.height
	if screenHeight <= 0 {
		screenHeight = 40
	}
	return max(screenHeight-10, 5)
}

func searchCmd(engine *search.Engine, keywords []string) bubbletea.Cmd {
	return func() bubbletea.Msg {
		results, err := engine.Search(context.Background(), keywords)
		return resultsMsg{keywords: keywords, results: results, err: err}
	}
}

func loadMemoryCmd(st *store.Store, id string) bubbletea.Cmd {
	return func() bubbletea.Msg {
		results := st.Recall(context.Background(), []string{id})
		if len(results) == 0 {
			return memoryLoadedMsg{err: fmt.Errorf("memory not found: %s", id)}
		}
		if results[0].Err != nil {
			return memoryLoadedMsg{err: results[0].Err}
		}
		return memoryLoadedMsg{mem: results[0].Memory}
	}
}

func splitKeywords(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == ','
	})
	keywords := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			keywords = append(keywords, trimmed)
		}
	}
	return keywords
}

func clamp(value, upper int) int {
	if value < 0 {
		return 0
	}
	if value > upper {
		return upper
	}
	return value
}

func truncateText(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}

func renderHeaderLine(width int, left, right string) string {
	lineWidth := width
	if lineWidth <= 0 {
		lineWidth = 80
	}
	leftWidth := lipgloss.Width(left)
	rightWidth := lipgloss.Width(right)
	if leftWidth+rightWidth+1 >= lineWidth {
		return strings.TrimSpace(left + " " + right)
	}
	spacing := lineWidth - leftWidth - rightWidth
	return left + strings.Repeat(" ", spacing) + right
}

func renderRule(width int) string {
	lineWidth := width
	if lineWidth <= 0 {
		lineWidth = 80
	}
	return browseDividerStyle.Render(strings.Repeat("─", lineWidth))
}

func visibleRange(total, cursor, size int) (int, int) {
	if total <= 0 || size <= 0 {
		return 0, 0
	}
	if total <= size {
		return 0, total
	}
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= total {
		cursor = total - 1
	}
	start := max(cursor-(size/2), 0)
	end := start + size
	if end > total {
		end = total
		start = max(end-size, 0)
	}
	return start, end
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}
	lines := []string{}
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := ""
		for _, word := range words {
			if current == "" {
				current = word
				continue
			}
			if lipgloss.Width(current)+1+lipgloss.Width(word) <= width {
				current = current + " " + word
				continue
			}
			lines = append(lines, current)
			current = word
		}
		if current != "" {
			lines = append(lines, current)
		}
	}
	return lines
}
