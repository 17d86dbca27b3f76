package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/vulnrecon/internal/models"
	"github.com/ppiankov/vulnrecon/internal/reconcile"
)

// Curator applies curation operations to a stored session. Both the local
// session manager and the remote API client satisfy it.
type Curator interface {
	MergeWithMatched(ctx context.Context, id, name string, targetID int) (*reconcile.View, error)
	MergeWithUnmatched(ctx context.Context, id string, names []string, details models.Details) (*reconcile.View, error)
	AddDetails(ctx context.Context, id, name string, details models.Details) (*reconcile.View, error)
	MergeMatchedGroups(ctx context.Context, id string, sourceID, targetID int) (*reconcile.View, error)
	Undo(ctx context.Context, id string) (*reconcile.View, error)
}

// mode represents the current UI interaction mode.
type mode int

const (
	modeNormal mode = iota
	modeSearch
	modePick
	modeForm
)

// pane is the table that has keyboard focus.
type pane int

const (
	paneUnmatched pane = iota
	paneGroups
)

// pickPurpose says what the group picker's choice will be used for.
type pickPurpose int

const (
	pickForFindings pickPurpose = iota
	pickForGroup
)

// formPurpose says which operation a submitted detail form runs.
type formPurpose int

const (
	formNewGroup formPurpose = iota
	formSingle
)

const defaultTableHeight = 10

// opMsg carries the result of a curation operation back into Update.
type opMsg struct {
	view   *reconcile.View
	status string
	delta  int
	err    error
}

// Model is the top-level Bubble Tea model for interactive curation.
type Model struct {
	ctx       context.Context
	curator   Curator
	sessionID string
	view      *reconcile.View
	undoable  int

	// UI state
	unmatchedTable table.Model
	groupTable     table.Model
	searchInput    textinput.Model
	form           detailForm
	formPurpose    formPurpose
	formNames      []string
	filters        filterState
	sortBy         sortField
	shownUnmatched []string
	shownGroups    []models.Group
	marked         map[string]bool
	focus          pane
	mode           mode
	pickPurpose    pickPurpose
	pickNames      []string
	pickSource     int
	pickChoices    []models.Group
	pickCursor     int
	width          int
	height         int
	statusMsg      string
	busy           bool
}

// New creates a curation model for a session.
func New(ctx context.Context, curator Curator, sessionID string, view *reconcile.View, undoable int) Model {
	ti := textinput.New()
	ti.Placeholder = "search..."
	ti.CharLimit = 64

	m := Model{
		ctx:            ctx,
		curator:        curator,
		sessionID:      sessionID,
		view:           view,
		undoable:       undoable,
		unmatchedTable: newTable(unmatchedColumns, nil, defaultTableHeight, true),
		groupTable:     newTable(groupColumns, nil, defaultTableHeight, false),
		searchInput:    ti,
		marked:         make(map[string]bool),
		sortBy:         sortByOrder,
		mode:           modeNormal,
		width:          80,
		height:         24,
	}
	m.rebuildTables()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.unmatchedTable.SetWidth(msg.Width)
		m.groupTable.SetWidth(msg.Width)
		tableH := (msg.Height - headerHeight - detailHeight - 6) / 2
		if tableH < 3 {
			tableH = 3
		}
		m.unmatchedTable.SetHeight(tableH)
		m.groupTable.SetHeight(tableH)
		return m, nil

	case opMsg:
		return m.applyResult(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	switch m.mode {
	case modeSearch:
		m.searchInput, cmd = m.searchInput.Update(msg)
	case modeForm:
		m.form, _, _, cmd = m.form.update(msg)
	}
	return m, cmd
}

func (m Model) applyResult(msg opMsg) Model {
	m.busy = false
	if msg.err != nil {
		m.statusMsg = "Error: " + msg.err.Error()
		return m
	}
	m.view = msg.view
	m.undoable = max(m.undoable+msg.delta, 0)
	for name := range m.marked {
		if !slices.Contains(m.view.Unmatched, name) {
			delete(m.marked, name)
		}
	}
	m.statusMsg = msg.status
	m.rebuildTables()
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeSearch:
		return m.handleSearchKey(msg)
	case modePick:
		return m.handlePickKey(msg)
	case modeForm:
		return m.handleFormKey(msg)
	default:
		return m.handleNormalKey(msg)
	}
}

func (m Model) handleNormalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Switch):
		m.switchPane()
		return m, nil
	case key.Matches(msg, keys.Search):
		m.mode = modeSearch
		m.searchInput.Focus()
		return m, textinput.Blink
	case key.Matches(msg, keys.Sort):
		m.sortBy = (m.sortBy + 1) % sortField(sortFieldCount)
		m.rebuildTables()
		m.statusMsg = fmt.Sprintf("Sort: %s", sortFieldName(m.sortBy))
		return m, nil
	case key.Matches(msg, keys.ClearFilter):
		m.filters = filterState{}
		m.marked = make(map[string]bool)
		m.statusMsg = ""
		m.rebuildTables()
		return m, nil
	case key.Matches(msg, keys.Undo):
		return m.startOp("Undone", func(ctx context.Context) (*reconcile.View, int, error) {
			v, err := m.curator.Undo(ctx, m.sessionID)
			return v, -1, err
		})
	}

	if m.focus == paneUnmatched {
		switch {
		case key.Matches(msg, keys.Mark):
			if name := m.selectedFinding(); name != "" {
				m.marked[name] = !m.marked[name]
				if !m.marked[name] {
					delete(m.marked, name)
				}
				m.rebuildTables()
			}
			return m, nil
		case key.Matches(msg, keys.Merge):
			names := m.targetFindings()
			if len(names) == 0 || len(m.view.MatchedGroups) == 0 {
				m.statusMsg = "Nothing to merge"
				return m, nil
			}
			m.openPicker(pickForFindings, names, 0)
			return m, nil
		case key.Matches(msg, keys.NewGroup):
			names := m.targetFindings()
			if len(names) == 0 {
				m.statusMsg = "Nothing selected"
				return m, nil
			}
			return m.openForm(formNewGroup, names)
		case key.Matches(msg, keys.Details):
			name := m.selectedFinding()
			if name == "" {
				m.statusMsg = "Nothing selected"
				return m, nil
			}
			return m.openForm(formSingle, []string{name})
		}
	}

	if m.focus == paneGroups && key.Matches(msg, keys.MergeGroup) {
		g := m.selectedGroup()
		if g == nil || len(m.view.MatchedGroups) < 2 {
			m.statusMsg = "Nothing to merge"
			return m, nil
		}
		m.openPicker(pickForGroup, nil, g.ID)
		return m, nil
	}

	var cmd tea.Cmd
	if m.focus == paneGroups {
		m.groupTable, cmd = m.groupTable.Update(msg)
	} else {
		m.unmatchedTable, cmd = m.unmatchedTable.Update(msg)
	}
	return m, cmd
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filters.SearchText = m.searchInput.Value()
		m.mode = modeNormal
		m.searchInput.Blur()
		m.rebuildTables()
		return m, nil
	case "esc":
		m.mode = modeNormal
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model) handlePickKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.pickCursor > 0 {
			m.pickCursor--
		}
	case "down", "j":
		if m.pickCursor < len(m.pickChoices)-1 {
			m.pickCursor++
		}
	case "enter":
		m.mode = modeNormal
		if len(m.pickChoices) == 0 {
			return m, nil
		}
		target := m.pickChoices[m.pickCursor]
		if m.pickPurpose == pickForGroup {
			source := m.pickSource
			return m.startOp(fmt.Sprintf("Merged #%d into #%d", source, target.ID),
				func(ctx context.Context) (*reconcile.View, int, error) {
					v, err := m.curator.MergeMatchedGroups(ctx, m.sessionID, source, target.ID)
					return v, 1, err
				})
		}
		names := m.pickNames
		return m.startOp(fmt.Sprintf("Merged %d finding(s) into #%d", len(names), target.ID),
			func(ctx context.Context) (*reconcile.View, int, error) {
				var view *reconcile.View
				for i, name := range names {
					v, err := m.curator.MergeWithMatched(ctx, m.sessionID, name, target.ID)
					if err != nil {
						return view, i, err
					}
					view = v
				}
				return view, len(names), nil
			})
	case "esc":
		m.mode = modeNormal
	}
	return m, nil
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	form, submit, cancel, cmd := m.form.update(msg)
	m.form = form
	if cancel {
		m.mode = modeNormal
		return m, nil
	}
	if !submit {
		return m, cmd
	}

	m.mode = modeNormal
	details := form.details()
	names := m.formNames
	if m.formPurpose == formSingle {
		return m.startOp(fmt.Sprintf("Created group %q", details.Name),
			func(ctx context.Context) (*reconcile.View, int, error) {
				v, err := m.curator.AddDetails(ctx, m.sessionID, names[0], details)
				return v, 1, err
			})
	}
	return m.startOp(fmt.Sprintf("Created group %q from %d finding(s)", details.Name, len(names)),
		func(ctx context.Context) (*reconcile.View, int, error) {
			v, err := m.curator.MergeWithUnmatched(ctx, m.sessionID, names, details)
			return v, 1, err
		})
}

// startOp runs op off the update loop. op returns the new view and how many
// operations it added to the undo log (negative for undo).
func (m Model) startOp(status string, op func(context.Context) (*reconcile.View, int, error)) (tea.Model, tea.Cmd) {
	if m.busy {
		m.statusMsg = "Busy"
		return m, nil
	}
	m.busy = true
	ctx := m.ctx
	return m, func() tea.Msg {
		view, delta, err := op(ctx)
		if err != nil && view != nil {
			// A multi-finding merge failed part way; show what was applied.
			return opMsg{view: view, status: "Partially applied: " + err.Error(), delta: delta}
		}
		return opMsg{view: view, status: status, delta: delta, err: err}
	}
}

func (m *Model) openPicker(purpose pickPurpose, names []string, sourceID int) {
	m.mode = modePick
	m.pickPurpose = purpose
	m.pickNames = names
	m.pickSource = sourceID
	m.pickCursor = 0
	choices := make([]models.Group, 0, len(m.view.MatchedGroups))
	for _, g := range m.view.MatchedGroups {
		if purpose == pickForGroup && g.ID == sourceID {
			continue
		}
		choices = append(choices, g)
	}
	m.pickChoices = choices
}

func (m Model) openForm(purpose formPurpose, names []string) (tea.Model, tea.Cmd) {
	title := "New group from 1 finding"
	if purpose == formNewGroup && len(names) > 1 {
		title = fmt.Sprintf("New group from %d findings", len(names))
	}
	m.mode = modeForm
	m.formPurpose = purpose
	m.formNames = names
	m.form = newDetailForm(title, names[0])
	return m, textinput.Blink
}

func (m *Model) switchPane() {
	if m.focus == paneUnmatched {
		m.focus = paneGroups
		m.unmatchedTable.Blur()
		m.groupTable.Focus()
		return
	}
	m.focus = paneUnmatched
	m.groupTable.Blur()
	m.unmatchedTable.Focus()
}

func (m *Model) rebuildTables() {
	m.shownUnmatched = filterNames(m.view.Unmatched, m.filters)
	m.unmatchedTable.SetRows(buildUnmatchedRows(m.shownUnmatched, m.marked))
	if c := m.unmatchedTable.Cursor(); c >= len(m.shownUnmatched) && len(m.shownUnmatched) > 0 {
		m.unmatchedTable.SetCursor(len(m.shownUnmatched) - 1)
	}

	groups := filterGroups(m.view.MatchedGroups, m.filters)
	sortGroups(groups, m.sortBy)
	m.shownGroups = groups
	m.groupTable.SetRows(buildGroupRows(groups))
	if c := m.groupTable.Cursor(); c >= len(groups) && len(groups) > 0 {
		m.groupTable.SetCursor(len(groups) - 1)
	}
}

func (m *Model) selectedFinding() string {
	cursor := m.unmatchedTable.Cursor()
	if cursor < 0 || cursor >= len(m.shownUnmatched) {
		return ""
	}
	return m.shownUnmatched[cursor]
}

func (m *Model) selectedGroup() *models.Group {
	cursor := m.groupTable.Cursor()
	if cursor < 0 || cursor >= len(m.shownGroups) {
		return nil
	}
	return &m.shownGroups[cursor]
}

// targetFindings returns the marked findings in sorted order, or the selected
// one when nothing is marked.
func (m *Model) targetFindings() []string {
	if len(m.marked) > 0 {
		names := make([]string, 0, len(m.marked))
		for name := range m.marked {
			names = append(names, name)
		}
		slices.Sort(names)
		return names
	}
	if name := m.selectedFinding(); name != "" {
		return []string{name}
	}
	return nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(renderHeader(m.sessionID, m.view, m.undoable, m.width))
	b.WriteString("\n")

	if m.mode == modeSearch {
		b.WriteString(styleSearchPrompt.Render("/ "))
		b.WriteString(m.searchInput.View())
		b.WriteString("\n")
	}

	switch m.mode {
	case modePick:
		b.WriteString(m.renderPicker())
		b.WriteString("\n")
	case modeForm:
		b.WriteString(m.form.view())
		b.WriteString("\n")
	default:
		b.WriteString(m.paneTitle("Unmatched", paneUnmatched, len(m.shownUnmatched), len(m.view.Unmatched)))
		b.WriteString("\n")
		b.WriteString(m.unmatchedTable.View())
		b.WriteString("\n")
		b.WriteString(m.paneTitle("Groups", paneGroups, len(m.shownGroups), len(m.view.MatchedGroups)))
		b.WriteString("\n")
		b.WriteString(m.groupTable.View())
		b.WriteString("\n")
		if m.focus == paneGroups {
			b.WriteString(renderGroupDetail(m.selectedGroup(), m.width))
		} else {
			b.WriteString(renderFindingDetail(m.selectedFinding(), len(m.marked), m.width))
		}
		b.WriteString("\n")
	}

	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) paneTitle(title string, p pane, shown, total int) string {
	text := fmt.Sprintf("%s (%d/%d)", title, shown, total)
	if m.focus == p {
		return stylePaneTitleActive.Render(text)
	}
	return stylePaneTitle.Render(text)
}

func (m *Model) renderPicker() string {
	var b strings.Builder
	if m.pickPurpose == pickForGroup {
		b.WriteString(fmt.Sprintf("Merge group #%d into:\n", m.pickSource))
	} else {
		b.WriteString(fmt.Sprintf("Merge %d finding(s) into:\n", len(m.pickNames)))
	}
	for i, g := range m.pickChoices {
		cursor := "  "
		if i == m.pickCursor {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s#%d %s (%s)\n", cursor, g.ID, g.Name, riskStyle(g.Risk).Render(g.Risk)))
	}
	return b.String()
}

func (m *Model) renderFooter() string {
	left := "q:quit  tab:pane  space:mark  m:merge  n:new  d:details  u:undo  /:search"
	if m.focus == paneGroups {
		left = "q:quit  tab:pane  g:merge group  s:sort  u:undo  /:search"
	}
	right := m.statusMsg

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	return styleFooter.Render(left + strings.Repeat(" ", gap) + right)
}

// Run starts the Bubble Tea program. Called from the curate command.
func Run(ctx context.Context, curator Curator, sessionID string, view *reconcile.View, undoable int) error {
	m := New(ctx, curator, sessionID, view, undoable)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
