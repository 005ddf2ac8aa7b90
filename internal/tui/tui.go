// Package tui is the interactive Bubble Tea list over a todo.Store.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/todo"
	"github.com/Makepad-fr/tada/internal/view"
)

// Options configure a session.
type Options struct {
	Actor string
	Theme string
	Now   func() time.Time
}

// listItem adapts a todo to bubbles/list.Item
type listItem struct {
	todo model.Todo
}

func (i listItem) Title() string       { return i.todo.Title }
func (i listItem) Description() string { return i.todo.DueLabel() }
func (i listItem) FilterValue() string { return i.todo.Title }

type mode int

const (
	browsing mode = iota
	adding
	editing
)

type modelTUI struct {
	ctx   context.Context
	store *todo.Store
	state view.State
	opt   Options
	st    styles

	list   list.Model
	ti     textinput.Model
	mode   mode
	editID string
	inErr  string
	status string

	width, height int

	// Undo support (single-level)
	undo *model.Todo
}

// Custom delegate to control how items render (single line)
type itemDelegate struct {
	st  styles
	now func() time.Time
}

func (d itemDelegate) Height() int                         { return 1 }
func (d itemDelegate) Spacing() int                        { return 0 }
func (d itemDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, _ := item.(listItem)
	box := d.st.muted.Render(d.st.boxUnchecked)
	text := it.todo.Title
	if it.todo.Completed {
		box = d.st.success.Render(d.st.boxChecked)
		text = d.st.done.Render(text)
	}
	line := box + " " + text
	if label := it.todo.DueLabel(); label != "" {
		style := d.st.due
		if !it.todo.Completed && it.todo.DueDate.Before(d.now()) {
			style = d.st.overdue
		}
		line += "  " + style.Render("due "+label)
	}
	prefix := "  "
	if index == m.Index() {
		prefix = d.st.selected.Render("> ")
	}
	fmt.Fprintln(w, prefix+line)
}

var (
	addBind    = key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	editBind   = key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit"))
	toggleBind = key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle"))
	deleteBind = key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete"))
	undoBind   = key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undo"))
	filterBind = key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "filter"))
	sortBind   = key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort"))
)

func newModel(ctx context.Context, s *todo.Store, opt Options) modelTUI {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	m := modelTUI{
		ctx:    ctx,
		store:  s,
		state:  view.NewState(view.All, view.Default),
		opt:    opt,
		st:     stylesFor(opt.Theme),
		width:  80,
		height: 24,
	}

	l := list.New(nil, itemDelegate{st: m.st, now: opt.Now}, 0, 0)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = m.st.title
	l.Styles.HelpStyle = m.st.help
	l.Styles.PaginationStyle = m.st.help
	l.FilterInput.Prompt = "/ "
	l.SetStatusBarItemName("todo", "todos")
	// f and d page by default; they are ours here
	l.KeyMap.NextPage.SetKeys("right", "l", "pgdown")
	l.KeyMap.PrevPage.SetKeys("left", "h", "pgup")
	l.KeyMap.Quit.SetKeys("q")
	extra := []key.Binding{addBind, editBind, toggleBind, deleteBind, undoBind, filterBind, sortBind}
	l.AdditionalShortHelpKeys = func() []key.Binding { return extra[:5] }
	l.AdditionalFullHelpKeys = func() []key.Binding { return extra }
	m.list = l

	// set up text input for inline add/edit
	m.ti = textinput.New()
	m.ti.Prompt = "> "
	m.ti.CharLimit = 200

	m.refresh()
	return m
}

// Run starts the interactive list. Changes are persisted as they happen.
func Run(ctx context.Context, s *todo.Store, opt Options) error {
	p := tea.NewProgram(newModel(ctx, s, opt), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// refresh re-renders the projection and the header counts.
func (m *modelTUI) refresh() {
	items := m.store.View(m.state.Query(m.opt.Actor))
	li := make([]list.Item, 0, len(items))
	for _, it := range items {
		li = append(li, listItem{todo: it})
	}
	sel := m.list.Index()
	m.list.SetItems(li)
	if sel >= len(li) {
		sel = len(li) - 1
	}
	if sel >= 0 {
		m.list.Select(sel)
	}

	all := m.store.View(view.Query{Owner: m.opt.Actor})
	done := 0
	for _, it := range all {
		if it.Completed {
			done++
		}
	}
	m.list.Title = fmt.Sprintf("%s   %s %d  %s %d  %s %d   %s",
		m.st.title.Render("Todos"),
		m.st.success.Render("✔"), done,
		m.st.pending.Render("•"), len(all)-done,
		m.st.accent.Render("Total"), len(all),
		m.st.muted.Render("filter:"+m.state.Filter().String()+" sort:"+m.state.Sort().String()),
	)
}

func (m *modelTUI) selected() (model.Todo, bool) {
	it, ok := m.list.SelectedItem().(listItem)
	return it.todo, ok
}

// report turns a store error into the status line. Not found is expected
// when another session removed the todo.
func (m *modelTUI) report(err error) {
	switch {
	case err == nil:
		m.status = ""
	case errors.Is(err, todo.ErrNotFound):
		m.status = "that todo no longer exists"
	case errors.Is(err, todo.ErrUnauthorized):
		m.status = "not yours to change"
	case errors.Is(err, todo.ErrValidation):
		m.status = err.Error()
	case errors.Is(err, todo.ErrPersistence):
		m.status = "not saved: " + err.Error()
	default:
		m.status = err.Error()
	}
	m.refresh()
}

func (m modelTUI) Init() tea.Cmd { return nil }

func (m modelTUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		m.width, m.height = ws.Width, ws.Height
		return m, nil
	}
	if m.mode != browsing {
		return m.updateInput(msg)
	}

	km, ok := msg.(tea.KeyMsg)
	if !ok || m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch km.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		if t, ok := m.selected(); ok {
			_, err := m.store.Toggle(m.ctx, t.ID)
			m.report(err)
		}
		return m, nil
	case "d":
		if t, ok := m.selected(); ok {
			err := m.store.Delete(m.ctx, t.ID, m.opt.Actor)
			// Undo re-creates the todo, so only offer it once the removal is stored.
			if err == nil {
				tmp := t
				m.undo = &tmp
			}
			m.report(err)
		}
		return m, nil
	case "u":
		if m.undo != nil {
			m.report(m.restore(*m.undo))
			m.undo = nil
		}
		return m, nil
	case "a":
		m.mode = adding
		m.inErr = ""
		m.ti.SetValue("")
		m.ti.Placeholder = "New todo title... (title @ 2024-01-01)"
		return m, m.ti.Focus()
	case "e":
		if t, ok := m.selected(); ok {
			m.mode = editing
			m.editID = t.ID
			m.inErr = ""
			m.ti.SetValue(t.Title)
			m.ti.CursorEnd()
			m.ti.Placeholder = "Edit todo title..."
			return m, m.ti.Focus()
		}
		return m, nil
	case "f":
		m.state.SetFilter(m.state.Filter().Next())
		m.refresh()
		return m, nil
	case "s":
		m.state.SetSort(m.state.Sort().Next())
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// restore re-adds a deleted todo through the store, keeping its state.
func (m *modelTUI) restore(t model.Todo) error {
	added, err := m.store.Add(m.ctx, t.Title, t.DueDate, t.Owner)
	if err != nil || !t.Completed {
		return err
	}
	_, err = m.store.Toggle(m.ctx, added.ID)
	return err
}

func (m modelTUI) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			if err := m.submit(); err != nil {
				m.inErr = err.Error()
				return m, nil
			}
			m.mode = browsing
			m.ti.SetValue("")
			m.ti.Blur()
			return m, nil
		case "esc":
			m.mode = browsing
			m.ti.SetValue("")
			m.ti.Blur()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

// submit returns an error only for input the user should fix; store
// failures end up in the status line.
func (m *modelTUI) submit() error {
	switch m.mode {
	case adding:
		title, due, err := ParseEntry(m.ti.Value())
		if err != nil {
			return err
		}
		if title == "" {
			return errors.New("title cannot be empty")
		}
		_, err = m.store.Add(m.ctx, title, due, m.opt.Actor)
		m.report(err)
	case editing:
		title := strings.TrimSpace(m.ti.Value())
		if title == "" {
			return errors.New("title cannot be empty")
		}
		_, err := m.store.Edit(m.ctx, m.editID, title, m.opt.Actor)
		m.report(err)
	}
	return nil
}

// ParseEntry splits "title @ date" into its parts. Without " @ " the whole
// text is the title.
func ParseEntry(s string) (string, *time.Time, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, " @ ")
	if i < 0 {
		return s, nil, nil
	}
	title := strings.TrimSpace(s[:i])
	due, err := model.ParseDue(strings.TrimSpace(s[i+3:]))
	if err != nil {
		return "", nil, err
	}
	return title, due, nil
}

func (m modelTUI) View() string {
	listHeight := m.height - 5
	if m.mode != browsing {
		listHeight = m.height - 9
	}
	if listHeight < 3 {
		listHeight = 3
	}
	m.list.SetSize(m.width-4, listHeight)

	content := m.list.View()
	if m.status != "" {
		content += "\n" + m.st.err.Render(m.status)
	}
	if m.mode != browsing {
		title := "Add new todo"
		if m.mode == editing {
			title = "Edit todo"
		}
		if m.inErr != "" {
			title += ": " + m.st.err.Render(m.inErr)
		}
		content += "\n" + m.st.frame.Render(title+"\n"+m.ti.View())
	}
	return m.st.frame.Render(content)
}
