// Package tui is the interactive terminal front end of the todo client.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
	"github.com/dankoteck/extremely-simple-todo-app/internal/viewmodel"
)

// Bridge carries view-model events into a running program. It is the
// view-model's Notifier, and Changed is meant for ViewModel.Subscribe.
type Bridge struct {
	changed chan struct{}
	toasts  chan viewmodel.Toast
}

// NewBridge returns an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{
		changed: make(chan struct{}, 1),
		toasts:  make(chan viewmodel.Toast, 16),
	}
}

// Notify implements viewmodel.Notifier. Toasts beyond the buffer are dropped.
func (b *Bridge) Notify(t viewmodel.Toast) {
	select {
	case b.toasts <- t:
	default:
	}
}

// Changed signals that the cached list changed. Signals coalesce; the
// model always rereads the latest list.
func (b *Bridge) Changed([]todo.Todo) {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

type (
	changedMsg struct{}
	toastMsg   viewmodel.Toast
	expiredMsg struct{ id int }
	frameMsg   struct{}
	loadedMsg  struct{ err error }
	settledMsg struct{ err error }
)

const frameInterval = 200 * time.Millisecond

type shownToast struct {
	id      int
	toast   viewmodel.Toast
	shownAt time.Time
}

// Model is the bubbletea model of the todo list.
type Model struct {
	ctx    context.Context
	vm     *viewmodel.ViewModel
	bridge *Bridge
	now    func() time.Time

	todos  []todo.Todo
	cursor int
	err    error

	adding bool
	input  textinput.Model
	keys   keyMap
	help   help.Model

	toasts    []shownToast
	nextToast int
	ticking   bool

	width, height int
}

// New returns a model rendering vm. Events reach it through bridge, which
// must be the notifier vm was created with.
func New(ctx context.Context, vm *viewmodel.ViewModel, bridge *Bridge) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "What needs to be done?"
	ti.CharLimit = 200

	return Model{
		ctx:    ctx,
		vm:     vm,
		bridge: bridge,
		now:    time.Now,
		todos:  vm.Todos(),
		input:  ti,
		keys:   defaultKeys(),
		help:   help.New(),
		width:  80,
		height: 24,
	}
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, vm *viewmodel.ViewModel, bridge *Bridge) error {
	unsubscribe := vm.Subscribe(bridge.Changed)
	defer unsubscribe()

	p := tea.NewProgram(New(ctx, vm, bridge),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.waitChanged(), m.waitToast())
}

func (m Model) load() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: m.vm.Load(m.ctx)}
	}
}

func (m Model) waitChanged() tea.Cmd {
	return func() tea.Msg {
		<-m.bridge.changed
		return changedMsg{}
	}
}

func (m Model) waitToast() tea.Cmd {
	return func() tea.Msg {
		return toastMsg(<-m.bridge.toasts)
	}
}

func (m Model) mutate(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return settledMsg{err: fn(m.ctx)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case changedMsg:
		m.setTodos(m.vm.Todos())
		return m, m.waitChanged()

	case loadedMsg:
		m.err = msg.err
		m.setTodos(m.vm.Todos())
		return m, nil

	case settledMsg:
		// Failures were already toasted by the view-model.
		m.err = m.vm.Err()
		return m, nil

	case toastMsg:
		return m.showToast(viewmodel.Toast(msg))

	case expiredMsg:
		m.dropToast(msg.id)
		return m, nil

	case frameMsg:
		if len(m.toasts) == 0 {
			m.ticking = false
			return m, nil
		}
		return m, frame()

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.dismissToasts()
		}
		return m, nil

	case tea.KeyMsg:
		if m.adding {
			return m.updateInput(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		title := m.input.Value()
		m.adding = false
		m.input.SetValue("")
		m.input.Blur()
		return m, m.mutate(func(ctx context.Context) error { return m.vm.Add(ctx, title) })
	case tea.KeyEsc:
		m.adding = false
		m.input.SetValue("")
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.todos)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Add):
		m.adding = true
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Toggle):
		if t, ok := m.selected(); ok {
			return m, m.mutate(func(ctx context.Context) error {
				return m.vm.ToggleCompleted(ctx, t.ID, !t.Completed)
			})
		}
	case key.Matches(msg, m.keys.Delete):
		if t, ok := m.selected(); ok {
			return m, m.mutate(func(ctx context.Context) error { return m.vm.Delete(ctx, t.ID) })
		}
	case key.Matches(msg, m.keys.Refresh):
		return m, m.load()
	case key.Matches(msg, m.keys.Dismiss):
		m.dismissToasts()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *Model) setTodos(todos []todo.Todo) {
	m.todos = todos
	if m.cursor >= len(todos) {
		m.cursor = len(todos) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) selected() (todo.Todo, bool) {
	if m.cursor < 0 || m.cursor >= len(m.todos) {
		return todo.Todo{}, false
	}
	return m.todos[m.cursor], true
}

func (m Model) showToast(t viewmodel.Toast) (tea.Model, tea.Cmd) {
	id := m.nextToast
	m.nextToast++
	m.toasts = append(m.toasts, shownToast{id: id, toast: t, shownAt: m.now()})

	cmds := []tea.Cmd{
		m.waitToast(),
		tea.Tick(t.Duration, func(time.Time) tea.Msg { return expiredMsg{id: id} }),
	}
	if !t.HideProgressBar && !m.ticking {
		m.ticking = true
		cmds = append(cmds, frame())
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) dropToast(id int) {
	for i, s := range m.toasts {
		if s.id == id {
			m.toasts = append(m.toasts[:i:i], m.toasts[i+1:]...)
			return
		}
	}
}

func (m *Model) dismissToasts() {
	kept := m.toasts[:0:0]
	for _, s := range m.toasts {
		if !s.toast.CloseOnClick {
			kept = append(kept, s)
		}
	}
	m.toasts = kept
}

func frame() tea.Cmd {
	return tea.Tick(frameInterval, func(time.Time) tea.Msg { return frameMsg{} })
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")

	if len(m.todos) == 0 {
		b.WriteString(mutedStyle.Render("  Nothing to do. Press a to add a todo."))
		b.WriteString("\n")
	}
	for i, t := range m.todos {
		b.WriteString(m.row(i, t))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("✖ " + m.err.Error()))
		b.WriteString("\n")
	}
	if m.adding {
		b.WriteString("\n")
		b.WriteString(inputStyle.Render("Add new todo\n" + m.input.View()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return m.placeToasts(b.String())
}

func (m Model) header() string {
	var done int
	for _, t := range m.todos {
		if t.Completed {
			done++
		}
	}
	return fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		titleStyle.Render("Todos"),
		successStyle.Render("✔"), done,
		pendingStyle.Render("•"), len(m.todos)-done,
		accentStyle.Render("Total"), len(m.todos),
	)
}

func (m Model) row(i int, t todo.Todo) string {
	box, text := mutedStyle.Render(boxUnchecked), t.Title
	if t.Completed {
		box, text = successStyle.Render(boxChecked), doneStyle.Render(t.Title)
	}
	if strings.HasPrefix(t.ID, viewmodel.TempIDPrefix) {
		text += mutedStyle.Render(" (saving…)")
	}
	prefix := "  "
	if i == m.cursor {
		prefix = selectedStyle.Render(">") + " "
	}
	return prefix + box + " " + text
}

// placeToasts renders the visible toasts above or below body, aligned as
// their Position asks.
func (m Model) placeToasts(body string) string {
	if len(m.toasts) == 0 {
		return body
	}
	var top, bottom []string
	for _, s := range m.toasts {
		vertical, horizontal := splitPosition(s.toast.Position)
		box := lipgloss.PlaceHorizontal(m.width, horizontal, m.renderToast(s))
		if vertical == lipgloss.Top {
			top = append(top, box)
		} else {
			bottom = append(bottom, box)
		}
	}
	parts := append(top, body)
	parts = append(parts, bottom...)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderToast(s shownToast) string {
	content := errorStyle.Render("✖ ") + s.toast.Message
	if !s.toast.HideProgressBar && s.toast.Duration > 0 {
		content += "\n" + mutedStyle.Render(progress(m.now().Sub(s.shownAt), s.toast.Duration, 20))
	}
	return toastStyle.Render(content)
}

// progress draws the remaining share of d as a bar of width cells.
func progress(elapsed, d time.Duration, width int) string {
	remaining := width - int(float64(elapsed)/float64(d)*float64(width))
	if remaining < 0 {
		remaining = 0
	}
	if remaining > width {
		remaining = width
	}
	return strings.Repeat("█", remaining) + strings.Repeat("░", width-remaining)
}

func splitPosition(pos string) (vertical, horizontal lipgloss.Position) {
	vertical, horizontal = lipgloss.Bottom, lipgloss.Right
	v, h, ok := strings.Cut(pos, "-")
	if !ok {
		return vertical, horizontal
	}
	if v == "top" {
		vertical = lipgloss.Top
	}
	switch h {
	case "left":
		horizontal = lipgloss.Left
	case "center":
		horizontal = lipgloss.Center
	}
	return vertical, horizontal
}
