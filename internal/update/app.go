// Package update holds the bubbletea model for the capture TUI: a
// single input line for quick capture, task and memory panes, and a
// status bar showing connectivity and queued-write depth.
package update

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/capd/internal/client"
	"github.com/sandeepkv93/capd/internal/commands"
	"github.com/sandeepkv93/capd/internal/model"
	"github.com/sandeepkv93/capd/internal/syncer"
	"github.com/sandeepkv93/capd/internal/views"
)

type Pane string

const (
	PaneTasks    Pane = "Tasks"
	PaneMemories Pane = "Memories"
)

// Backend is the slice of the API client the TUI needs. *client.Client
// implements it.
type Backend interface {
	Capture(ctx context.Context, req client.CaptureRequest) (model.Record, bool, error)
	MarkDone(ctx context.Context, id string, done bool) (model.Record, error)
	ListTasks(ctx context.Context, openOnly bool) ([]model.Record, error)
	ListMemories(ctx context.Context, query string, limit, offset int) (client.MemoryList, error)
	SetOffline(v bool)
	Offline() bool
}

type StatusBar struct {
	Text    string
	IsError bool
}

type Model struct {
	backend Backend
	coord   *syncer.Coordinator
	updates <-chan syncer.QueueUpdated

	input       textinput.Model
	CurrentPane Pane
	Tasks       []model.Record
	Memories    []model.Record
	Cursor      int
	LastCapture *views.CapturedItemData
	QueueCount  int
	Query       string
	Status      StatusBar
	HelpVisible bool
	Quitting    bool
}

type CapturedMsg struct {
	Record model.Record
	Queued bool
	Text   string
}

type TasksLoadedMsg struct {
	Tasks []model.Record
}

type MemoriesLoadedMsg struct {
	Memories []model.Record
}

type QueueUpdatedMsg struct {
	Count int
}

type StatusMsg struct {
	Text    string
	IsError bool
}

type AppErrorMsg struct {
	Err error
}

func New(backend Backend, coord *syncer.Coordinator) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "capture a thought, or / for commands"
	input.CharLimit = 512
	input.Width = 50
	input.Focus()

	m := Model{
		backend:     backend,
		coord:       coord,
		input:       input,
		CurrentPane: PaneTasks,
	}
	if coord != nil {
		m.updates = coord.Subscribe()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		loadTasksCmd(m.backend),
		loadMemoriesCmd(m.backend, ""),
		waitForQueueUpdateCmd(m.updates),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(typed)
	case CapturedMsg:
		if typed.Queued {
			m.LastCapture = &views.CapturedItemData{Text: typed.Text, Queued: true}
			m.Status = StatusBar{Text: "offline: capture queued for sync"}
			m.input.SetValue("")
			if m.coord != nil {
				m.coord.NotifyEnqueued()
			}
			return m, nil
		}
		m.LastCapture = capturedItemData(typed.Record)
		m.Status = StatusBar{Text: fmt.Sprintf("captured %s %s", typed.Record.Kind, typed.Record.ID)}
		m.input.SetValue("")
		return m, tea.Batch(loadTasksCmd(m.backend), loadMemoriesCmd(m.backend, m.Query))
	case TasksLoadedMsg:
		m.Tasks = typed.Tasks
		m.clampCursor()
		return m, nil
	case MemoriesLoadedMsg:
		m.Memories = typed.Memories
		m.clampCursor()
		return m, nil
	case QueueUpdatedMsg:
		m.QueueCount = typed.Count
		return m, waitForQueueUpdateCmd(m.updates)
	case StatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case AppErrorMsg:
		if typed.Err != nil {
			m.Status = StatusBar{Text: "error: " + typed.Err.Error(), IsError: true}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.Quitting = true
		return m, tea.Quit
	case "enter":
		return m.submitInput()
	}

	// Single-letter bindings apply only while the input line is empty,
	// otherwise the letters belong to the text being typed.
	if m.input.Value() == "" {
		switch msg.String() {
		case "q":
			m.Quitting = true
			return m, tea.Quit
		case "tab":
			if m.CurrentPane == PaneTasks {
				m.CurrentPane = PaneMemories
			} else {
				m.CurrentPane = PaneTasks
			}
			m.Cursor = 0
			return m, nil
		case "j", "down":
			m.Cursor++
			m.clampCursor()
			return m, nil
		case "k", "up":
			m.Cursor--
			m.clampCursor()
			return m, nil
		case "d":
			return m.toggleSelectedDone()
		case "s":
			return m.triggerSync()
		case "o":
			return m.toggleOffline()
		case "r":
			m.Status = StatusBar{Text: "refreshing"}
			return m, tea.Batch(loadTasksCmd(m.backend), loadMemoriesCmd(m.backend, m.Query))
		case "?":
			m.HelpVisible = !m.HelpVisible
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	raw := strings.TrimSpace(m.input.Value())
	if raw == "" {
		return m, nil
	}
	if strings.HasPrefix(raw, "/") {
		return m.executePaletteCommand(raw)
	}
	return m, captureCmd(m.backend, raw)
}

func (m Model) executePaletteCommand(raw string) (tea.Model, tea.Cmd) {
	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: "error: " + err.Error(), IsError: true}
		m.input.SetValue("")
		return m, nil
	}

	var followUp tea.Cmd
	res, err := commands.Execute(cmd, commands.Handlers{
		Capture: func(a commands.CaptureArgs) (commands.Result, error) {
			followUp = captureCmd(m.backend, a.Text)
			return commands.Result{Message: "capturing"}, nil
		},
		Done: func(a commands.DoneArgs) (commands.Result, error) {
			followUp = markDoneCmd(m.backend, a.ID, true)
			return commands.Result{Message: "marking done: " + a.ID}, nil
		},
		Sync: func() (commands.Result, error) {
			if m.coord != nil {
				m.coord.TriggerSync()
			}
			return commands.Result{Message: "sync requested"}, nil
		},
		Offline: func(a commands.OfflineArgs) (commands.Result, error) {
			m.backend.SetOffline(a.On)
			if m.coord != nil {
				m.coord.SetOnline(!a.On)
			}
			if a.On {
				return commands.Result{Message: "simulated offline enabled"}, nil
			}
			return commands.Result{Message: "back online"}, nil
		},
		Find: func(a commands.FindArgs) (commands.Result, error) {
			m.Query = a.Query
			m.CurrentPane = PaneMemories
			followUp = loadMemoriesCmd(m.backend, a.Query)
			return commands.Result{Message: "searching memories: " + a.Query}, nil
		},
	})
	if err != nil {
		m.Status = StatusBar{Text: "error: " + err.Error(), IsError: true}
	} else {
		m.Status = StatusBar{Text: res.Message}
	}
	m.input.SetValue("")
	return m, followUp
}

func (m Model) toggleSelectedDone() (tea.Model, tea.Cmd) {
	if m.CurrentPane != PaneTasks || m.Cursor >= len(m.Tasks) {
		return m, nil
	}
	task := m.Tasks[m.Cursor]
	return m, markDoneCmd(m.backend, task.ID, task.Status != model.StatusDone)
}

func (m Model) triggerSync() (tea.Model, tea.Cmd) {
	if m.coord == nil {
		return m, nil
	}
	m.coord.TriggerSync()
	m.Status = StatusBar{Text: "sync requested"}
	return m, nil
}

func (m Model) toggleOffline() (tea.Model, tea.Cmd) {
	next := !m.backend.Offline()
	m.backend.SetOffline(next)
	if m.coord != nil {
		m.coord.SetOnline(!next)
	}
	if next {
		m.Status = StatusBar{Text: "simulated offline enabled"}
	} else {
		m.Status = StatusBar{Text: "back online"}
	}
	return m, nil
}

func (m *Model) clampCursor() {
	size := len(m.Tasks)
	if m.CurrentPane == PaneMemories {
		size = len(m.Memories)
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	if size > 0 && m.Cursor >= size {
		m.Cursor = size - 1
	}
	if size == 0 {
		m.Cursor = 0
	}
}

func (m Model) View() string {
	right := ""
	if m.HelpVisible {
		right = views.RenderHelpPanel()
	} else if m.CurrentPane == PaneTasks {
		right = views.RenderRecordsPanel("Tasks", recordRows(m.Tasks), m.Cursor)
	} else {
		title := "Memories"
		if m.Query != "" {
			title = "Memories matching " + m.Query
		}
		right = views.RenderRecordsPanel(title, recordRows(m.Memories), m.Cursor)
	}

	status := ""
	if m.Status.Text != "" {
		status = "status: " + m.Status.Text
	}

	return views.RenderApp(views.AppData{
		Header:     "capd | pane: " + string(m.CurrentPane),
		LeftPane:   views.RenderCapturePanel(m.input.View(), m.LastCapture),
		RightPane:  right,
		StatusLine: status,
		QueueBadge: views.RenderQueueBadge(m.QueueCount, m.backend.Offline()),
		Footer:     "keys: enter capture | / command | tab pane | d done | s sync | o offline | ? help | q quit",
	})
}

func capturedItemData(rec model.Record) *views.CapturedItemData {
	data := &views.CapturedItemData{
		ID:     rec.ID,
		Kind:   string(rec.Kind),
		Text:   rec.Text,
		Tags:   rec.Tags,
		People: rec.People,
	}
	if rec.DueAt != nil {
		data.DueAt = rec.DueAt.Format("2006-01-02 15:04")
	}
	return data
}

func recordRows(records []model.Record) []views.RecordRowData {
	rows := make([]views.RecordRowData, 0, len(records))
	for _, rec := range records {
		row := views.RecordRowData{
			ID:       rec.ID,
			Text:     rec.Text,
			Priority: string(rec.Priority),
			Done:     rec.Status == model.StatusDone,
		}
		if rec.DueAt != nil {
			row.DueAt = rec.DueAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, row)
	}
	return rows
}

func captureCmd(backend Backend, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_, offset := time.Now().Zone()
		rec, queued, err := backend.Capture(ctx, client.CaptureRequest{
			Text:            text,
			ClientTimestamp: time.Now().UTC(),
			TzOffsetMinutes: offset / 60,
		})
		if err != nil {
			return AppErrorMsg{Err: err}
		}
		return CapturedMsg{Record: rec, Queued: queued, Text: text}
	}
}

func markDoneCmd(backend Backend, id string, done bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := backend.MarkDone(ctx, id, done); err != nil {
			return AppErrorMsg{Err: err}
		}
		tasks, err := backend.ListTasks(ctx, true)
		if err != nil {
			return AppErrorMsg{Err: err}
		}
		return TasksLoadedMsg{Tasks: tasks}
	}
}

func loadTasksCmd(backend Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		tasks, err := backend.ListTasks(ctx, true)
		if err != nil {
			return AppErrorMsg{Err: err}
		}
		return TasksLoadedMsg{Tasks: tasks}
	}
}

func loadMemoriesCmd(backend Backend, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		list, err := backend.ListMemories(ctx, query, 100, 0)
		if err != nil {
			return AppErrorMsg{Err: err}
		}
		return MemoriesLoadedMsg{Memories: list.Items}
	}
}

func waitForQueueUpdateCmd(ch <-chan syncer.QueueUpdated) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return QueueUpdatedMsg{Count: ev.Count}
	}
}
