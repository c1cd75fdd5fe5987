package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"mastrogpt/internal/display"
	"mastrogpt/internal/seed"
	"mastrogpt/internal/surface"
	"mastrogpt/internal/types"
)

var (
	barStyle      = lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230"))
	serviceStyle  = lipgloss.NewStyle().Padding(0, 1)
	selectedStyle = serviceStyle.Bold(true).Foreground(lipgloss.Color("212"))
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	botStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type (
	refreshMsg  struct{}
	servicesMsg struct {
		services []types.ServiceDescriptor
		err      error
	}
	authPromptMsg struct{ url string }
	seedDoneMsg   struct{ err error }
)

// Chooser is the part of the selector the UI drives.
type Chooser interface {
	Discover(ctx context.Context) ([]types.ServiceDescriptor, error)
	Select(svc types.ServiceDescriptor) error
	Announce(ev types.SelectionEvent) error
}

type model struct {
	ctx     context.Context
	chat    *surface.Surface
	panel   *display.Panel
	chooser Chooser
	seeder  seed.Provider

	events chan tea.Msg
	codes  chan string

	services []types.ServiceDescriptor
	selected int
	fatal    error
	status   string
	awaiting bool

	input      textinput.Model
	transcript viewport.Model
	side       viewport.Model
	markdown   *glamour.TermRenderer
	width      int
	height     int
}

func newModel(ctx context.Context, chat *surface.Surface, panel *display.Panel, chooser Chooser) *model {
	in := textinput.New()
	in.Placeholder = "Type a message, /calendar to seed the calendar assistant"
	in.Prompt = "> "
	in.CharLimit = 4000
	in.Focus()

	m := &model{
		ctx:        ctx,
		chat:       chat,
		panel:      panel,
		chooser:    chooser,
		events:     make(chan tea.Msg, 16),
		codes:      make(chan string),
		selected:   -1,
		input:      in,
		transcript: viewport.New(80, 20),
		side:       viewport.New(40, 20),
	}
	chat.OnChange(m.poke)
	panel.OnChange(func(string) { m.poke() })
	return m
}

// WithSeeder enables the /calendar command.
func (m *model) WithSeeder(p seed.Provider) *model {
	m.seeder = p
	return m
}

// poke never blocks: a pending refresh already covers this change.
func (m *model) poke() {
	select {
	case m.events <- refreshMsg{}:
	default:
	}
}

func (m *model) next() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *model) discover() tea.Cmd {
	return func() tea.Msg {
		services, err := m.chooser.Discover(m.ctx)
		return servicesMsg{services: services, err: err}
	}
}

// PromptCode is the seed callback: it asks the UI for the authorization code
// and waits for the user to submit it.
func (m *model) PromptCode(ctx context.Context, url string) (string, error) {
	select {
	case m.events <- authPromptMsg{url: url}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case code := <-m.codes:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *model) runSeed() tea.Cmd {
	return func() tea.Msg {
		ev, err := m.seeder.Seed(m.ctx)
		if err == nil {
			err = m.chooser.Announce(ev)
		}
		return seedDoneMsg{err: err}
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.discover(), m.next())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case servicesMsg:
		if msg.err != nil {
			m.fatal = msg.err
			return m, nil
		}
		m.fatal = nil
		m.services = msg.services
		return m, nil

	case refreshMsg:
		m.refresh()
		return m, m.next()

	case authPromptMsg:
		m.awaiting = true
		m.status = "Open this URL, authorize, then paste the code: " + msg.url
		return m, m.next()

	case seedDoneMsg:
		m.awaiting = false
		if msg.err != nil {
			log.Error().Err(msg.err).Str("component", "chat").Msg("calendar seed failed")
			m.status = "Calendar seed failed: " + msg.err.Error()
		} else {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.key(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	}

	if m.fatal != nil {
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "r":
			m.fatal = nil
			return m, m.discover()
		}
		return m, nil
	}

	if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 && m.input.Value() == "" && !m.awaiting {
		if r := msg.Runes[0]; r >= '1' && r <= '9' {
			return m, m.choose(int(r - '1'))
		}
	}

	if msg.Type == tea.KeyEnter {
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		switch {
		case m.awaiting:
			m.status = "Exchanging code..."
			code := text
			return m, func() tea.Msg {
				select {
				case m.codes <- code:
				case <-m.ctx.Done():
				}
				return nil
			}
		case text == "/calendar":
			if m.seeder == nil {
				m.status = "Calendar seeding is not available"
				return m, nil
			}
			m.status = "Starting Google authorization..."
			return m, m.runSeed()
		default:
			m.chat.Submit(text)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) choose(i int) tea.Cmd {
	if i < 0 || i >= len(m.services) {
		return nil
	}
	m.selected = i
	svc := m.services[i]
	return func() tea.Msg {
		if err := m.chooser.Select(svc); err != nil {
			log.Error().Err(err).Str("component", "chat").Str("service", svc.Name).Msg("selection failed")
		}
		return nil
	}
}

func (m *model) resize(w, h int) {
	m.width, m.height = w, h
	bodyH := h - 5
	if bodyH < 3 {
		bodyH = 3
	}
	left := w * 3 / 5
	m.transcript.Width = left - 2
	m.transcript.Height = bodyH
	m.side.Width = w - left - 2
	m.side.Height = bodyH
	m.input.Width = w - 4

	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle("dark"), glamour.WithWordWrap(left-4))
	if err != nil {
		log.Warn().Err(err).Str("component", "chat").Msg("markdown renderer unavailable")
		m.markdown = nil
		return
	}
	m.markdown = r
}

func (m *model) refresh() {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.chat.Title()))
	b.WriteString("\n\n")
	for _, msg := range m.chat.Messages() {
		if msg.Speaker == surface.User {
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(msg.Text)
			b.WriteString("\n\n")
			continue
		}
		b.WriteString(botStyle.Render("Bot:"))
		b.WriteString("\n")
		b.WriteString(m.renderMarkdown(msg.Text))
		b.WriteString("\n")
	}
	m.transcript.SetContent(b.String())
	m.transcript.GotoBottom()
	m.side.SetContent(m.panel.Text())
}

func (m *model) renderMarkdown(text string) string {
	if m.markdown == nil {
		return text + "\n"
	}
	out, err := m.markdown.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func (m *model) serviceBar() string {
	if len(m.services) == 0 {
		return barStyle.Render("No services")
	}
	parts := make([]string, 0, len(m.services))
	for i, s := range m.services {
		label := fmt.Sprintf("%d %s", i+1, s.Name)
		if i == m.selected {
			parts = append(parts, selectedStyle.Render(label))
		} else {
			parts = append(parts, serviceStyle.Render(label))
		}
	}
	return barStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, parts...))
}

func (m *model) View() string {
	if m.fatal != nil {
		return errorStyle.Render("Error loading services: "+m.fatal.Error()) + "\n\n" +
			hintStyle.Render("r retry, q quit")
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Render(m.transcript.View()),
		paneStyle.Render(m.side.View()),
	)
	status := hintStyle.Render("1-9 select a service, pgup/pgdown scroll, esc quit")
	if m.status != "" {
		status = m.status
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.serviceBar(), body, m.input.View(), status)
}
