// Package tui provides the interactive Bubble Tea chat client for paychat.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/theirongolddev/paychat/internal/chat"
	"github.com/theirongolddev/paychat/internal/cli"
	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/store"
	"github.com/theirongolddev/paychat/internal/tui/components"
	"github.com/theirongolddev/paychat/internal/tui/theme"
	"github.com/theirongolddev/paychat/internal/wallet"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// Gateway sends paid requests and reports gateway health.
// *x402.Client implements it.
type Gateway interface {
	chat.Sender
	Health(ctx context.Context) bool
}

// Options wires the app to the payment pipeline.
type Options struct {
	Config    config.Config // seeds the first-run setup form
	Settings  config.Settings
	Gateway   Gateway
	Wallet    *wallet.Manager
	Ledger    *store.Ledger
	Logger    *slog.Logger
	NeedSetup bool
}

// Tab indices.
const (
	tabChat = iota
	tabModels
	tabLedger
)

const (
	minTerminalWidth = 60
	maxContentWidth  = 160
	minContentHeight = 5
	inputHeight      = 3

	healthInterval = 30 * time.Second
	recentLimit    = 50
)

type healthMsg struct{ up bool }

type healthTickMsg struct{}

type exchangeDoneMsg struct{ err error }

type ledgerMsg struct {
	totals  store.Totals
	byModel []store.ModelTotals
	recent  []store.Exchange
	err     error
}

// App is the root Bubble Tea model.
type App struct {
	settings config.Settings
	gateway  Gateway
	wallet   *wallet.Manager
	ledger   *store.Ledger
	orch     *chat.Orchestrator
	log      *slog.Logger

	// UI state
	width     int
	height    int
	activeTab int
	showHelp  bool

	// Chat
	input    textarea.Model
	view     viewport.Model
	spinner  spinner.Model
	sending  bool
	follow   bool // keep the transcript scrolled to the bottom

	// Wallet connect screen. The key buffer is cleared after every attempt.
	connectForm *huh.Form
	connectKey  *string
	connectErr  string

	// First-run setup
	setupForm *huh.Form
	setupVals *SetupValues
	needSetup bool

	// Gateway health
	online  bool
	checked bool

	// Ledger snapshot
	totals  store.Totals
	byModel []store.ModelTotals
	recent  []store.Exchange

	// Models tab
	modelCursor int
}

// NewApp creates a new TUI app model.
func NewApp(opts Options) App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := opts.Wallet
	if w == nil {
		w = &wallet.Manager{}
	}

	chatOpts := []chat.Option{chat.WithLogger(logger)}
	if opts.Ledger != nil {
		chatOpts = append(chatOpts, chat.WithLedger(opts.Ledger))
	}
	orch := chat.NewFromSettings(opts.Gateway, chat.FromManager(w), opts.Settings, chatOpts...)

	ta := textarea.New()
	ta.Placeholder = "Ask anything (enter to send, alt+enter for a new line)"
	ta.ShowLineNumbers = false
	ta.CharLimit = 16000
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	key := ""
	vals := SetupValuesFrom(opts.Config)

	a := App{
		settings:   opts.Settings,
		gateway:    opts.Gateway,
		wallet:     w,
		ledger:     opts.Ledger,
		orch:       orch,
		log:        logger,
		input:      ta,
		view:       viewport.New(0, 0),
		spinner:    sp,
		follow:     true,
		connectKey: &key,
		setupVals:  &vals,
		needSetup:  opts.NeedSetup,
	}
	if a.needSetup {
		a.setupForm = NewSetupForm(a.setupVals)
	}
	if !a.connected() {
		a.connectForm = a.newConnectForm()
	}
	return a
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnableMouseCellMotion,
		textarea.Blink,
		healthCmd(a.gateway),
		healthTickCmd(),
		loadLedgerCmd(a.ledger),
	}
	if a.setupForm != nil {
		cmds = append(cmds, a.setupForm.Init())
	}
	if a.connectForm != nil {
		cmds = append(cmds, a.connectForm.Init())
	}
	return tea.Batch(cmds...)
}

func (a App) connected() bool {
	_, ok := a.wallet.Active()
	return ok
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(msg.Width).WithHeight(msg.Height)
		}
		if a.connectForm != nil {
			a.connectForm = a.connectForm.WithWidth(a.formWidth())
		}
		a.layout()
		return a, nil

	case healthMsg:
		if a.checked && a.online != msg.up {
			a.log.Info("gateway health changed", "up", msg.up)
		}
		a.online = msg.up
		a.checked = true
		return a, nil

	case healthTickMsg:
		return a, tea.Batch(healthCmd(a.gateway), healthTickCmd())

	case exchangeDoneMsg:
		a.sending = false
		st := a.orch.State()
		if msg.err != nil && st.Draft != "" && strings.TrimSpace(a.input.Value()) == "" {
			a.input.SetValue(st.Draft)
			a.input.CursorEnd()
		}
		a.follow = true
		a.refreshTranscript()
		return a, loadLedgerCmd(a.ledger)

	case ledgerMsg:
		if msg.err != nil {
			a.log.Warn("reading ledger", "error", msg.err)
			return a, nil
		}
		a.totals = msg.totals
		a.byModel = msg.byModel
		a.recent = msg.recent
		return a, nil

	case spinner.TickMsg:
		if !a.sending {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		a.refreshTranscript()
		return a, cmd

	case tea.MouseMsg:
		if a.showHelp || a.setupForm != nil || a.connectForm != nil {
			return a, nil
		}
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft && msg.Y == 0 {
			if tab := a.tabAtX(msg.X); tab >= 0 {
				a.activeTab = tab
			}
			return a, nil
		}
		if a.activeTab == tabChat {
			var cmd tea.Cmd
			a.view, cmd = a.view.Update(msg)
			a.follow = a.view.AtBottom()
			return a, cmd
		}
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.needSetup {
			return a.updateSetup(msg)
		}
		if !a.connected() {
			return a.updateConnect(msg)
		}
		return a.updateKeys(msg)
	}

	// Forward everything else (cursor blinks etc.) to whatever has focus.
	if a.needSetup && a.setupForm != nil {
		return a.updateSetup(msg)
	}
	if a.connectForm != nil {
		return a.updateConnect(msg)
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a App) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if a.showHelp {
		a.showHelp = false
		return a, nil
	}

	if tab := components.TabIdxByKey(key); tab >= 0 {
		a.activeTab = tab
		return a, nil
	}

	switch key {
	case "ctrl+d":
		a.wallet.Disconnect()
		a.log.Info("wallet disconnected")
		return a.openConnect()
	case "tab":
		if !a.sending {
			m := a.orch.CycleModel()
			a.modelCursor = modelIndex(m.ID)
		}
		return a, nil
	}

	switch a.activeTab {
	case tabModels:
		return a.updateModelsKeys(key)
	case tabLedger:
		switch key {
		case "?":
			a.showHelp = true
		case "left":
			a.activeTab = tabModels
		case "r":
			return a, loadLedgerCmd(a.ledger)
		}
		return a, nil
	}

	return a.updateChatKeys(msg)
}

func (a App) updateChatKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return a.submit()
	case "esc":
		a.orch.ClearError()
		return a, nil
	case "ctrl+l":
		a.orch.Reset()
		a.follow = true
		a.refreshTranscript()
		return a, nil
	case "?":
		if strings.TrimSpace(a.input.Value()) == "" {
			a.showHelp = true
			return a, nil
		}
	case "pgup", "pgdown", "ctrl+u":
		var cmd tea.Cmd
		a.view, cmd = a.view.Update(msg)
		a.follow = a.view.AtBottom()
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// submit hands the draft to the orchestrator in the background. The
// orchestrator appends the user turn immediately and rolls it back on failure.
func (a App) submit() (tea.Model, tea.Cmd) {
	draft := a.input.Value()
	if a.sending || strings.TrimSpace(draft) == "" {
		return a, nil
	}
	a.input.Reset()
	a.sending = true
	a.follow = true

	orch := a.orch
	send := func() tea.Msg {
		return exchangeDoneMsg{err: orch.Submit(context.Background(), draft)}
	}
	return a, tea.Batch(a.spinner.Tick, send)
}

func (a App) updateSetup(msg tea.Msg) (tea.Model, tea.Cmd) {
	if a.setupForm == nil {
		a.needSetup = false
		return a, nil
	}

	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	switch a.setupForm.State {
	case huh.StateCompleted:
		if cfg, err := SaveSetup(*a.setupVals); err != nil {
			a.log.Warn("saving setup", "error", err)
		} else {
			a.log.Info("setup saved", "path", config.Path(), "model", cfg.Chat.DefaultModel)
			_ = a.orch.SetModel(cfg.Chat.DefaultModel)
		}
		a.needSetup = false
		a.setupForm = nil
		a.layout()
		return a, nil
	case huh.StateAborted:
		a.needSetup = false
		a.setupForm = nil
		return a, nil
	}
	return a, cmd
}

// Layout

func (a App) contentWidth() int {
	cw := a.width
	if cw > maxContentWidth {
		cw = maxContentWidth
	}
	return cw
}

func (a App) contentHeight() int {
	h := a.height - 2 // tab bar + status bar
	if h < minContentHeight {
		h = minContentHeight
	}
	return h
}

// layout sizes the chat widgets for the current window.
func (a *App) layout() {
	cw := a.contentWidth()
	a.input.SetWidth(cw - 4)

	// input box (height + border) + preview line + error line
	vh := a.contentHeight() - (inputHeight + 2) - 2
	if vh < 1 {
		vh = 1
	}
	a.view.Width = cw
	a.view.Height = vh
	a.refreshTranscript()
}

func (a *App) refreshTranscript() {
	if a.view.Width == 0 {
		return
	}
	a.view.SetContent(a.renderTranscript(a.view.Width))
	if a.follow {
		a.view.GotoBottom()
	}
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}
	if a.needSetup && a.setupForm != nil {
		return a.setupForm.View()
	}
	if !a.connected() {
		return a.viewConnect()
	}
	if a.showHelp {
		return a.viewHelp()
	}
	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	h := a.height
	if h < 5 {
		h = 5
	}
	msg := fmt.Sprintf("\n  Terminal too narrow (%d cols)\n\n  paychat needs at least %d columns.\n",
		a.width, minTerminalWidth)
	return padHeight(truncateHeight(msg, h), h)
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderFocus).
		Background(t.Surface).
		Padding(1, 3)
	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface).Bold(true)
	sectionStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)
	keyStyle := lipgloss.NewStyle().Foreground(t.Key).Background(t.Surface).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ Keyboard Shortcuts"))
	b.WriteString("\n\n")

	sections := []struct {
		name     string
		bindings []struct{ key, desc string }
	}{
		{"Chat", []struct{ key, desc string }{
			{"enter", "Pay and send"},
			{"alt+enter", "New line"},
			{"tab", "Next model"},
			{"esc", "Dismiss error"},
			{"ctrl+l", "Clear conversation"},
			{"pgup pgdn", "Scroll transcript"},
		}},
		{"General", []struct{ key, desc string }{
			{"F1 F2 F3", "Chat / Models / Ledger"},
			{"j k enter", "Pick a model (Models tab)"},
			{"ctrl+d", "Disconnect wallet"},
			{"?", "Toggle help"},
			{"ctrl+c", "Quit"},
		}},
	}
	for _, sec := range sections {
		b.WriteString(sectionStyle.Render(sec.name))
		b.WriteString("\n")
		for _, bind := range sec.bindings {
			fmt.Fprintf(&b, "  %s  %s\n",
				keyStyle.Render(fmt.Sprintf("%-10s", bind.key)),
				descStyle.Render(bind.desc))
		}
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewMain() string {
	t := theme.Active
	w := a.width
	cw := a.contentWidth()
	contentH := a.contentHeight()

	header := components.RenderTabBar(a.activeTab, w)
	statusBar := components.RenderStatusBar(w, a.status())

	var content string
	switch a.activeTab {
	case tabChat:
		content = a.renderChatTab(cw)
	case tabModels:
		content = a.renderModelsTab(cw)
	case tabLedger:
		content = a.renderLedgerTab(cw)
	}

	content = padHeight(truncateHeight(content, contentH), contentH)
	content = fillLinesWithBackground(content, cw, t.Background)
	content = lipgloss.Place(w, contentH, lipgloss.Center, lipgloss.Top, content,
		lipgloss.WithWhitespaceBackground(t.Background))

	output := lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
	return lipgloss.Place(w, a.height, lipgloss.Left, lipgloss.Top, output,
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) status() components.Status {
	st := components.Status{
		Network: a.settings.Network.DisplayName,
		Online:  a.online,
		Checked: a.checked,
		Sending: a.sending,
	}
	if s, ok := a.wallet.Active(); ok {
		st.Address = s.ShortAddress()
	}
	spent := a.orch.Spent()
	if a.ledger != nil {
		spent = a.totals.Net()
	}
	st.Spent = cli.FormatUSDC(spent)
	return st
}

// Commands

func healthCmd(gw Gateway) tea.Cmd {
	if gw == nil {
		return nil
	}
	return func() tea.Msg {
		return healthMsg{up: gw.Health(context.Background())}
	}
}

func healthTickCmd() tea.Cmd {
	return tea.Tick(healthInterval, func(time.Time) tea.Msg {
		return healthTickMsg{}
	})
}

func loadLedgerCmd(l *store.Ledger) tea.Cmd {
	if l == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var msg ledgerMsg
		if msg.totals, msg.err = l.Totals(ctx); msg.err != nil {
			return msg
		}
		if msg.byModel, msg.err = l.ByModel(ctx); msg.err != nil {
			return msg
		}
		msg.recent, msg.err = l.Recent(ctx, recentLimit)
		return msg
	}
}

// Helpers

// tabAtX returns the tab index at the given X coordinate, or -1 if none.
// Hitboxes are derived from the same width rules used by RenderTabBar.
func (a App) tabAtX(x int) int {
	pos := 0
	for i, tab := range components.Tabs {
		tabW := components.TabVisualWidth(tab, i == a.activeTab)
		if x >= pos && x < pos+tabW {
			return i
		}
		pos += tabW

		// Separator is one column between tabs.
		if i < len(components.Tabs)-1 {
			pos++
		}
	}
	return -1
}

func truncStr(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	return s + strings.Repeat("\n", h-len(lines))
}

// fillLinesWithBackground pads each line to width w with background color.
func fillLinesWithBackground(s string, w int, bg lipgloss.Color) string {
	lines := strings.Split(s, "\n")

	var result strings.Builder
	for i, line := range lines {
		placed := lipgloss.PlaceHorizontal(w, lipgloss.Left, line,
			lipgloss.WithWhitespaceBackground(bg))
		result.WriteString(placed)
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}
