// Package theme defines color themes for the paychat TUI.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme maps the TUI's color roles to concrete colors.
type Theme struct {
	Name         string
	Background   lipgloss.Color // Main app background
	Surface      lipgloss.Color // Card, bar and panel backgrounds
	Highlight    lipgloss.Color // Active tab, selected row
	Border       lipgloss.Color
	BorderFocus  lipgloss.Color // Input box and dialogs
	TextDim      lipgloss.Color // Hints, receipts, disabled
	TextMuted    lipgloss.Color // Labels, metadata
	Text         lipgloss.Color
	Accent       lipgloss.Color // Model names, titles
	AccentBright lipgloss.Color
	User         lipgloss.Color // "you" in the transcript
	Good         lipgloss.Color // Answers, refunds, gateway online
	Pending      lipgloss.Color // Payment in flight
	Warn         lipgloss.Color // Draft over the spend cap
	Bad          lipgloss.Color // Errors, failed exchanges
	Key          lipgloss.Color // Key names in help
}

// Active is the currently selected theme.
var Active = FlexokiDark

// FlexokiDark is the default theme, warm and paper-inspired.
var FlexokiDark = Theme{
	Name:         "flexoki-dark",
	Background:   lipgloss.Color("#100F0F"),
	Surface:      lipgloss.Color("#1C1B1A"),
	Highlight:    lipgloss.Color("#282726"),
	Border:       lipgloss.Color("#403E3C"),
	BorderFocus:  lipgloss.Color("#3AA99F"),
	TextDim:      lipgloss.Color("#575653"),
	TextMuted:    lipgloss.Color("#878580"),
	Text:         lipgloss.Color("#FFFCF0"),
	Accent:       lipgloss.Color("#3AA99F"),
	AccentBright: lipgloss.Color("#5BC8BE"),
	User:         lipgloss.Color("#4385BE"),
	Good:         lipgloss.Color("#879A39"),
	Pending:      lipgloss.Color("#D0A215"),
	Warn:         lipgloss.Color("#DA702C"),
	Bad:          lipgloss.Color("#D14D41"),
	Key:          lipgloss.Color("#24837B"),
}

// FlexokiLight is the light counterpart of FlexokiDark.
var FlexokiLight = Theme{
	Name:         "flexoki-light",
	Background:   lipgloss.Color("#FFFCF0"),
	Surface:      lipgloss.Color("#F2F0E5"),
	Highlight:    lipgloss.Color("#E6E4D9"),
	Border:       lipgloss.Color("#CECDC3"),
	BorderFocus:  lipgloss.Color("#24837B"),
	TextDim:      lipgloss.Color("#B7B5AC"),
	TextMuted:    lipgloss.Color("#6F6E69"),
	Text:         lipgloss.Color("#100F0F"),
	Accent:       lipgloss.Color("#24837B"),
	AccentBright: lipgloss.Color("#1C6C66"),
	User:         lipgloss.Color("#205EA6"),
	Good:         lipgloss.Color("#66800B"),
	Pending:      lipgloss.Color("#AD8301"),
	Warn:         lipgloss.Color("#BC5215"),
	Bad:          lipgloss.Color("#AF3029"),
	Key:          lipgloss.Color("#24837B"),
}

// CatppuccinMocha is a soft pastel theme.
var CatppuccinMocha = Theme{
	Name:         "catppuccin-mocha",
	Background:   lipgloss.Color("#1E1E2E"),
	Surface:      lipgloss.Color("#313244"),
	Highlight:    lipgloss.Color("#45475A"),
	Border:       lipgloss.Color("#585B70"),
	BorderFocus:  lipgloss.Color("#89B4FA"),
	TextDim:      lipgloss.Color("#6C7086"),
	TextMuted:    lipgloss.Color("#A6ADC8"),
	Text:         lipgloss.Color("#CDD6F4"),
	Accent:       lipgloss.Color("#89B4FA"),
	AccentBright: lipgloss.Color("#B4D0FB"),
	User:         lipgloss.Color("#CBA6F7"),
	Good:         lipgloss.Color("#A6E3A1"),
	Pending:      lipgloss.Color("#F9E2AF"),
	Warn:         lipgloss.Color("#FAB387"),
	Bad:          lipgloss.Color("#F38BA8"),
	Key:          lipgloss.Color("#94E2D5"),
}

// TokyoNight is a cool blue and purple theme.
var TokyoNight = Theme{
	Name:         "tokyo-night",
	Background:   lipgloss.Color("#1A1B26"),
	Surface:      lipgloss.Color("#24283B"),
	Highlight:    lipgloss.Color("#343A52"),
	Border:       lipgloss.Color("#565F89"),
	BorderFocus:  lipgloss.Color("#7AA2F7"),
	TextDim:      lipgloss.Color("#565F89"),
	TextMuted:    lipgloss.Color("#A9B1D6"),
	Text:         lipgloss.Color("#C0CAF5"),
	Accent:       lipgloss.Color("#7AA2F7"),
	AccentBright: lipgloss.Color("#A9C1FF"),
	User:         lipgloss.Color("#BB9AF7"),
	Good:         lipgloss.Color("#9ECE6A"),
	Pending:      lipgloss.Color("#E0AF68"),
	Warn:         lipgloss.Color("#FF9E64"),
	Bad:          lipgloss.Color("#F7768E"),
	Key:          lipgloss.Color("#7DCFFF"),
}

// Terminal uses the 16 ANSI colors only, for terminals without truecolor.
var Terminal = Theme{
	Name:         "terminal",
	Background:   lipgloss.Color("0"),
	Surface:      lipgloss.Color("0"),
	Highlight:    lipgloss.Color("8"),
	Border:       lipgloss.Color("8"),
	BorderFocus:  lipgloss.Color("6"),
	TextDim:      lipgloss.Color("8"),
	TextMuted:    lipgloss.Color("7"),
	Text:         lipgloss.Color("15"),
	Accent:       lipgloss.Color("6"),
	AccentBright: lipgloss.Color("14"),
	User:         lipgloss.Color("4"),
	Good:         lipgloss.Color("2"),
	Pending:      lipgloss.Color("3"),
	Warn:         lipgloss.Color("11"),
	Bad:          lipgloss.Color("1"),
	Key:          lipgloss.Color("6"),
}

// All available themes, in the order the setup form lists them.
var All = []Theme{FlexokiDark, FlexokiLight, CatppuccinMocha, TokyoNight, Terminal}

// ByName returns a theme by its name, defaulting to FlexokiDark.
func ByName(name string) Theme {
	for _, t := range All {
		if t.Name == name {
			return t
		}
	}
	return FlexokiDark
}

// SetActive sets the active theme by name.
func SetActive(name string) {
	Active = ByName(name)
}
