package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	PumpDown key.Binding
	Operate  key.Binding
	Standby  key.Binding
	Vent     key.Binding
	Stop     key.Binding
	Logs     key.Binding
	Up       key.Binding
	Down     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	PumpDown: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pump down")),
	Operate:  key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "operate")),
	Standby:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "standby")),
	Vent:     key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "vent")),
	Stop:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop run")),
	Logs:     key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "logs")),
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "scroll")),
	Down:     key.NewBinding(key.WithKeys("down", "j")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ShortHelp lists the bindings shown in the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PumpDown, k.Operate, k.Standby, k.Vent, k.Stop, k.Logs, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Up}}
}
