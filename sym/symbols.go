// Package sym defines the symbols pegabatch uses to mark subsystems in CLI
// output and structured logs. They are stable across log lines, command help
// and documentation so operators can grep for them.
package sym

// Command symbols, one per top-level CLI command group.
const (
	AM   = "≡" // am: configuration
	IX   = "⨳" // ix: job intake and tracking
	Hold = "⧗" // cooldown: the global quota hold
	Memo = "⧉" // cache: remembered enrichment responses
)

// System infrastructure symbols.
const (
	Pulse      = "꩜" // ticker, orchestrator, quota back-off
	PulseOpen  = "✿" // graceful startup
	PulseClose = "❀" // graceful shutdown with checkpoint preservation
	DB         = "⊔" // database/storage layer
	Mail       = "✉" // outbound notifications
)

// SymbolToCommand maps a command symbol to its CLI command name.
var SymbolToCommand = map[string]string{
	AM:    "am",
	IX:    "jobs",
	Hold:  "cooldown",
	Memo:  "cache",
	Pulse: "pulse",
	DB:    "db",
}

// CommandToSymbol is the inverse of SymbolToCommand.
var CommandToSymbol = func() map[string]string {
	m := make(map[string]string, len(SymbolToCommand))
	for symbol, cmd := range SymbolToCommand {
		m[cmd] = symbol
	}
	return m
}()

// ForCommand returns the symbol for a command name, or "" when it has none.
func ForCommand(cmd string) string {
	return CommandToSymbol[cmd]
}
