package control

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Kind identifies an operator command.
type Kind int

const (
	KindQuit Kind = iota + 1
	KindListDevices
	KindRestart
	KindHistory
	KindHelp
)

func (k Kind) String() string {
	switch k {
	case KindQuit:
		return "quit"
	case KindListDevices:
		return "devices"
	case KindRestart:
		return "restart"
	case KindHistory:
		return "history"
	case KindHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Command is one parsed operator request.
type Command struct {
	Kind Kind
	// Device is set for restart and optionally for history.
	Device string
	// Limit caps history output; zero means the default.
	Limit int
}

var keywordFolder = cases.Fold()

var keywords = map[string]Kind{
	"quit":    KindQuit,
	"exit":    KindQuit,
	"devices": KindListDevices,
	"list":    KindListDevices,
	"restart": KindRestart,
	"history": KindHistory,
	"help":    KindHelp,
	"?":       KindHelp,
}

// ParseCommand parses one operator line. It returns false for blank,
// unknown, or malformed input.
func ParseCommand(line string) (Command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, false
	}
	kind, ok := keywords[keywordFolder.String(fields[0])]
	if !ok {
		return Command{}, false
	}

	cmd := Command{Kind: kind}
	switch kind {
	case KindRestart:
		if len(fields) < 2 {
			return Command{}, false
		}
		cmd.Device = fields[1]
	case KindHistory:
		for _, arg := range fields[1:] {
			if n, err := strconv.Atoi(arg); err == nil && n > 0 && cmd.Limit == 0 {
				cmd.Limit = n
				continue
			}
			if cmd.Device == "" {
				cmd.Device = arg
			}
		}
	}
	return cmd, true
}

// HelpText lists the operator commands.
const HelpText = `commands:
  devices              list attached devices
  restart <id>         restart the mirror for a device
  history [id] [n]     show recent lifecycle events
  help                 show this help
  quit                 stop all mirrors and exit`
