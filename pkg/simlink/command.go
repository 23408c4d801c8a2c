package simlink

import "strings"

// CommandPhase selects how a command is executed: a single fire, or
// the begin/end halves of a held command.
type CommandPhase int

const (
	CommandOnce CommandPhase = iota
	CommandBegin
	CommandEnd
)

func (p CommandPhase) String() string {
	switch p {
	case CommandBegin:
		return "begin"
	case CommandEnd:
		return "end"
	}
	return "once"
}

// notACommand lists placeholder names configuration uses to mean "do
// nothing". They are rejected rather than sent.
var notACommand = map[string]struct{}{
	"none":         {},
	"noop":         {},
	"no-operation": {},
	"no-command":   {},
	"do-nothing":   {},
}

// HasCommand reports whether path names an executable command, as
// opposed to being empty or a no-op placeholder.
func HasCommand(path string) bool {
	if path == "" {
		return false
	}
	_, noop := notACommand[strings.ToLower(path)]
	return !noop
}

// commandPath appends the phase suffix for held commands.
func commandPath(path string, phase CommandPhase) string {
	switch phase {
	case CommandBegin:
		return path + "/begin"
	case CommandEnd:
		return path + "/end"
	}
	return path
}
