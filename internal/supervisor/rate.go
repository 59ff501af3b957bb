package supervisor

// Command is a single keystroke understood by SIPp on stdin.
type Command byte

const (
	CmdIncrease1  Command = '+'
	CmdDecrease1  Command = '-'
	CmdIncrease10 Command = '*'
	CmdDecrease10 Command = '/'
	CmdPause      Command = 'p'
	CmdQuit       Command = 'q'
)

// String returns the keystroke as a one character string.
func (c Command) String() string {
	return string(rune(c))
}

// RateCommands returns the keystrokes that move the call rate by diff.
// Steps of ten are exhausted before steps of one; a negative diff uses the
// decrease keys for its absolute value.
func RateCommands(diff int) []Command {
	if diff == 0 {
		return nil
	}

	tens, ones := CmdIncrease10, CmdIncrease1
	if diff < 0 {
		diff = -diff
		tens, ones = CmdDecrease10, CmdDecrease1
	}

	cmds := make([]Command, 0, diff/10+diff%10)
	for ; diff >= 10; diff -= 10 {
		cmds = append(cmds, tens)
	}
	for ; diff > 0; diff-- {
		cmds = append(cmds, ones)
	}
	return cmds
}
