// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package command

import "fmt"

// SyntaxError is a catch-all for malformed option combinations a command
// handler detects after the cursor itself parsed cleanly.
type SyntaxError struct{ Msg string }

func (e *SyntaxError) Error() string { return "ERR syntax error: " + e.Msg }

// WrongNumArgs reports a command invoked with too few/many arguments.
type WrongNumArgs struct{ Cmd string }

func (e *WrongNumArgs) Error() string {
	return fmt.Sprintf("ERR wrong number of arguments for '%s' command", e.Cmd)
}

// UnknownCommand is returned by Dispatch when no handler matches.
type UnknownCommand struct{ Cmd string }

func (e *UnknownCommand) Error() string {
	return fmt.Sprintf("ERR unknown command '%s'", e.Cmd)
}
