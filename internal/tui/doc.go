// Package tui provides the live progress view for plana's expand command.
//
// The view is read-only. It polls a snapshot function for the plan tree,
// node states, and request counters, and redraws on a short tick.
// Users can only stop with 'q' or Ctrl+C, which saves the plan and stops.
//
// Usage:
//
//	program, app := tui.NewExpandProgram(snapshot, cancel)
//	go func() {
//	    err := expander.Expand(ctx, tree)
//	    program.Send(tui.ExpandDoneMsg{Err: err})
//	}()
//	program.Run()
package tui
