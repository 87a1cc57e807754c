package items

import (
	"context"
	"fmt"
)

// CommandID names a user-facing operation.
type CommandID string

const (
	CommandAdd    CommandID = "add"
	CommandRemove CommandID = "remove"
	CommandUpdate CommandID = "update"
)

// Command pairs an operation with its guard. Display surfaces call
// CanExecute after every notification to enable or disable the matching
// affordance.
type Command struct {
	ID         CommandID
	CanExecute func() bool
}

// Commands returns the add, remove and update commands in that order.
func (c *Controller) Commands() []Command {
	return []Command{
		{ID: CommandAdd, CanExecute: c.CanAdd},
		{ID: CommandRemove, CanExecute: c.CanMutateSelection},
		{ID: CommandUpdate, CanExecute: c.CanMutateSelection},
	}
}

// Availability evaluates every guard once.
func (c *Controller) Availability() map[CommandID]bool {
	out := make(map[CommandID]bool, 3)
	for _, cmd := range c.Commands() {
		out[cmd.ID] = cmd.CanExecute()
	}
	return out
}

// Execute runs the command with the given id.
func (c *Controller) Execute(ctx context.Context, id CommandID) error {
	switch id {
	case CommandAdd:
		return c.Add(ctx)
	case CommandRemove:
		return c.Remove(ctx)
	case CommandUpdate:
		return c.Update(ctx)
	default:
		return fmt.Errorf("unknown command %q", id)
	}
}
