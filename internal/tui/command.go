package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// errExit is returned by a command to end the shell loop.
var errExit = errors.New("exit")

// Help groups, in the order help prints them.
const (
	groupDatasets = "Datasets"
	groupShell    = "Shell"
)

var groupOrder = []string{groupDatasets, groupShell}

// ShellContext is what a command sees while it runs
type ShellContext struct {
	Shell   *Shell
	Args    []string
	Context context.Context
	Out     io.Writer
}

// CommandSpec describes a command for help and name lookup.
type CommandSpec struct {
	Name    string
	Aliases []string
	Usage   string
	Summary string
	Group   string
	// Flags lists the --flags the command accepts, without dashes.
	Flags []string
}

// Command is a shell command
type Command interface {
	Spec() CommandSpec
	Execute(ctx *ShellContext) error
	// Complete returns candidates for the word being typed; args holds the
	// words already typed after the command name.
	Complete(partial string, args []string) []string
}

// CommandRegistry resolves command names and aliases
type CommandRegistry struct {
	byName   map[string]Command
	commands []Command
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]Command)}
}

// Register adds cmd under its name and every alias.
func (cr *CommandRegistry) Register(cmd Command) error {
	spec := cmd.Spec()
	names := append([]string{spec.Name}, spec.Aliases...)
	for _, name := range names {
		if _, exists := cr.byName[name]; exists {
			return fmt.Errorf("command %s already registered", name)
		}
	}
	for _, name := range names {
		cr.byName[name] = cmd
	}
	cr.commands = append(cr.commands, cmd)
	return nil
}

func (cr *CommandRegistry) Get(name string) (Command, bool) {
	cmd, ok := cr.byName[name]
	return cmd, ok
}

// Names returns every name and alias in sorted order.
func (cr *CommandRegistry) Names() []string {
	names := make([]string, 0, len(cr.byName))
	for name := range cr.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompleteName returns the names and aliases starting with partial.
func (cr *CommandRegistry) CompleteName(partial string) []string {
	return withPrefix(cr.Names(), partial)
}

// grouped returns commands per help group, in registration order.
func (cr *CommandRegistry) grouped() map[string][]Command {
	out := make(map[string][]Command)
	for _, cmd := range cr.commands {
		g := cmd.Spec().Group
		out[g] = append(out[g], cmd)
	}
	return out
}

func withPrefix(candidates []string, partial string) []string {
	out := []string{}
	for _, c := range candidates {
		if strings.HasPrefix(c, partial) {
			out = append(out, c)
		}
	}
	return out
}

// completeFlags offers the command's flags once the user starts typing "-".
func completeFlags(spec CommandSpec, partial string) []string {
	if !strings.HasPrefix(partial, "-") {
		return []string{}
	}
	flags := make([]string, len(spec.Flags))
	for i, f := range spec.Flags {
		flags[i] = "--" + f
	}
	return withPrefix(flags, partial)
}

// usageError reports a command invoked with missing arguments.
func usageError(spec CommandSpec) error {
	return fmt.Errorf("usage: %s", spec.Usage)
}

// HelpCommand lists commands by group, or describes one command
type HelpCommand struct {
	registry *CommandRegistry
}

func NewHelpCommand(registry *CommandRegistry) *HelpCommand {
	return &HelpCommand{registry: registry}
}

func (hc *HelpCommand) Spec() CommandSpec {
	return CommandSpec{
		Name:    "help",
		Usage:   "help [command]",
		Summary: "Show available commands, or the usage of one command",
		Group:   groupShell,
	}
}

func (hc *HelpCommand) Execute(ctx *ShellContext) error {
	if len(ctx.Args) > 1 {
		cmd, ok := hc.registry.Get(ctx.Args[1])
		if !ok {
			return fmt.Errorf("unknown command: %s", ctx.Args[1])
		}
		spec := cmd.Spec()
		fmt.Fprintf(ctx.Out, "%s\n\nUsage: %s\n", spec.Summary, spec.Usage)
		if len(spec.Aliases) > 0 {
			fmt.Fprintf(ctx.Out, "Aliases: %s\n", strings.Join(spec.Aliases, ", "))
		}
		return nil
	}

	width := 0
	for _, cmd := range hc.registry.commands {
		width = max(width, len(cmd.Spec().Usage))
	}
	groups := hc.registry.grouped()
	for i, group := range groupOrder {
		if i > 0 {
			fmt.Fprintln(ctx.Out)
		}
		fmt.Fprintf(ctx.Out, "%s:\n", group)
		for _, cmd := range groups[group] {
			spec := cmd.Spec()
			fmt.Fprintf(ctx.Out, "  %-*s  %s\n", width, spec.Usage, spec.Summary)
		}
	}
	fmt.Fprintln(ctx.Out, "\nDataset URLs complete with Tab once they are cached.")
	return nil
}

func (hc *HelpCommand) Complete(partial string, args []string) []string {
	if len(args) > 0 {
		return []string{}
	}
	return hc.registry.CompleteName(partial)
}

// ExitCommand ends the shell session
type ExitCommand struct{}

func (ExitCommand) Spec() CommandSpec {
	return CommandSpec{
		Name:    "exit",
		Aliases: []string{"quit"},
		Usage:   "exit",
		Summary: "Leave the shell",
		Group:   groupShell,
	}
}

func (ExitCommand) Execute(ctx *ShellContext) error { return errExit }

func (ExitCommand) Complete(partial string, args []string) []string { return []string{} }
