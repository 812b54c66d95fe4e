package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/brainless/csvexplorer/internal/importer"
	"github.com/brainless/csvexplorer/internal/log"
	"github.com/chzyer/readline"
)

// ShellConfig configures a Shell. Zero values fall back to defaults.
type ShellConfig struct {
	HistoryFile string
	ChunkSize   int
	Workers     int
	Out         io.Writer
	// Width fixes the table width; 0 means the current terminal width.
	Width int
}

// Shell is the interactive dataset shell
type Shell struct {
	importer *importer.Importer
	registry *CommandRegistry
	config   ShellConfig
	out      io.Writer
	readline *readline.Instance
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewShell creates a shell that works on the datasets of imp
func NewShell(imp *importer.Importer, config ShellConfig) *Shell {
	if config.Out == nil {
		config.Out = os.Stdout
	}
	if config.Workers <= 0 {
		config.Workers = importer.DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Shell{
		importer: imp,
		registry: NewCommandRegistry(),
		config:   config,
		out:      config.Out,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.registerCommands()
	return s
}

func (s *Shell) registerCommands() {
	commands := []Command{
		NewImportCommand(s),
		NewListCommand(s),
		NewShowCommand(s),
		NewRowsCommand(s),
		NewClearCommand(s),
		NewReferenceCommand(s),
		NewHelpCommand(s.registry),
		ExitCommand{},
	}
	for _, cmd := range commands {
		if err := s.registry.Register(cmd); err != nil {
			log.Logger.Errorf("Failed to register command: %v", err)
		}
	}
}

func (s *Shell) width() int {
	if s.config.Width > 0 {
		return s.config.Width
	}
	return TerminalWidth()
}

// cachedURLs returns cached dataset URLs starting with partial
func (s *Shell) cachedURLs(partial string) []string {
	metas, err := s.importer.ListCached(s.ctx)
	if err != nil {
		log.Logger.Debugf("Completion lookup failed: %v", err)
		return []string{}
	}
	var urls []string
	for _, m := range metas {
		if strings.HasPrefix(m.URL, partial) {
			urls = append(urls, m.URL)
		}
	}
	return urls
}

// Execute runs a single command line. It returns errExit when the line
// asks the shell to stop.
func (s *Shell) Execute(line string) error {
	args, err := parseCommandArgs(strings.TrimSpace(line))
	if err != nil {
		return err
	}
	return s.ExecuteArgs(args)
}

// ExecuteArgs runs a command that is already split into arguments.
func (s *Shell) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return nil
	}

	cmd, ok := s.registry.Get(args[0])
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for a list)", args[0])
	}
	return cmd.Execute(&ShellContext{
		Shell:   s,
		Args:    args,
		Context: s.ctx,
		Out:     s.out,
	})
}

// Run starts the interactive loop and returns when the user exits
func (s *Shell) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "csv> ",
		HistoryFile:       s.config.HistoryFile,
		AutoComplete:      &completer{shell: s},
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	s.readline = rl
	defer rl.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			log.Logger.Info("Received shutdown signal, stopping gracefully...")
			s.cancel()
			rl.Close()
		case <-s.ctx.Done():
		}
	}()

	fmt.Fprintln(s.out, "CSV Explorer interactive shell")
	fmt.Fprintln(s.out, "Type 'help' for available commands or 'exit' to quit")
	fmt.Fprintln(s.out)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					return s.shutdown()
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				return s.shutdown()
			}
			if s.ctx.Err() != nil {
				return s.shutdown()
			}
			log.Logger.Errorf("Readline error: %v", err)
			return s.shutdown()
		}

		if err := s.Execute(line); err != nil {
			if errors.Is(err, errExit) {
				return s.shutdown()
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

func (s *Shell) shutdown() error {
	s.cancel()
	fmt.Fprintln(s.out, "Goodbye!")
	return nil
}

// completer implements readline.AutoCompleter over the command registry
type completer struct {
	shell *Shell
}

// Do returns the suffixes that complete the word under the cursor
func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	input := string(line[:pos])
	words := strings.Fields(input)
	partial := ""
	if len(words) > 0 && !strings.HasSuffix(input, " ") {
		partial = words[len(words)-1]
		words = words[:len(words)-1]
	}

	var candidates []string
	if len(words) == 0 {
		candidates = c.shell.registry.CompleteName(partial)
	} else if cmd, ok := c.shell.registry.Get(words[0]); ok {
		candidates = cmd.Complete(partial, words[1:])
	}

	out := make([][]rune, 0, len(candidates))
	for _, cand := range candidates {
		if strings.HasPrefix(cand, partial) {
			out = append(out, []rune(cand[len(partial):]+" "))
		}
	}
	return out, len([]rune(partial))
}
