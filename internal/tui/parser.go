package tui

import (
	"fmt"
	"strings"
)

// parseCommandArgs splits a shell line into arguments. Double and single
// quotes group words, and a backslash escapes the next character outside
// single quotes. URLs with query strings survive unquoted.
func parseCommandArgs(input string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		escaped bool
		inWord  bool
	)

	for _, char := range input {
		switch {
		case escaped:
			current.WriteRune(char)
			escaped = false
		case char == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if char == quote {
				quote = 0
			} else {
				current.WriteRune(char)
			}
		case char == '"' || char == '\'':
			quote = char
			inWord = true
		case char == ' ' || char == '\t':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(char)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash")
	}
	if inWord {
		args = append(args, current.String())
	}

	return args, nil
}

// splitFlags separates --flag style arguments from positional ones.
func splitFlags(args []string) (positional []string, flags map[string]bool) {
	flags = make(map[string]bool)
	for _, arg := range args {
		if strings.HasPrefix(arg, "--") && len(arg) > 2 {
			flags[strings.TrimPrefix(arg, "--")] = true
			continue
		}
		positional = append(positional, arg)
	}
	return positional, flags
}
