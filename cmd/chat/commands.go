package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type commandKind int

const (
	cmdSend commandKind = iota
	cmdPrivate
	cmdWho
	cmdQuit
	cmdHelp
)

type command struct {
	kind    commandKind
	indices []int
	text    string
}

const usage = `Commands:
  <text>                 send to everyone
  /pm <i,j,...> <text>   send privately to the listed roster positions
  /who                   refresh the user list
  /quit                  leave the chat
  /help                  show this help`

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSend, text: line}, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	switch name {
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	case "/who":
		return command{kind: cmdWho}, nil
	case "/help":
		return command{kind: cmdHelp}, nil
	case "/pm":
		list, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
		indices, err := parseIndices(list)
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdPrivate, indices: indices, text: strings.TrimSpace(text)}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q, try /help", name)
	}
}

func parseIndices(list string) ([]int, error) {
	parts := lo.Compact(lo.Map(strings.Split(list, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
	indices := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(p)
		if err != nil || i < 0 {
			return nil, fmt.Errorf("invalid user index %q", p)
		}
		indices = append(indices, i)
	}
	return lo.Uniq(indices), nil
}
