// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// keyd-cli is a debug REPL that speaks internal/resp directly to a
// running keyd: a liner prompt with history, paged reply rendering.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/sandia-minimega/keyd/internal/resp"
	log "github.com/sandia-minimega/keyd/pkg/minilog"
	"github.com/sandia-minimega/keyd/pkg/minipager"

	"github.com/peterh/liner"
)

var f_addr = flag.String("addr", "localhost:6380", "host:port of the keyd server to attach to")

func main() {
	flag.Usage = func() {
		fmt.Println("usage: keyd-cli [option]...")
		flag.PrintDefaults()
	}
	flag.Parse()
	log.Init()

	conn, err := net.Dial("tcp", *f_addr)
	if err != nil {
		log.Fatal("dial %v: %v", *f_addr, err)
	}
	defer conn.Close()

	c := &client{
		conn: conn,
		r:    resp.NewReader(conn),
		w:    resp.NewWriter(conn),
	}
	c.attach()
}

type client struct {
	conn net.Conn
	r    *resp.Reader
	w    *resp.Writer
}

// run sends one request and reads back exactly one reply, the shape every
// command in this protocol follows outside of SUBSCRIBE pushes.
func (c *client) run(args []string) (resp.Value, error) {
	if err := c.w.WriteValue(resp.Command(args...)); err != nil {
		return resp.Value{}, err
	}
	if err := c.w.Flush(); err != nil {
		return resp.Value{}, err
	}
	return c.r.ReadValue()
}

// attach runs the interactive prompt loop.
func (c *client) attach() {
	fmt.Println("keyd-cli: connected to", *f_addr)
	fmt.Println("type 'quit' or ^d to exit")
	fmt.Println()

	input := liner.NewLiner()
	defer input.Close()
	input.SetCtrlCAborts(true)

	prompt := fmt.Sprintf("keyd %v> ", *f_addr)

	for {
		line, err := input.Prompt(prompt)
		if err == liner.ErrPromptAborted {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			log.Errorln(err)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		input.AppendHistory(line)

		if line == "quit" {
			break
		}

		args, err := tokenize(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "parse error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		reply, err := c.run(args)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
		if reply.Kind == resp.KindError {
			fmt.Fprintln(os.Stderr, "(error) "+reply.Str)
			continue
		}

		var buf strings.Builder
		formatReply(&buf, reply, 0)
		minipager.DefaultPager.Page(buf.String())
	}
}

// tokenize splits a line into whitespace-separated words, honoring single
// and double quotes the way an interactive Redis-style client does; it
// does not support escape sequences inside quotes, which keyd-cli's
// debug-only scope doesn't need.
func tokenize(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	var quote rune
	inWord := false

	flush := func() {
		if inWord {
			args = append(args, cur.String())
			cur.Reset()
			inWord = false
		}
	}

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			flush()
		default:
			inWord = true
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	flush()
	return args, nil
}

// formatReply renders v in the conventional (integer)/(nil)/numbered-array
// style into buf, recursing for nested arrays (GEOPOS, XRANGE entries); the
// caller hands the finished string to minipager so a reply spanning more
// than a couple of terminal heights (COMMAND, a long XRANGE) opens
// in $PAGER instead of blowing past the scrollback.
func formatReply(buf *strings.Builder, v resp.Value, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v.Kind {
	case resp.KindSimpleString:
		buf.WriteString(indent + v.Str + "\n")
	case resp.KindError:
		buf.WriteString(indent + "(error) " + v.Str + "\n")
	case resp.KindInteger:
		fmt.Fprintf(buf, "%s(integer) %d\n", indent, v.Int)
	case resp.KindBulkString:
		if v.IsNull() {
			buf.WriteString(indent + "(nil)\n")
			return
		}
		fmt.Fprintf(buf, "%s%q\n", indent, string(v.Bulk))
	case resp.KindArray:
		if v.IsNull() {
			buf.WriteString(indent + "(nil)\n")
			return
		}
		if len(v.Array) == 0 {
			buf.WriteString(indent + "(empty array)\n")
			return
		}
		for i, item := range v.Array {
			fmt.Fprintf(buf, "%s%d) ", indent, i+1)
			formatReply(buf, item, 0)
		}
	default:
		fmt.Fprintf(buf, "%s(unknown reply kind %v)\n", indent, v.Kind)
	}
}
