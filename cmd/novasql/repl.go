package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tuannm99/novaproto/sqlclient"
)

const helpText = `meta commands:
  \q | quit | exit       quit
  \d <table>             describe a table
  \dt                    list tables
  \types                 print the descriptors of the last result
  \history               print history
  \help                  show help

sql:
  end statement with ';' (parser requires it)
  multiline is supported (CLI will wait until ';')`

// statementComplete checks if we have a terminating ';' outside single quotes.
func statementComplete(buf string) bool {
	inQuote := false
	for _, r := range buf {
		switch {
		case r == '\'':
			// '' inside a literal toggles twice
			inQuote = !inQuote
		case r == ';' && !inQuote:
			return true
		}
	}
	return false
}

func isMetaCommand(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "\\") ||
		line == "quit" || line == "exit"
}

type repl struct {
	cli  *sqlclient.Client
	hist *History
	out  io.Writer
	last *sqlclient.Result
}

// meta runs a meta command and reports whether the session should end.
func (r *repl) meta(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "\\q", "quit", "exit":
		return true
	case "\\help":
		fmt.Fprintln(r.out, helpText)
	case "\\history":
		r.hist.Print(r.out, 50)
	case "\\types":
		printDescriptors(r.out, r.last)
	case "\\dt":
		r.exec("SHOW TABLES;")
	case "\\d":
		if len(fields) != 2 {
			fmt.Fprintln(r.out, "usage: \\d <table>")
			break
		}
		r.exec("DESCRIBE " + fields[1] + ";")
	default:
		fmt.Fprintf(r.out, "unknown command: %s\n", line)
	}
	return false
}

func (r *repl) exec(stmt string) {
	res, err := r.cli.Exec(stmt)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	if res.Type != nil {
		r.last = res
	}
	printResult(r.out, res)
}

func (r *repl) run(rl *readline.Instance) {
	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			// Ctrl+C clears current buffer
			if buf.Len() > 0 {
				buf.Reset()
				rl.SetPrompt("novasql> ")
				continue
			}
			fmt.Fprintln(r.out, "^C")
			continue
		}
		if err != nil {
			// EOF
			fmt.Fprintln(r.out)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if buf.Len() == 0 && isMetaCommand(line) {
			if r.meta(line) {
				return
			}
			continue
		}

		// accumulate sql
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)
		if !statementComplete(buf.String()) {
			rl.SetPrompt("...> ")
			continue
		}

		stmt := strings.TrimSpace(buf.String())
		buf.Reset()
		rl.SetPrompt("novasql> ")

		_ = r.hist.Append(stmt)
		_ = rl.SaveHistory(compactOneLine(stmt))
		r.exec(stmt)
	}
}
