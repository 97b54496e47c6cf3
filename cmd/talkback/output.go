package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/mattn/go-isatty"
)

// writeJSON prints v as indented JSON, highlighted on a terminal.
func writeJSON(w io.Writer, v any, plain bool) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeHighlighted(w, string(data)+"\n", "json", plain)
}

func writeHighlighted(w io.Writer, src, lexer string, plain bool) error {
	if plain || !isTerminal(w) {
		_, err := io.WriteString(w, src)
		return err
	}
	return quick.Highlight(w, src, lexer, "terminal256", "monokai")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
