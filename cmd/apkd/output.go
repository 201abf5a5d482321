package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"apkd/internal/format"
)

var (
	// outputFormatter is nil for plain text output.
	outputFormatter format.Formatter
	stdout          io.Writer = os.Stdout
)

func writeStructured(payload any) (bool, error) {
	if outputFormatter == nil {
		return false, nil
	}
	return true, outputFormatter.Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeLines(lines ...string) error {
	return writePlain("%s\n", strings.Join(lines, "\n"))
}
