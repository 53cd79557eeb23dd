package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"unicode/utf8"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// msgOut receives status lines so stdout stays clean for JSON and prompts.
var msgOut io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(msgOut, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(msgOut, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(msgOut, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(msgOut, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

func printStep(format string, args ...any) {
	fmt.Fprintln(msgOut, colorize(colorCyan, "→ "+fmt.Sprintf(format, args...)))
}

// httpStatus colors an upstream status code: rate limits and client errors
// in yellow, server errors in red.
func httpStatus(code int) string {
	s := strconv.Itoa(code)
	switch {
	case code == 0:
		return colorize(colorRed, "---")
	case code >= 500:
		return colorize(colorRed, s)
	case code >= 400:
		return colorize(colorYellow, s)
	default:
		return colorize(colorGreen, s)
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
