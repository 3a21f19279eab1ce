// Package shaping projects a compilation result into either its raw
// JSON form or a plain-text rendering, depending on what the client
// asked for.
package shaping

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ansiCSI matches ANSI CSI escape sequences (e.g. colour codes) so they
// can be stripped from plain-text projections.
var ansiCSI = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

const banner = "# Compilation provided by Compiler Explorer at https://godbolt.org/"

// Options controls how Project renders a result.
type Options struct {
	PlainText  bool
	FilterAnsi bool
}

// Project strips internal bookkeeping fields from result and renders it
// either as plain text or as JSON, per opts.
func Project(result map[string]interface{}, opts Options) ([]byte, string, error) {
	clean := strip(result)

	if opts.PlainText {
		text := renderPlainText(clean)
		if opts.FilterAnsi {
			text = ansiCSI.ReplaceAllString(text, "")
		}
		return []byte(text), "text/plain", nil
	}

	body, err := json.Marshal(clean)
	if err != nil {
		return nil, "", fmt.Errorf("shaping: encode json: %w", err)
	}
	return body, "application/json", nil
}

func strip(result map[string]interface{}) map[string]interface{} {
	clean := make(map[string]interface{}, len(result))
	for k, v := range result {
		if k == "guid" || k == "s3Key" {
			continue
		}
		clean[k] = v
	}
	return clean
}

func renderPlainText(result map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(banner)
	b.WriteByte('\n')

	for _, line := range textLines(result["asm"]) {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if code := intField(result["code"]); code != 0 {
		fmt.Fprintf(&b, "# Compiler exited with result code %d\n", code)
	}

	writeLabelledBlock(&b, "stdout", textLines(result["stdout"]))
	writeLabelledBlock(&b, "stderr", textLines(result["stderr"]))

	if execResult, ok := result["execResult"].(map[string]interface{}); ok {
		b.WriteString("# Execution result\n")
		if code := intField(execResult["code"]); code != 0 {
			fmt.Fprintf(&b, "# Execution exited with result code %d\n", code)
		}
		writeLabelledBlock(&b, "stdout", textLines(execResult["stdout"]))
		writeLabelledBlock(&b, "stderr", textLines(execResult["stderr"]))
	}

	return b.String()
}

func writeLabelledBlock(b *strings.Builder, label string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "# %s\n", label)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// textLines extracts the "text" field from each element of a
// []interface{} of objects, the shape asm/stdout/stderr entries take.
func textLines(field interface{}) []string {
	items, ok := field.([]interface{})
	if !ok {
		return nil
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		text, _ := entry["text"].(string)
		lines = append(lines, text)
	}
	return lines
}

func intField(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := strconv.Atoi(n.String())
		return i
	default:
		return 0
	}
}
