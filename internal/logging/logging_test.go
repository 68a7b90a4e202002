package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/raysh454/replaydesk/internal/logging"
)

func TestStdoutLogger_WritesJSONLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewStdoutLogger("test")
	l.SetOutput(&buf)

	l.Info("hello", logging.Field{Key: "n", Value: 3})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v (line %q)", err, buf.String())
	}
	if entry["level"] != "info" || entry["msg"] != "hello" || entry["component"] != "test" {
		t.Errorf("unexpected entry: %v", entry)
	}
	fields, _ := entry["fields"].(map[string]any)
	if fields["n"] != float64(3) {
		t.Errorf("expected field n=3, got %v", fields["n"])
	}
}

func TestStdoutLogger_WithCarriesFieldsAndComponent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewStdoutLogger("root")
	l.SetOutput(&buf)

	child := l.With(logging.Field{Key: "component", Value: "child"}, logging.Field{Key: "session", Value: "abc"})
	child.Warn("careful")

	line := buf.String()
	if !strings.Contains(line, `"component":"child"`) {
		t.Errorf("expected child component, got %s", line)
	}
	if !strings.Contains(line, `"session":"abc"`) {
		t.Errorf("expected persistent field, got %s", line)
	}
}

func TestStdoutLogger_SetLevelFilters(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewStdoutLogger("")
	l.SetOutput(&buf)
	l.SetLevel("warn")

	l.Debug("nope")
	l.Info("nope")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}
	l.Error("yes")
	if !strings.Contains(buf.String(), `"msg":"yes"`) {
		t.Errorf("expected error line, got %q", buf.String())
	}
}
