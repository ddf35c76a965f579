package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangyunhao116/cmdpolicy"
)

func TestAssessmentText(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, Options{})

	require.NoError(t, p.Assessment(cmdpolicy.Evaluate("ls -la")))
	assert.Equal(t, "[AUTO] ls -la\n", buf.String())

	buf.Reset()
	require.NoError(t, p.Assessment(cmdpolicy.Evaluate("rm -rf /")))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[BLOCKED] rm -rf /\n"), out)
	assert.Contains(t, out, "reason: destructive rm flags")
	assert.NotContains(t, out, "\x1b[")
}

func TestAssessmentJSON(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, Options{JSON: true})
	require.True(t, p.JSON())

	require.NoError(t, p.Assessment(cmdpolicy.Evaluate("echo $(whoami)")))
	require.Equal(t, 1, strings.Count(buf.String(), "\n"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "echo $(whoami)", got["command"])
	assert.Equal(t, "blocked", got["decision"])
	assert.NotContains(t, got, "line")
	verdict, ok := got["verdict"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, cmdpolicy.RuleExpansion, verdict["rule"])
}

func TestExplain(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, Options{})
	require.NoError(t, p.Explain("ls", "", false))
	require.NoError(t, p.Explain("rm -rf /", "destructive rm flags", true))
	assert.Equal(t, "allowed\ndestructive rm flags\n", buf.String())

	buf.Reset()
	p = New(&buf, Options{JSON: true})
	require.NoError(t, p.Explain("rm -rf /", "destructive rm flags", true))
	var got ExplainRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, ExplainRecord{Command: "rm -rf /", Blocked: true, Reason: "destructive rm flags"}, got)
}

func TestTable(t *testing.T) {
	records := []Record{
		{Line: 1, Assessment: cmdpolicy.Evaluate("git status")},
		{Line: 3, Assessment: cmdpolicy.Evaluate("kubectl delete pod x")},
	}

	var buf bytes.Buffer
	require.NoError(t, New(&buf, Options{}).Table(records))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"LINE", "DECISION", "RULE", "COMMAND"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "auto", "-", "git", "status"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"3", "blocked", "destructive-kubectl", "kubectl", "delete", "pod", "x"}, strings.Fields(lines[2]))

	buf.Reset()
	require.NoError(t, New(&buf, Options{JSON: true}).Table(records))
	lines = strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	var got Record
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	assert.Equal(t, 3, got.Line)
	assert.Equal(t, cmdpolicy.Blocked, got.Decision)
}

func TestMessageAndError(t *testing.T) {
	var buf bytes.Buffer
	text := New(&buf, Options{})
	require.NoError(t, text.Message("policy %s is valid", "a.toml"))
	require.NoError(t, text.Error(errors.New("boom"), 1))
	assert.Equal(t, "policy a.toml is valid\n", buf.String())

	buf.Reset()
	js := New(&buf, Options{JSON: true})
	require.NoError(t, js.Message("ignored"))
	require.NoError(t, js.Error(errors.New("boom"), 1))
	var got ErrorPayload
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, ErrorPayload{Error: "error", Message: "boom", Code: 1}, got)
}

func TestColorEnabled(t *testing.T) {
	assert.False(t, ColorEnabled(&bytes.Buffer{}, false), "non-file writer")
	t.Setenv("NO_COLOR", "1")
	assert.False(t, ColorEnabled(&bytes.Buffer{}, false))
	assert.False(t, ColorEnabled(&bytes.Buffer{}, true))
}
