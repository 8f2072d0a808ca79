package runner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BinJu/train/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	stdin string
	cmd   string
}

type scriptedExec struct {
	calls  []call
	stdout map[string]string // keyed by "name arg0 arg1"
	err    error
}

func (s *scriptedExec) exec(_ context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	cmd := name + " " + strings.Join(args, " ")
	s.calls = append(s.calls, call{stdin: string(stdin), cmd: cmd})
	if s.err != nil {
		return nil, []byte("boom"), s.err
	}
	for prefix, out := range s.stdout {
		if strings.HasPrefix(cmd, prefix) {
			return []byte(out), nil, nil
		}
	}
	return nil, nil, nil
}

func newScripted(stdout map[string]string) (*Tekton, *scriptedExec) {
	s := &scriptedExec{stdout: stdout}
	return NewTekton(TektonConfig{Exec: s.exec}), s
}

func TestTektonApply(t *testing.T) {
	tk, s := newScripted(nil)

	require.NoError(t, tk.Apply(context.Background(), "kind: Pipeline", "train"))
	require.Len(t, s.calls, 1)
	assert.Equal(t, "kubectl apply -n train -f -", s.calls[0].cmd)
	assert.Equal(t, "kind: Pipeline", s.calls[0].stdin)
}

func TestTektonStart(t *testing.T) {
	tk, s := newScripted(map[string]string{
		"tkn -n train pipeline start": "PipelineRun started: build-opsman-run-8lvfx\n\nIn order to track the PipelineRun progress run:\n",
	})

	handle, err := tk.Start(context.Background(), "build-opsman", "train", map[string]string{
		"inst_id": "i-1",
		"art_id":  "opsman",
	})
	require.NoError(t, err)
	assert.Equal(t, "build-opsman-run-8lvfx", handle)
	assert.Equal(t, "tkn -n train pipeline start build-opsman -p art_id=opsman -p inst_id=i-1", s.calls[0].cmd)
}

func TestTektonStartUnexpectedOutput(t *testing.T) {
	tk, _ := newScripted(map[string]string{
		"tkn -n train pipeline start": "Error: pipeline not found",
	})

	_, err := tk.Start(context.Background(), "build-opsman", "train", nil)
	assert.Error(t, err)
}

func TestTektonCommandFailure(t *testing.T) {
	tk, s := newScripted(nil)
	s.err = errors.New("exit status 1")

	err := tk.DeleteRun(context.Background(), "build-opsman-run-1", "train")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

const describeJSON = `{
  "status": {
    "conditions": [{"type": "Succeeded", "status": "False", "reason": "PipelineRunTimeout"}],
    "results": [{"name": "url", "value": "https://opsman.example"}, {"name": "ips", "value": ["10.0.0.1"]}]
  }
}`

func TestTektonStatusAndResults(t *testing.T) {
	tk, s := newScripted(map[string]string{
		"tkn pipelinerun describe": describeJSON,
	})
	ctx := context.Background()

	reason, err := tk.Status(ctx, "build-opsman-run-1", "train")
	require.NoError(t, err)
	assert.Equal(t, "PipelineRunTimeout", reason)
	assert.Equal(t, "tkn pipelinerun describe build-opsman-run-1 -o json -n train", s.calls[0].cmd)

	doc, err := tk.Results(ctx, "build-opsman-run-1", "train")
	require.NoError(t, err)
	results, err := ParseResults(doc)
	require.NoError(t, err)
	assert.Equal(t, "https://opsman.example", results["url"])
	assert.JSONEq(t, `["10.0.0.1"]`, results["ips"])
}

func TestTektonList(t *testing.T) {
	tk, _ := newScripted(map[string]string{
		"tkn pipeline list": `{"items":[{"metadata":{"name":"build-opsman"}},{"metadata":{"name":"clean-opsman"}}]}`,
	})

	names, err := tk.List(context.Background(), "train")
	require.NoError(t, err)
	assert.Equal(t, []string{"build-opsman", "clean-opsman"}, names)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		reason string
		want   types.InstanceStatus
	}{
		{"", types.StatusUnknown()},
		{"Running", types.StatusRunning()},
		{"Started", types.StatusRunning()},
		{"Succeeded", types.StatusSucceeded()},
		{"Completed", types.StatusSucceeded()},
		{"Failed", types.StatusFailed("Failed")},
		{"PipelineRunTimeout\n", types.StatusFailed("PipelineRunTimeout")},
		{"Cancelled", types.StatusFailed("Cancelled")},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.reason))
		})
	}
}

func TestParseResultsEmpty(t *testing.T) {
	for _, doc := range []string{"", "null", " \n"} {
		results, err := ParseResults(doc)
		require.NoError(t, err)
		assert.Empty(t, results)
	}

	_, err := ParseResults("not json")
	assert.Error(t, err)
}
