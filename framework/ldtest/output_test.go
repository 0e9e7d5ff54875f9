package ldtest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withoutColor(t *testing.T) {
	saved := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = saved })
}

func TestWriteResultsAllPassed(t *testing.T) {
	withoutColor(t)
	results := Results{
		Tests: []TestResult{
			{TestID: TestID{Path: []string{"contract", "TestStatus"}}},
			{TestID: TestID{Path: []string{"contract", "TestEntityLifecycle"}}},
			{TestID: TestID{Path: []string{"contract", "TestCallbacks"}}, Skipped: true},
		},
	}

	var buf bytes.Buffer
	WriteResults(&buf, results)

	g := goldie.New(t)
	g.Assert(t, "results_ok", buf.Bytes())
}

func TestWriteResultsWithFailures(t *testing.T) {
	withoutColor(t)
	failure := TestResult{
		TestID: TestID{Path: []string{"contract", "TestStatus"}},
		Errors: []error{errors.New("expected: 1\nactual  : 2"), errors.New("boom")},
	}
	setup := TestResult{Errors: []error{errors.New("no descriptor")}}
	results := Results{
		Tests:    []TestResult{{TestID: TestID{Path: []string{"contract", "TestCallbacks"}}}, failure},
		Failures: []TestResult{failure, setup},
	}

	var buf bytes.Buffer
	WriteResults(&buf, results)

	g := goldie.New(t)
	g.Assert(t, "results_failed", buf.Bytes())
}

func TestPrintFilterDescription(t *testing.T) {
	var filters RegexFilters
	require.NoError(t, filters.MustMatch.Set("status"))
	require.NoError(t, filters.MustNotMatch.Set("callbacks"))

	var buf bytes.Buffer
	PrintFilterDescription(&buf, filters, []string{"callbacks", "echo"}, Capabilities{"echo"})

	assert.Equal(t,
		"Some tests will be skipped based on the filter criteria for this test run:\n"+
			"  skip any not matching \"status\"\n"+
			"  skip any matching \"callbacks\"\n"+
			"\n"+
			"Some tests may be skipped because the test service does not support the following capabilities:\n"+
			"  callbacks\n"+
			"\n",
		buf.String())
}

func TestPrintFilterDescriptionWithNothingToSay(t *testing.T) {
	var buf bytes.Buffer
	PrintFilterDescription(&buf, RegexFilters{}, []string{"echo"}, Capabilities{"echo"})
	assert.Empty(t, buf.String())
}

func TestConsoleTestLogger(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	logger := ConsoleTestLogger{Output: &buf}
	id := TestID{Path: []string{"a", "b"}}

	logger.TestStarted(id)
	logger.TestError(id, errors.New("line 1\nline 2"))
	logger.TestFinished(id, true, nil)
	logger.TestSkipped(id, "")
	logger.TestSkipped(id, "why")

	assert.Equal(t,
		"[a/b]\n"+
			"  line 1\n"+
			"  line 2\n"+
			"  FAILED: a/b\n"+
			"  SKIPPED: a/b\n"+
			"  SKIPPED: a/b (why)\n",
		buf.String())
}
