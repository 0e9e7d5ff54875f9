package ldtest

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// PrintResults writes a summary of the test run to standard output.
func PrintResults(results Results) {
	WriteResults(os.Stdout, results)
}

// WriteResults writes a summary of the test run: the number of tests, and the full error
// output of every failure.
func WriteResults(w io.Writer, results Results) {
	fmt.Fprintf(w, "Ran %d tests (%d skipped)\n", len(results.Tests), results.Skipped())
	if results.OK() {
		passedColor.Fprintln(w, "All tests passed")
		return
	}
	failedColor.Fprintf(w, "FAILED TESTS (%d):\n", len(results.Failures))
	for _, f := range results.Failures {
		name := f.TestID.String()
		if name == "" {
			name = "(test run setup)"
		}
		fmt.Fprintf(w, "  * %s\n", name)
		for _, err := range f.Errors {
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
}

// PrintFilterDescription tells the user which tests may be skipped, either because of the
// filter parameters or because the system under test lacks some capabilities.
func PrintFilterDescription(w io.Writer, filters RegexFilters, allCapabilities []string, capabilities Capabilities) {
	if filters.IsDefined() {
		fmt.Fprintln(w, "Some tests will be skipped based on the filter criteria for this test run:")
		if filters.MustMatch.IsDefined() {
			fmt.Fprintf(w, "  skip any not matching %s\n", filters.MustMatch)
		}
		if filters.MustNotMatch.IsDefined() {
			fmt.Fprintf(w, "  skip any matching %s\n", filters.MustNotMatch)
		}
		fmt.Fprintln(w)
	}

	if missing := capabilities.Missing(allCapabilities); len(missing) > 0 {
		fmt.Fprintln(w, "Some tests may be skipped because the test service does not support the following capabilities:")
		fmt.Fprintf(w, "  %s\n", strings.Join(missing, ", "))
		fmt.Fprintln(w)
	}
}
