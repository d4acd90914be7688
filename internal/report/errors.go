package report

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInconsistentPrincipalSet reports that findings or scores name a
// principal the reduction does not know about.
var ErrInconsistentPrincipalSet = errors.New("inconsistent principal set")

// AssemblyError is returned by Assemble when its inputs disagree. No report
// is produced alongside it.
type AssemblyError struct {
	// Principals lists the offending principals in sorted order.
	Principals []string
	// Source names the input that carried them ("findings" or "scores").
	Source string
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assemble report: %s reference principals absent from reduction: %s",
		e.Source, strings.Join(e.Principals, ", "))
}

func (e *AssemblyError) Unwrap() error { return ErrInconsistentPrincipalSet }
