package diag

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/nopia/internal/ir"
)

// BuildMode selects which image the compilation emits.
type BuildMode string

const (
	// BuildFull emits a full image including method bodies.
	BuildFull BuildMode = "full"
	// BuildMetadataOnly emits declarations only.
	BuildMetadataOnly BuildMode = "metadata-only"
)

// Cause is one reported problem before policy is applied.
type Cause struct {
	Code     Code
	Location ir.Location
	Args     []string

	// InBody marks causes that only exist because of code inside a method
	// body.
	InBody bool

	// Severity overrides the catalog severity when set.
	Severity Severity
}

// Diagnostic is a record on the compiler's diagnostic stream.
type Diagnostic struct {
	Code     Code        `json:"code"`
	Severity Severity    `json:"severity"`
	Location ir.Location `json:"location"`
	Args     []string    `json:"args"`
	Message  string      `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s %s: %s", d.Location, d.Severity, d.Code, d.Message)
}

// Aggregator collects causes and applies the reporting policy.
// It is safe for concurrent use.
type Aggregator struct {
	mode BuildMode

	mu    sync.Mutex
	seen  map[string]int
	diags []Diagnostic
}

// NewAggregator creates an aggregator for the given build mode.
func NewAggregator(mode BuildMode) *Aggregator {
	if mode == "" {
		mode = BuildFull
	}
	return &Aggregator{
		mode: mode,
		seen: make(map[string]int),
	}
}

// Mode returns the build mode the aggregator applies.
func (a *Aggregator) Mode() BuildMode {
	return a.mode
}

// Report records c. A cause already reported with the same code and
// arguments is not repeated; if the repeat is more severe the recorded
// diagnostic is escalated and keeps the earlier of the two locations.
// Reports whether the cause is visible after policy.
func (a *Aggregator) Report(c Cause) bool {
	entry, known := catalog[c.Code]
	if a.mode == BuildMetadataOnly && c.InBody && !entry.Structural {
		return false
	}

	sev := c.Severity
	if sev == "" {
		sev = entry.Severity
	}
	if !known && sev == "" {
		sev = SeverityError
	}

	key := dedupKey(c.Code, c.Args)

	a.mu.Lock()
	defer a.mu.Unlock()

	if i, ok := a.seen[key]; ok {
		d := &a.diags[i]
		if sev == SeverityError {
			d.Severity = SeverityError
		}
		if c.Location.Before(d.Location) && !c.Location.IsZero() {
			d.Location = c.Location
		}
		return true
	}

	a.seen[key] = len(a.diags)
	a.diags = append(a.diags, Diagnostic{
		Code:     c.Code,
		Severity: sev,
		Location: c.Location,
		Args:     slices.Clone(c.Args),
		Message:  Format(c.Code, c.Args),
	})
	return true
}

// Reportf is shorthand for Report with a code and arguments.
func (a *Aggregator) Reportf(code Code, loc ir.Location, args ...string) bool {
	return a.Report(Cause{Code: code, Location: loc, Args: args})
}

// Diagnostics returns the recorded diagnostics ordered by location, code and
// arguments.
func (a *Aggregator) Diagnostics() []Diagnostic {
	a.mu.Lock()
	out := slices.Clone(a.diags)
	a.mu.Unlock()

	Sort(out)
	return out
}

// HasErrors reports whether any error was recorded. A full image may only be
// emitted when it returns false.
func (a *Aggregator) HasErrors() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range a.diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of errors and warnings recorded.
func (a *Aggregator) Count() (errs, warnings int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range a.diags {
		switch d.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warnings++
		}
	}
	return errs, warnings
}

// Sort orders diagnostics deterministically.
func Sort(diags []Diagnostic) {
	slices.SortStableFunc(diags, func(x, y Diagnostic) int {
		if x.Location != y.Location {
			if x.Location.Before(y.Location) {
				return -1
			}
			return 1
		}
		if c := strings.Compare(string(x.Code), string(y.Code)); c != 0 {
			return c
		}
		return slices.Compare(x.Args, y.Args)
	})
}

func dedupKey(code Code, args []string) string {
	return string(code) + "\x00" + strings.Join(args, "\x00")
}
