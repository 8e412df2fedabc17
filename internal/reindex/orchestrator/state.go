package orchestrator

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/tracing"
	"github.com/hashicorp/go-multierror"
)

type Stage int

const (
	StageFetchingTypes Stage = iota
	StageTypeLoop
	StageRemovingOldContent
	StageFetchingItemList
	StageItemLoop
	StageFinishingType
	StageCompleted
	StageAborted
)

var stageNames = [...]string{
	StageFetchingTypes:      "FetchingTypes",
	StageTypeLoop:           "TypeLoop",
	StageRemovingOldContent: "RemovingOldContent",
	StageFetchingItemList:   "FetchingItemList",
	StageItemLoop:           "ItemLoop",
	StageFinishingType:      "FinishingType",
	StageCompleted:          "Completed",
	StageAborted:            "Aborted",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Terminal reports whether the run stops in this stage.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageAborted
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeCancelled Outcome = "cancelled"
)

// RunState is owned by the goroutine driving a run.
type RunState struct {
	RunID string
	Stage Stage

	queue      []string
	TotalTypes int
	DoneTypes  int
	Type       string
	Processed  []string
	Skipped    []string

	items      []string
	Item       string
	TotalItems int
	DoneItems  int

	Coarse int
	Fine   int
	Errors ErrorLog

	trace        *tracing.Span
	typeSpan     *tracing.Span
	typeErrStart int
}

// advanceType counts the current type as done. The counter starts at one
// and never passes the number of types in the catalog.
func (st *RunState) advanceType() {
	if st.DoneTypes < st.TotalTypes {
		st.DoneTypes++
	}
}

func (st *RunState) resetItems(ids []string) {
	st.items = ids
	st.Item = ""
	st.TotalItems = len(ids)
	st.DoneItems = 0
	st.Fine = 0
}

// coarsePercent is the whole-run progress shown while a type starts. It
// never reports zero once a type is underway.
func coarsePercent(done, total int) int {
	if total <= 0 {
		return 100
	}
	p := round(float64(done-1) / float64(total) * 100)
	if p == 0 {
		p = round(float64(done) / float64(total) * 100 / 2)
	}
	if p == 0 {
		p = 1
	}
	return p
}

func finePercent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return max(1, round(float64(done)/float64(total)*100))
}

func round(f float64) int {
	return int(math.Round(f))
}

// ErrorLog collects the per-type and per-item failures of a run.
type ErrorLog struct {
	lines []string
	errs  *multierror.Error
}

func (l *ErrorLog) addType(contentType string, err error, reason string) {
	l.add(fmt.Sprintf("%s :: %s", contentType, reason), err)
}

func (l *ErrorLog) addItem(contentType, id string, err error, reason string) {
	l.add(fmt.Sprintf("%s: %s :: %s", contentType, id, reason), err)
}

func (l *ErrorLog) add(line string, err error) {
	l.lines = append(l.lines, line)
	l.errs = multierror.Append(l.errs, err)
}

func (l *ErrorLog) Lines() []string {
	return append([]string(nil), l.lines...)
}

func (l *ErrorLog) Len() int {
	return len(l.lines)
}

// Err joins every recorded failure, or returns nil when there were none.
func (l *ErrorLog) Err() error {
	return l.errs.ErrorOrNil()
}

// NoErrors is the summary text of a clean run.
const NoErrors = "no errors"

type Summary struct {
	RunID      string
	Outcome    Outcome
	Stage      Stage
	Processed  []string
	Skipped    []string
	DoneTypes  int
	TotalTypes int
	Errors     []string
	Duration   time.Duration
}

// Text renders the error log one line per failure, or NoErrors.
func (s Summary) Text() string {
	if len(s.Errors) == 0 {
		return NoErrors
	}
	return strings.Join(s.Errors, "\n")
}

// Selector decides whether a content type takes part in a run.
type Selector func(contentType string) bool

func SelectAll(string) bool { return true }

// SelectTypes keeps the types in include (all types when include is empty)
// that are not in exclude.
func SelectTypes(include, exclude []string) Selector {
	in := make(map[string]bool, len(include))
	for _, t := range include {
		in[t] = true
	}
	out := make(map[string]bool, len(exclude))
	for _, t := range exclude {
		out[t] = true
	}
	return func(contentType string) bool {
		if out[contentType] {
			return false
		}
		return len(in) == 0 || in[contentType]
	}
}
