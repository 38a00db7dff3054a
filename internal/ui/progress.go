// Package ui renders compile progress in the terminal.
package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"nubridge/internal/buildpipeline"
)

// rowState is the display state of one source file.
type rowState uint8

const (
	rowQueued rowState = iota
	rowRunning
	rowCompiled
	rowFailed
)

type row struct {
	path    string
	name    string
	state   rowState
	stage   buildpipeline.Stage
	elapsed time.Duration
	note    string // last error or warning
}

// stageWeight is the share of a file's work finished once stage starts.
var stageWeight = map[buildpipeline.Stage]float64{
	buildpipeline.StageTranslate: 0.1,
	buildpipeline.StageFormat:    0.4,
	buildpipeline.StageCheck:     0.6,
	buildpipeline.StageBuild:     0.8,
}

var stageVerb = map[buildpipeline.Stage]string{
	buildpipeline.StageTranslate: "translating",
	buildpipeline.StageFormat:    "formatting",
	buildpipeline.StageCheck:     "checking",
	buildpipeline.StageBuild:     "building",
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	queuedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	noteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

type compileView struct {
	title   string
	events  <-chan buildpipeline.Event
	spinner spinner.Model
	bar     progress.Model
	rows    []row
	byPath  map[string]int
	width   int
	closed  bool
}

type pipelineEvent buildpipeline.Event
type pipelineClosed struct{}

// NewProgressModel returns a Bubble Tea model that follows compile events
// for files until events is closed.
func NewProgressModel(title string, files []string, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(runningStyle))
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 60

	base := commonDir(files)
	v := &compileView{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     bar,
		rows:    make([]row, len(files)),
		byPath:  make(map[string]int, len(files)),
		width:   80,
	}
	for i, f := range files {
		name := f
		if rel, err := filepath.Rel(base, f); err == nil && base != "" {
			name = filepath.ToSlash(rel)
		}
		v.rows[i] = row{path: f, name: name, stage: buildpipeline.StageQueued}
		v.byPath[f] = i
	}
	return v
}

func (v *compileView) Init() tea.Cmd {
	return tea.Batch(v.spinner.Tick, v.next())
}

func (v *compileView) next() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-v.events
		if !ok {
			return pipelineClosed{}
		}
		return pipelineEvent(ev)
	}
}

func (v *compileView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pipelineEvent:
		return v, tea.Batch(v.apply(buildpipeline.Event(msg)), v.next())
	case pipelineClosed:
		v.closed = true
		return v, tea.Quit
	case spinner.TickMsg:
		if v.closed {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd
	case progress.FrameMsg:
		m, cmd := v.bar.Update(msg)
		v.bar = m.(progress.Model)
		return v, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			v.width = msg.Width
			v.bar.Width = max(msg.Width-24, 10)
		}
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return v, tea.Quit
		}
	}
	return v, nil
}

// apply folds one event into its row. A compile ends with an error at any
// stage or with the check stage done or skipped.
func (v *compileView) apply(ev buildpipeline.Event) tea.Cmd {
	i, ok := v.byPath[ev.File]
	if !ok {
		return nil
	}
	r := &v.rows[i]
	if r.state == rowFailed || r.state == rowCompiled {
		return nil
	}
	r.stage, r.elapsed = ev.Stage, ev.Elapsed
	if ev.Err != nil {
		r.note = ev.Err.Error()
	}
	switch ev.Status {
	case buildpipeline.StatusError:
		r.state = rowFailed
	case buildpipeline.StatusWorking:
		r.state = rowRunning
	case buildpipeline.StatusDone, buildpipeline.StatusSkipped:
		if ev.Stage == buildpipeline.StageCheck || ev.Stage == buildpipeline.StageBuild {
			r.state = rowCompiled
		}
	}
	return v.bar.SetPercent(v.fraction())
}

func (v *compileView) fraction() float64 {
	if len(v.rows) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range v.rows {
		switch r.state {
		case rowCompiled, rowFailed:
			sum++
		case rowRunning:
			sum += stageWeight[r.stage]
		}
	}
	return sum / float64(len(v.rows))
}

func (v *compileView) counts() (compiled, failed int) {
	for _, r := range v.rows {
		switch r.state {
		case rowCompiled:
			compiled++
		case rowFailed:
			failed++
		}
	}
	return compiled, failed
}

func (v *compileView) View() string {
	if len(v.rows) == 0 {
		return ""
	}
	var b strings.Builder
	lead := v.spinner.View()
	if v.closed {
		lead = okStyle.Render("✓")
	}
	fmt.Fprintf(&b, "%s %s\n\n", lead, titleStyle.Render(v.title))

	nameWidth := max(v.width-28, 20)
	for _, r := range v.rows {
		b.WriteString("  ")
		b.WriteString(v.renderRow(r, nameWidth))
		b.WriteByte('\n')
		if r.note != "" {
			style := noteStyle
			if r.state == rowFailed {
				style = failStyle
			}
			b.WriteString("      ")
			b.WriteString(style.Render(clip(firstLine(r.note), nameWidth)))
			b.WriteByte('\n')
		}
	}

	compiled, failed := v.counts()
	bar := v.bar.View()
	if v.closed {
		bar = v.bar.ViewAs(1)
	}
	fmt.Fprintf(&b, "\n%s  %d/%d", bar, compiled+failed, len(v.rows))
	if failed > 0 {
		b.WriteString(failStyle.Render(fmt.Sprintf("  %d failed", failed)))
	}
	b.WriteByte('\n')
	return b.String()
}

func (v *compileView) renderRow(r row, nameWidth int) string {
	name := runewidth.FillRight(clip(r.name, nameWidth), nameWidth)
	switch r.state {
	case rowRunning:
		return runningStyle.Render("•") + " " + name + " " + runningStyle.Render(stageVerb[r.stage])
	case rowCompiled:
		return okStyle.Render("✓") + " " + name + " " + queuedStyle.Render(r.elapsed.Round(time.Millisecond).String())
	case rowFailed:
		return failStyle.Render("✗") + " " + name + " " + failStyle.Render(string(r.stage)+" failed")
	default:
		return queuedStyle.Render("·") + " " + name + " " + queuedStyle.Render("queued")
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// clip shortens s to width display cells, keeping the tail, which holds the
// file name.
func clip(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	rs := []rune(s)
	for i := range rs {
		if tail := string(rs[i:]); runewidth.StringWidth(tail) <= width-3 {
			return "..." + tail
		}
	}
	return "..."
}

// commonDir returns the deepest directory containing every file.
func commonDir(files []string) string {
	if len(files) == 0 {
		return ""
	}
	dir := filepath.Dir(files[0])
	for _, f := range files[1:] {
		for dir != filepath.Dir(dir) && !strings.HasPrefix(f, dir+string(filepath.Separator)) {
			dir = filepath.Dir(dir)
		}
	}
	return dir
}
