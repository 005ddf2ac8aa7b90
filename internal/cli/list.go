package cli

import (
	"context"
	"fmt"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/ui"
	"github.com/Makepad-fr/tada/internal/view"
)

func (r *runner) doList(ctx context.Context, args []string) int {
	fs := r.newFlagSet("ls")
	filterRaw := fs.String("filter", "all", "all|completed|uncompleted")
	sortRaw := fs.String("sort", "default", "default|asc|desc")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	f, err := view.ParseFilter(*filterRaw)
	if err != nil {
		r.p.Fail("ls: " + err.Error())
		return 2
	}
	srt, err := view.ParseSort(*sortRaw)
	if err != nil {
		r.p.Fail("ls: " + err.Error())
		return 2
	}

	s, code := r.open(ctx)
	if code != 0 {
		return code
	}
	defer s.close(ctx)

	all := s.listed()
	refs := make(map[string]int, len(all))
	for i, it := range all {
		refs[it.ID] = i + 1
	}
	shown := s.store.View(view.Query{Owner: s.actor, Filter: f, Sort: srt})

	// Header + progress
	t := r.p.Theme
	d, p := stats(all)
	header := fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		r.p.C(t.Title, "Todos"),
		r.p.C(t.Success, t.SymDone), d,
		r.p.C(t.Pending, t.SymUnchecked), p,
		r.p.C(t.Accent, "Total"), len(all),
	)

	var lines []string
	lines = append(lines, header)
	lines = append(lines, r.p.C(t.Muted, ui.ProgressBar(d, d+p, 28)))
	if f != view.All || srt != view.Default {
		lines = append(lines, r.p.C(t.Muted, fmt.Sprintf("filter: %s  sort: %s", f, srt)))
	}
	lines = append(lines, "")

	if r.Config.Group {
		lines = append(lines, r.groupLines(shown, refs)...)
	} else {
		lines = append(lines, r.flatLines(shown, refs)...)
	}
	lines = append(lines, "")
	lines = append(lines, r.p.C(t.Muted, "Tip: add with `todo add \"Buy milk\"`"))
	r.p.Panel(lines)
	return 0
}

// -------------- rendering helpers --------------

func stats(items []model.Todo) (done, pending int) {
	for _, it := range items {
		if it.Completed {
			done++
		} else {
			pending++
		}
	}
	return
}

func (r *runner) flatLines(items []model.Todo, refs map[string]int) []string {
	t := r.p.Theme
	if len(items) == 0 {
		return []string{r.p.C(t.Muted, "no todos")}
	}
	now := r.Now()
	out := make([]string, 0, len(items))
	for _, it := range items {
		idx := fmt.Sprintf("%2d.", refs[it.ID])
		box, color := t.BoxUnchecked, t.Muted
		if it.Completed {
			box, color = t.BoxChecked, t.Success
		}
		line := fmt.Sprintf("%s %s %s", r.p.Dim(idx), r.p.C(color, box), ui.Truncate(it.Title, 80))
		if due := r.p.Due(it, now); due != "" {
			line += "  " + due
		}
		out = append(out, line)
	}
	return out
}

func (r *runner) groupLines(items []model.Todo, refs map[string]int) []string {
	t := r.p.Theme
	var pend, done []model.Todo
	for _, it := range items {
		if it.Completed {
			done = append(done, it)
		} else {
			pend = append(pend, it)
		}
	}
	var lines []string
	lines = append(lines, r.p.C(t.Accent, "Pending"))
	if len(pend) == 0 {
		lines = append(lines, r.p.C(t.Muted, "(none)"))
	} else {
		lines = append(lines, r.flatLines(pend, refs)...)
	}
	lines = append(lines, "")
	lines = append(lines, r.p.C(t.Accent, "Done"))
	if len(done) == 0 {
		lines = append(lines, r.p.C(t.Muted, "(none)"))
	} else {
		lines = append(lines, r.flatLines(done, refs)...)
	}
	return lines
}
