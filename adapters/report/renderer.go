// Package report renders an audit report as Markdown tables, and as HTML by
// passing the Markdown through gomarkdown.
package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/gustavo-detarso/atestmed-defender-sub000/app"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

// Format names accepted by Render
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Renderer turns an AuditReport into a human-readable document
type Renderer struct {
	// Title heads the document. Defaults to "Excess impact audit".
	Title string
}

// NewRenderer creates a renderer with the default title
func NewRenderer() *Renderer {
	return &Renderer{Title: "Excess impact audit"}
}

// Render returns the report in the named format and its content type.
func (r *Renderer) Render(rep *app.AuditReport, format string) ([]byte, string, error) {
	switch format {
	case FormatMarkdown:
		return []byte(r.Markdown(rep)), "text/markdown; charset=utf-8", nil
	case FormatHTML:
		return r.HTML(rep), "text/html; charset=utf-8", nil
	default:
		return nil, "", errors.InvalidParameter("unknown report format %q", format)
	}
}

// HTML renders the Markdown document as a standalone HTML page.
func (r *Renderer) HTML(rep *app.AuditReport) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: r.title(),
	})
	return markdown.ToHTML([]byte(r.Markdown(rep)), p, renderer)
}

// Markdown renders the report as a Markdown document.
func (r *Renderer) Markdown(rep *app.AuditReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.title())
	r.writeSummary(&b, rep)
	r.writeEntities(&b, rep)
	r.writeGlobalTests(&b, rep)
	r.writeTornado(&b, rep)
	r.writeCurve(&b, rep)

	if len(rep.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range rep.Warnings {
			fmt.Fprintf(&b, "- `%s`\n", w)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) title() string {
	if r.Title == "" {
		return "Excess impact audit"
	}
	return r.Title
}

func (r *Renderer) writeSummary(b *strings.Builder, rep *app.AuditReport) {
	b.WriteString("## Summary\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	row(b, "Run", string(rep.RunID))
	if rep.Period != "" {
		row(b, "Period", cell(rep.Period))
	}
	row(b, "Created", rep.CreatedAt.Time().UTC().Format("2006-01-02 15:04:05 MST"))
	row(b, "Baseline p_BR", fmt.Sprintf("%.4f", rep.Baseline))
	row(b, "alpha", fmt.Sprintf("%.3g", rep.Params.Alpha))
	row(b, "MIN_N / CUT_N", fmt.Sprintf("%d / %d", rep.Params.MinN, rep.Params.CutN))
	row(b, "Selection", selectionLabel(rep))
	row(b, "Selected entities", joinIDs(rep.Selected))
	row(b, "Total impact", fmt.Sprintf("%d", rep.ImpactTotal))
	row(b, "Selected impact", fmt.Sprintf("%d", rep.ImpactSelected))
	row(b, "Weight w", fmt.Sprintf("%.4f", rep.Weight))
	row(b, "rho (beta-binomial)", fmt.Sprintf("%.4g", rep.Rho))
	b.WriteString("\n")
}

func (r *Renderer) writeEntities(b *strings.Builder, rep *app.AuditReport) {
	if len(rep.Entities) == 0 {
		return
	}
	b.WriteString("## Entities\n\n")
	b.WriteString("| Entity | N | NC | p̂ | Wilson CI | E | IV | p | q | p_bb | q_bb | S* |\n")
	b.WriteString("|---|---:|---:|---:|---|---:|---:|---:|---:|---:|---:|:---:|\n")
	for _, v := range rep.Entities {
		mark := ""
		if v.Selected {
			mark = "✓"
		}
		fmt.Fprintf(b, "| %s | %d | %d | %.3f | [%.3f, %.3f] | %d | %d | %s | %s | %s | %s | %s |\n",
			cell(string(v.EntityID)), v.N, v.NC, v.Binomial.PHat, v.Binomial.WilsonLow, v.Binomial.WilsonHigh,
			v.Excess, v.Impact,
			pval(v.Binomial.PValue), pval(v.Binomial.QValue),
			pval(v.BetaBinomial.PValue), pval(v.BetaBinomial.QValue), mark)
	}
	b.WriteString("\n")
}

func (r *Renderer) writeGlobalTests(b *strings.Builder, rep *app.AuditReport) {
	b.WriteString("## Global tests\n\n")
	b.WriteString("| Test | Estimate | Interval | p | Draws |\n|---|---:|---|---:|---:|\n")

	perm := rep.Permutation
	name := "Permutation"
	if perm.Stratified {
		name = "Permutation (stratified)"
	}
	fmt.Fprintf(b, "| %s | %.4f |  | %s | %d |\n", name, perm.ObservedWeight, pval(perm.PValue), perm.Replicas)

	if rep.CMH != nil {
		fmt.Fprintf(b, "| CMH by %s | OR %s, X² %.3f |  | %s | %d strata |\n",
			cell(rep.StratumKey), oddsRatio(rep.CMH.OddsRatio), rep.CMH.ChiSquare, pval(rep.CMH.PValue), rep.CMH.Strata)
	} else {
		b.WriteString("| CMH | not run |  |  |  |\n")
	}
	interval(b, "Bootstrap", rep.Bootstrap)
	interval(b, "PSA", rep.PSA)
	b.WriteString("\n")
}

func (r *Renderer) writeTornado(b *strings.Builder, rep *app.AuditReport) {
	if len(rep.Tornado.Bars) == 0 {
		return
	}
	b.WriteString("## Sensitivity\n\n")
	fmt.Fprintf(b, "Baseline weight: %.4f\n\n", rep.Tornado.BaselineWeight)
	b.WriteString("| Parameter | Direction | Value | w | Δw |\n|---|---|---:|---:|---:|\n")
	for _, bar := range rep.Tornado.Bars {
		fmt.Fprintf(b, "| %s | %s | %.4g | %.4f | %+.4f |\n", bar.Parameter, bar.Direction, bar.Value, bar.Weight, bar.Delta)
	}
	b.WriteString("\n")
}

func (r *Renderer) writeCurve(b *strings.Builder, rep *app.AuditReport) {
	if len(rep.Curve) == 0 {
		return
	}
	b.WriteString("## Cumulative impact by score\n\n")
	b.WriteString("| Score ≥ | Cumulative IV |\n|---:|---:|\n")
	for _, p := range rep.Curve {
		fmt.Fprintf(b, "| %.4g | %d |\n", p.Score, p.CumImpact)
	}
	b.WriteString("\n")
}

func interval(b *strings.Builder, name string, res stats.IntervalResult) {
	fmt.Fprintf(b, "| %s | %.4f | [%.4f, %.4f] |  | %d |\n", name, res.Median, res.CILow, res.CIHigh, res.Draws)
}

func row(b *strings.Builder, field, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", field, value)
}

func selectionLabel(rep *app.AuditReport) string {
	if rep.Cutoff == nil {
		return rep.SelectionMode
	}
	return fmt.Sprintf("%s (score ≥ %.4g)", rep.SelectionMode, *rep.Cutoff)
}

func joinIDs(ids []core.EntityID) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = cell(string(id))
	}
	return strings.Join(parts, ", ")
}

func pval(p float64) string {
	if p < 1e-4 {
		return fmt.Sprintf("%.2e", p)
	}
	return fmt.Sprintf("%.4f", p)
}

func oddsRatio(or float64) string {
	if math.IsInf(or, 1) {
		return "∞"
	}
	return fmt.Sprintf("%.3f", or)
}

// cell escapes table delimiters in free text
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
