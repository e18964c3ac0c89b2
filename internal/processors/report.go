package processors

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/EchoPBX/gbstats/pkg/sdk"
	"go.uber.org/zap"
)

const (
	reportWidth = 60
	timeLayout  = "2006-01-02 15:04:05"
)

// Section is one provider's statistics inside a report.
type Section struct {
	Name       string         `json:"name"`
	Statistics sdk.Statistics `json:"statistics"`
}

type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Sections    []Section `json:"sections"`
}

// ReportGenerator pulls statistics from its providers whenever a report is
// requested or the game ends, and writes the rendered text to out.
type ReportGenerator struct {
	log       *zap.Logger
	out       io.Writer
	now       func() time.Time
	providers []sdk.StatisticsProvider
	generated int
	last      *Report
}

func NewReportGenerator(bus sdk.Bus, log *zap.Logger, out io.Writer, now func() time.Time, providers ...sdk.StatisticsProvider) *ReportGenerator {
	if now == nil {
		now = time.Now
	}
	p := &ReportGenerator{log: log, out: out, now: now, providers: providers}
	bus.Subscribe(sdk.GenerateReport, func(sdk.Event) error {
		return p.emit()
	})
	bus.Subscribe(sdk.GameEnded, func(sdk.Event) error {
		p.log.Info("game ended, generating final report")
		return p.emit()
	})
	return p
}

func (p *ReportGenerator) Name() string { return "report_generator" }

// Add appends a provider to the report. Providers appear in the order added.
func (p *ReportGenerator) Add(sp sdk.StatisticsProvider) {
	p.providers = append(p.providers, sp)
}

func (p *ReportGenerator) emit() error {
	r := p.Generate()
	p.last = &r
	p.generated++
	if _, err := io.WriteString(p.out, Render(r)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Generate collects a report without rendering or counting it.
func (p *ReportGenerator) Generate() Report {
	r := Report{GeneratedAt: p.now(), Sections: make([]Section, 0, len(p.providers))}
	for _, sp := range p.providers {
		r.Sections = append(r.Sections, Section{Name: sp.Name(), Statistics: sp.Statistics()})
	}
	return r
}

// Last returns the most recently emitted report, or nil.
func (p *ReportGenerator) Last() *Report { return p.last }

func (p *ReportGenerator) Statistics() sdk.Statistics {
	return sdk.Statistics{"reports_generated": p.generated}
}

// Render formats a report as a fixed-width console block.
func Render(r Report) string {
	rule := strings.Repeat("=", reportWidth)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", rule)
	b.WriteString("GAMEPLAY STATISTICS REPORT\n")
	fmt.Fprintf(&b, "Generated at: %s\n", r.GeneratedAt.Format(timeLayout))
	fmt.Fprintf(&b, "%s\n", rule)

	for _, s := range r.Sections {
		fmt.Fprintf(&b, "\n[%s]\n", strings.ToUpper(s.Name))
		for _, k := range sortedKeys(s.Statistics) {
			writeValue(&b, "  ", k, s.Statistics[k])
		}
	}

	fmt.Fprintf(&b, "\n%s\n\n", rule)
	return b.String()
}

func writeValue(b *strings.Builder, indent, key string, v any) {
	switch v := v.(type) {
	case map[string]int:
		fmt.Fprintf(b, "%s%s:\n", indent, key)
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "%s  %s: %d\n", indent, k, v[k])
		}
	case sdk.Statistics:
		writeValue(b, indent, key, map[string]any(v))
	case map[string]any:
		fmt.Fprintf(b, "%s%s:\n", indent, key)
		for _, k := range sortedKeys(v) {
			fmt.Fprintf(b, "%s  %s: %s\n", indent, k, formatScalar(v[k]))
		}
	default:
		fmt.Fprintf(b, "%s%s: %s\n", indent, key, formatScalar(v))
	}
}

func formatScalar(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case float64:
		return fmt.Sprintf("%.2f", v)
	case float32:
		return fmt.Sprintf("%.2f", v)
	case time.Time:
		return v.Format(timeLayout)
	default:
		return fmt.Sprint(v)
	}
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
