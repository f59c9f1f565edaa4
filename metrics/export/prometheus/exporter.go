package prometheus

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/idpcore"
	"github.com/MrEthical07/idpcore/metrics/export/internaldefs"
)

const auditDroppedName = "idpcore_audit_dropped_total"

// Source is what the exporter reads. *idpcore.Engine satisfies it.
type Source interface {
	MetricsSnapshot() idpcore.MetricsSnapshot
	AuditDropped() uint64
}

type Exporter struct {
	source  Source
	onError func(error)
}

var _ io.WriterTo = (*Exporter)(nil)

func NewPrometheusExporter(engine *idpcore.Engine) *Exporter {
	return &Exporter{source: engine}
}

func NewPrometheusExporterFromSource(source Source) *Exporter {
	return &Exporter{source: source}
}

// WithErrorHandler sets a callback for failures writing a scrape response,
// typically a scraper that hung up. The default discards them.
func (p *Exporter) WithErrorHandler(fn func(error)) *Exporter {
	p.onError = fn
	return p
}

func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		if _, err := p.WriteTo(&buf); err != nil {
			p.reportError(err)
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		if _, err := buf.WriteTo(w); err != nil {
			p.reportError(err)
		}
	})
}

func (p *Exporter) reportError(err error) {
	if p.onError != nil {
		p.onError(err)
	}
}

// Render returns the exposition text, or "" when metrics are disabled and
// nothing was dropped.
func (p *Exporter) Render() string {
	var b strings.Builder
	if _, err := p.WriteTo(&b); err != nil {
		return ""
	}
	return b.String()
}

// WriteTo implements io.WriterTo.
func (p *Exporter) WriteTo(w io.Writer) (int64, error) {
	if p == nil || p.source == nil {
		return 0, nil
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return 0, nil
	}

	cw := &countingWriter{w: w}
	bw := bufio.NewWriterSize(cw, 8192)
	for _, def := range internaldefs.CounterDefs {
		writeCounter(bw, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		writeHistogram(bw, def.Name, def.Help, cumulative)
	}
	writeCounter(bw, auditDroppedName, "Audit events dropped under dispatcher backpressure.", dropped)
	err := bw.Flush()
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}

func writeHeader(w *bufio.Writer, name, help, kind string) {
	w.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func writeCounter(w *bufio.Writer, name, help string, value uint64) {
	writeHeader(w, name, help, "counter")
	w.WriteString(name + " " + strconv.FormatUint(value, 10) + "\n")
}

// writeHistogram emits cumulative buckets. Snapshots carry no sum, so _sum
// is always 0.
func writeHistogram(w *bufio.Writer, name, help string, cumulative [idpcore.LatencyBucketCount]uint64) {
	writeHeader(w, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.WriteString(name + `_bucket{le="` + le + `"} ` + strconv.FormatUint(cumulative[i], 10) + "\n")
	}
	w.WriteString(name + "_count " + strconv.FormatUint(cumulative[len(cumulative)-1], 10) + "\n")
	w.WriteString(name + "_sum 0\n")
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
