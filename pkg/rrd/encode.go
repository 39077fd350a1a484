package rrd

import (
	"bufio"
	"encoding/xml"
	"io"
	"strconv"
	"time"
)

// AnnotationLayout is the date part rrdtool writes in front of every row
const AnnotationLayout = "2006-01-02 15:04:05 MST"

// FormatAnnotation renders the date comment for a row stamped ts (UTC)
func FormatAnnotation(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(AnnotationLayout) + " / " + strconv.FormatInt(ts, 10)
}

// AppendRow adds a row and its date annotation to the section
func (r *RRA) AppendRow(ts int64, values ...string) {
	r.Annotations = append(r.Annotations, FormatAnnotation(ts))
	r.Rows = append(r.Rows, Row{Values: values})
}

// Encode writes the archive in the layout of `rrdtool dump`, one commented row per line.
// Values are written verbatim so that Parse returns the same texts.
func Encode(w io.Writer, a *Archive) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}

	e.line(`<?xml version="1.0" encoding="utf-8"?>`)
	e.line(`<!DOCTYPE rrd SYSTEM "http://oss.oetiker.ch/rrdtool/rrdtool.dtd">`)
	e.line(`<!-- Round Robin Database Dump -->`)
	e.line(`<rrd>`)
	e.element("\t", "version", a.Version)
	e.raw("\t<step>" + strconv.FormatInt(a.Step, 10) + "</step> <!-- " + strconv.FormatInt(a.Step, 10) + " seconds -->\n")
	e.raw("\t<lastupdate>" + strconv.FormatInt(a.LastUpdate, 10) + "</lastupdate> <!-- " + time.Unix(a.LastUpdate, 0).UTC().Format(AnnotationLayout) + " -->\n")

	for _, ds := range a.DataSources {
		e.line("")
		e.line("\t<ds>")
		e.element("\t\t", "name", " "+ds.Name+" ")
		e.element("\t\t", "type", " "+ds.Type+" ")
		e.element("\t\t", "minimal_heartbeat", strconv.FormatInt(ds.MinimalHeartbeat, 10))
		e.element("\t\t", "min", ds.Min)
		e.element("\t\t", "max", ds.Max)
		e.line("\t</ds>")
	}

	e.line("")
	e.line("\t<!-- Round Robin Archives -->")
	for _, rra := range a.RRAs {
		e.line("\t<rra>")
		e.element("\t\t", "cf", rra.CF)
		e.element("\t\t", "pdp_per_row", strconv.FormatInt(rra.PdpPerRow, 10))
		e.line("\t\t<database>")

		n := max(len(rra.Annotations), len(rra.Rows))
		for i := 0; i < n; i++ {
			e.raw("\t\t\t")
			if i < len(rra.Annotations) {
				e.raw("<!-- " + rra.Annotations[i] + " --> ")
			}
			if i < len(rra.Rows) {
				e.raw("<row>")
				for _, v := range rra.Rows[i].Values {
					e.raw("<v>")
					e.text(v)
					e.raw("</v>")
				}
				e.raw("</row>")
			}
			e.raw("\n")
		}

		e.line("\t\t</database>")
		e.line("\t</rra>")
	}
	e.line("</rrd>")

	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

// encoder remembers the first write error so Encode can check once
type encoder struct {
	w   *bufio.Writer
	err error
}

func (e *encoder) raw(s string) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.WriteString(s)
}

func (e *encoder) line(s string) {
	e.raw(s + "\n")
}

func (e *encoder) text(s string) {
	if e.err != nil {
		return
	}
	e.err = xml.EscapeText(e.w, []byte(s))
}

func (e *encoder) element(indent, name, value string) {
	e.raw(indent + "<" + name + ">")
	e.text(value)
	e.raw("</" + name + ">\n")
}
