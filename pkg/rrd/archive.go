package rrd

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformedArchive is returned when a dump breaks the structure Munin archives rely on
var ErrMalformedArchive = errors.New("malformed archive")

// Archive is the decoded tree of one `rrdtool dump` document
type Archive struct {
	Version     string
	Step        int64
	LastUpdate  int64
	DataSources []DataSource
	RRAs        []RRA
}

// DataSource is a <ds> definition at the root of the dump
type DataSource struct {
	Name             string
	Type             string
	MinimalHeartbeat int64
	Min              string
	Max              string
}

// RRA is one round robin archive section
type RRA struct {
	// Consolidation function: AVERAGE, MIN, MAX, LAST
	CF        string
	PdpPerRow int64

	// Comments found directly inside <database>, trimmed, in document order
	Annotations []string

	Rows []Row
}

// Row holds the raw <v> texts of one database row, one per data source
type Row struct {
	Values []string
}

// Parse decodes a dump. Comments are kept, unlike encoding/xml.Unmarshal which drops them.
func Parse(r io.Reader) (*Archive, error) {
	dec := xml.NewDecoder(r)
	p := &parser{archive: &Archive{}}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode dump: %w", err)
		}
		if err := p.handle(tok); err != nil {
			return nil, err
		}
	}

	if !p.sawRoot {
		return nil, fmt.Errorf("%w: no <rrd> root element", ErrMalformedArchive)
	}
	return p.archive, nil
}

// parser tracks the element path while walking the token stream
type parser struct {
	archive *Archive
	path    []string
	text    strings.Builder
	sawRoot bool
}

func (p *parser) handle(tok xml.Token) error {
	switch t := tok.(type) {
	case xml.StartElement:
		p.path = append(p.path, t.Name.Local)
		p.text.Reset()
		p.open(p.current())
	case xml.CharData:
		p.text.Write(t)
	case xml.Comment:
		if p.current() == "rrd/rra/database" {
			rra := p.lastRRA()
			rra.Annotations = append(rra.Annotations, strings.TrimSpace(string(t)))
		}
	case xml.EndElement:
		if err := p.close(p.current(), p.text.String()); err != nil {
			return err
		}
		p.path = p.path[:len(p.path)-1]
		p.text.Reset()
	}
	return nil
}

func (p *parser) current() string {
	return strings.Join(p.path, "/")
}

func (p *parser) lastRRA() *RRA {
	return &p.archive.RRAs[len(p.archive.RRAs)-1]
}

func (p *parser) lastDS() *DataSource {
	return &p.archive.DataSources[len(p.archive.DataSources)-1]
}

func (p *parser) open(path string) {
	switch path {
	case "rrd":
		p.sawRoot = true
	case "rrd/ds":
		p.archive.DataSources = append(p.archive.DataSources, DataSource{})
	case "rrd/rra":
		p.archive.RRAs = append(p.archive.RRAs, RRA{})
	case "rrd/rra/database/row":
		rra := p.lastRRA()
		rra.Rows = append(rra.Rows, Row{})
	}
}

func (p *parser) close(path, raw string) error {
	text := strings.TrimSpace(raw)

	switch path {
	case "rrd/version":
		p.archive.Version = text
	case "rrd/step":
		return parseInt(&p.archive.Step, "step", text)
	case "rrd/lastupdate":
		return parseInt(&p.archive.LastUpdate, "lastupdate", text)
	case "rrd/ds/name":
		p.lastDS().Name = text
	case "rrd/ds/type":
		p.lastDS().Type = text
	case "rrd/ds/minimal_heartbeat":
		return parseInt(&p.lastDS().MinimalHeartbeat, "minimal_heartbeat", text)
	case "rrd/ds/min":
		p.lastDS().Min = text
	case "rrd/ds/max":
		p.lastDS().Max = text
	case "rrd/rra/cf":
		p.lastRRA().CF = text
	case "rrd/rra/pdp_per_row":
		return parseInt(&p.lastRRA().PdpPerRow, "pdp_per_row", text)
	case "rrd/rra/database/row/v":
		rows := p.lastRRA().Rows
		row := &rows[len(rows)-1]
		row.Values = append(row.Values, raw)
	}
	return nil
}

func parseInt(dst *int64, field, text string) error {
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid <%s> %q", ErrMalformedArchive, field, text)
	}
	*dst = v
	return nil
}
