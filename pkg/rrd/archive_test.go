package rrd

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func loadFixture(t *testing.T) *Archive {
	t.Helper()

	f, err := os.Open("testdata/load-g.xml")
	if err != nil {
		t.Fatalf("Failed to open fixture: %v", err)
	}
	defer f.Close()

	archive, err := Parse(f)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return archive
}

func TestParse_Fixture(t *testing.T) {
	archive := loadFixture(t)

	if archive.Version != "0003" {
		t.Errorf("Expected version 0003, got %q", archive.Version)
	}
	if archive.Step != 300 {
		t.Errorf("Expected step 300, got %d", archive.Step)
	}
	if archive.LastUpdate != 1304015100 {
		t.Errorf("Expected lastupdate 1304015100, got %d", archive.LastUpdate)
	}

	// cdp_prep/ds must not be counted as a data source
	if len(archive.DataSources) != 1 {
		t.Fatalf("Expected 1 data source, got %d", len(archive.DataSources))
	}
	ds := archive.DataSources[0]
	if ds.Name != "42" || ds.Type != "GAUGE" || ds.MinimalHeartbeat != 600 {
		t.Errorf("Unexpected data source: %+v", ds)
	}

	if len(archive.RRAs) != 2 {
		t.Fatalf("Expected 2 RRAs, got %d", len(archive.RRAs))
	}

	avg := archive.RRAs[0]
	if avg.CF != "AVERAGE" || avg.PdpPerRow != 1 {
		t.Errorf("Unexpected first RRA header: cf=%s pdp_per_row=%d", avg.CF, avg.PdpPerRow)
	}
	if len(avg.Rows) != 3 || len(avg.Annotations) != 3 {
		t.Fatalf("Expected 3 rows and 3 annotations, got %d and %d", len(avg.Rows), len(avg.Annotations))
	}
	if avg.Annotations[0] != "2011-04-28 19:15:00 BST / 1304014500" {
		t.Errorf("Unexpected annotation: %q", avg.Annotations[0])
	}
	if got := avg.Rows[1].Values; len(got) != 1 || got[0] != "NaN" {
		t.Errorf("Unexpected row values: %v", got)
	}

	maxRRA := archive.RRAs[1]
	if maxRRA.CF != "MAX" || maxRRA.PdpPerRow != 6 {
		t.Errorf("Unexpected second RRA header: cf=%s pdp_per_row=%d", maxRRA.CF, maxRRA.PdpPerRow)
	}
	if len(maxRRA.Rows) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(maxRRA.Rows))
	}
}

func TestParse_IgnoresCommentsOutsideDatabase(t *testing.T) {
	doc := `<rrd>
	<!-- top level -->
	<step>60</step> <!-- 60 seconds -->
	<ds><name>x</name></ds>
	<rra>
		<cf>LAST</cf> <!-- not a date -->
		<database>
			<!-- 2020-01-01 00:00:00 UTC / 1577836800 --> <row><v>1</v></row>
		</database>
	</rra>
</rrd>`

	archive, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	rra := archive.RRAs[0]
	if len(rra.Annotations) != 1 {
		t.Fatalf("Expected 1 annotation, got %d: %v", len(rra.Annotations), rra.Annotations)
	}
	if rra.Annotations[0] != "2020-01-01 00:00:00 UTC / 1577836800" {
		t.Errorf("Unexpected annotation: %q", rra.Annotations[0])
	}
}

func TestParse_KeepsRawValueText(t *testing.T) {
	doc := `<rrd><ds><name>x</name></ds><rra><cf>AVERAGE</cf><database>
	<!-- d / 1 --><row><v> 1.5 </v></row>
	</database></rra></rrd>`

	archive, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := archive.RRAs[0].Rows[0].Values[0]; got != " 1.5 " {
		t.Errorf("Expected raw value %q, got %q", " 1.5 ", got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		malformed bool
	}{
		{name: "empty input", doc: "", malformed: true},
		{name: "wrong root", doc: "<dump><ds/></dump>", malformed: true},
		{name: "bad step", doc: "<rrd><step>five</step></rrd>", malformed: true},
		{name: "bad pdp_per_row", doc: "<rrd><rra><pdp_per_row>x</pdp_per_row></rra></rrd>", malformed: true},
		{name: "broken xml", doc: "<rrd><ds>", malformed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if errors.Is(err, ErrMalformedArchive) != tt.malformed {
				t.Errorf("errors.Is(err, ErrMalformedArchive) = %v, want %v (err: %v)",
					errors.Is(err, ErrMalformedArchive), tt.malformed, err)
			}
		})
	}
}
