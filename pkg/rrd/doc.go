/*
Package rrd decodes round-robin database dumps as produced by `rrdtool dump`.

# Dump Layout

A dump is an XML document with a single <rrd> root. The parts we care about:

	<rrd>
	    <ds>
	        <name> 42 </name>
	        <type> GAUGE </type>
	    </ds>
	    <rra>
	        <cf>AVERAGE</cf>
	        <database>
	            <!-- 2011-04-28 19:18:40 BST / 1304014720 --> <row><v>5.0000000000e-01</v></row>
	            <!-- 2011-04-28 19:19:40 BST / 1304014780 --> <row><v>NaN</v></row>
	        </database>
	    </rra>
	</rrd>

Rows carry no timestamp of their own. The time of each row only appears in the
comment written in front of it, so Parse keeps comments that sit directly inside
<database> and Points pairs them with the rows by position.

# Munin Archives

Munin writes one data source per RRD file. Points refuses archives that break
this rule and rows that carry more than one value, returning ErrMalformedArchive.
Values that do not parse as numbers ("U" in older dumps) are kept as raw text.

# Usage

	archive, err := rrd.Dumper{}.Load(ctx, "/var/lib/munin/cpu/host1-system-load-g.rrd")
	if err != nil {
	    log.Fatal(err)
	}

	for p, err := range rrd.Points(archive) {
	    if err != nil {
	        log.Fatal(err)
	    }
	    fmt.Println(p.CF, p.Timestamp, p.Value)
	}

The sequence returned by Points is lazy and single pass. Iterating it again walks
the same tree again; it does not resume where a previous loop stopped.
*/
package rrd
