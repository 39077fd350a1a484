package munin

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    FileIdentity
		wantErr bool
	}{
		{
			name: "gauge",
			path: "cpu/host1-system-load-g.rrd",
			want: FileIdentity{Group: "cpu", Node: "host1", Service: "system", Field: "load", DSType: Gauge},
		},
		{
			name: "absolute path",
			path: "/var/lib/munin/example.com/web1.example.com-if_eth0-down-d.rrd",
			want: FileIdentity{Group: "example.com", Node: "web1.example.com", Service: "if_eth0", Field: "down", DSType: Derive},
		},
		{
			name: "counter without directory",
			path: "node-net-bytes-c.rrd",
			want: FileIdentity{Node: "node", Service: "net", Field: "bytes", DSType: Counter},
		},
		{
			name: "absolute type",
			path: "g/n-s-f-a.rrd",
			want: FileIdentity{Group: "g", Node: "n", Service: "s", Field: "f", DSType: Absolute},
		},
		{
			name:    "three tokens",
			path:    "cpu/host1-system-g.rrd",
			wantErr: true,
		},
		{
			name:    "five tokens",
			path:    "cpu/host1-system-load-extra-g.rrd",
			wantErr: true,
		},
		{
			name:    "unknown type code",
			path:    "cpu/host1-system-load-x.rrd",
			wantErr: true,
		},
		{
			name:    "empty",
			path:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilename(filepath.FromSlash(tt.path))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFilename(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidFileIdentity) {
					t.Errorf("Expected ErrInvalidFileIdentity, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseFilename(%q) = %+v, want %+v", tt.path, got, tt.want)
			}
		})
	}
}

func TestFileIdentity_Measurement(t *testing.T) {
	id := FileIdentity{Group: "cpu", Node: "host1", Service: "system", Field: "load", DSType: Gauge}
	if got := id.Measurement(); got != "cpu.host1.system.load" {
		t.Errorf("Measurement() = %q, want cpu.host1.system.load", got)
	}
}

func TestFileIdentity_Filename(t *testing.T) {
	id := FileIdentity{Group: "cpu", Node: "host1", Service: "system", Field: "load", DSType: Gauge}

	name := id.Filename(".rrd")
	if name != filepath.Join("cpu", "host1-system-load-g.rrd") {
		t.Errorf("Filename() = %q", name)
	}

	back, err := ParseFilename(name)
	if err != nil {
		t.Fatalf("ParseFilename(Filename()) failed: %v", err)
	}
	if back != id {
		t.Errorf("Round trip = %+v, want %+v", back, id)
	}
}

func TestDSType_Codes(t *testing.T) {
	for _, code := range []string{"a", "c", "d", "g"} {
		typ, err := ParseDSType(code)
		if err != nil {
			t.Fatalf("ParseDSType(%q) failed: %v", code, err)
		}
		if typ.Code() != code {
			t.Errorf("%s.Code() = %q, want %q", typ, typ.Code(), code)
		}
	}

	if DSType("histogram").Code() != "" {
		t.Error("Expected empty code for unknown type")
	}
}
