package rrd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultDumpCommand is the binary invoked as `<cmd> dump <file>`
const DefaultDumpCommand = "rrdtool"

// Dumper turns RRD files into parsed archives
type Dumper struct {
	// Command to run (default: rrdtool)
	Command string
}

// Dump runs `rrdtool dump path` and returns its XML output
func (d Dumper) Dump(ctx context.Context, path string) ([]byte, error) {
	command := d.Command
	if command == "" {
		command = DefaultDumpCommand
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, "dump", path)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s dump %s: %w", command, path, err)
		}
		return nil, fmt.Errorf("%s dump %s: %w: %s", command, path, err, msg)
	}
	return out, nil
}

// Load parses path. Files ending in .xml are taken to be dumps already; anything
// else is passed through Dump first.
func (d Dumper) Load(ctx context.Context, path string) (*Archive, error) {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open dump: %w", err)
		}
		defer f.Close()
		return Parse(f)
	}

	out, err := d.Dump(ctx, path)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(out))
}
