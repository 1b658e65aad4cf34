// Command routeplot renders a route file, and optionally the driven trace of
// a journalled pilot run, to PNG.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/avc/internal/monitoring"
	"github.com/banshee-data/avc/internal/nav"
	"github.com/banshee-data/avc/internal/telemetry"
	"github.com/banshee-data/avc/internal/version"
)

var (
	routePath   = flag.String("route", "", "route file to plot (required)")
	journalPath = flag.String("journal", "", "pilot journal to overlay")
	runID       = flag.String("run", "", "journal run id (default: latest run)")
	outPath     = flag.String("out", "route.png", "output PNG path")
	showVersion = flag.Bool("version", false, "print version and exit")
)

type options struct {
	route   string
	journal string
	run     string
	out     string
}

// loadEntries returns the entries of run id, or of the latest run when id is
// empty.
func loadEntries(path, id string) (string, []telemetry.Entry, error) {
	j, err := telemetry.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer j.Close()

	if id == "" {
		runs, err := j.Runs()
		if err != nil {
			return "", nil, err
		}
		if len(runs) == 0 {
			return "", nil, fmt.Errorf("journal %s has no runs", path)
		}
		id = runs[len(runs)-1].ID
	}
	entries, err := j.Entries(id)
	if err != nil {
		return "", nil, err
	}
	return id, entries, nil
}

// steerPath derives the steer plot path from the map path: out.png becomes
// out_steer.png.
func steerPath(out string) string {
	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + "_steer" + ext
}

func render(opts options) ([]string, error) {
	route, err := nav.LoadRoute(opts.route)
	if err != nil {
		return nil, err
	}

	var (
		id      string
		entries []telemetry.Entry
	)
	if opts.journal != "" {
		id, entries, err = loadEntries(opts.journal, opts.run)
		if err != nil {
			return nil, err
		}
	}

	title := filepath.Base(opts.route)
	if id != "" {
		title += " / run " + id
	}
	p, err := mapPlot(title, route, entries)
	if err != nil {
		return nil, err
	}
	if err := save(p, opts.out); err != nil {
		return nil, err
	}
	written := []string{opts.out}

	if len(entries) > 0 {
		sp, err := steerPlot("Steer / run "+id, entries)
		if err != nil {
			return written, err
		}
		path := steerPath(opts.out)
		if err := save(sp, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("routeplot"))
		return
	}
	monitoring.SetProcessName("routeplot")

	if *routePath == "" {
		monitoring.Badf("-route is required")
		flag.Usage()
		os.Exit(2)
	}

	written, err := render(options{route: *routePath, journal: *journalPath, run: *runID, out: *outPath})
	if err != nil {
		monitoring.Badf("%v", err)
		os.Exit(1)
	}
	for _, path := range written {
		monitoring.Goodf("wrote %s", path)
	}
}
