// motion-sweep - replay a directory of stills through the motion detector.
// Prints each frame's score and whether it would have triggered recognition,
// for tuning the blur, pixel and motion thresholds against recorded scenes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/teslashibe/go-lpr/internal/log"
	"github.com/teslashibe/go-lpr/pkg/capture"
	"github.com/teslashibe/go-lpr/pkg/motion"
	"github.com/teslashibe/go-lpr/pkg/policy"
)

type row struct {
	Frame     string `json:"frame"`
	Score     int    `json:"score"`
	Triggered bool   `json:"triggered"`
	Error     string `json:"error,omitempty"`
}

func main() {
	mcfg := motion.DefaultConfig()
	pol := policy.Default()

	dir := flag.String("dir", ".", "Directory of .jpg stills, replayed in name order")
	flag.IntVar(&mcfg.BlurKernel, "blur", mcfg.BlurKernel, "Gaussian blur kernel size (odd)")
	flag.Float64Var(&mcfg.Alpha, "alpha", mcfg.Alpha, "Background accumulation weight")
	flag.Float64Var(&mcfg.PixelThreshold, "pixel-threshold", mcfg.PixelThreshold, "Per-pixel difference threshold")
	flag.IntVar(&pol.MotionThreshold, "threshold", pol.MotionThreshold, "Changed pixels needed to trigger")
	asJSON := flag.Bool("json", false, "Print one JSON object per frame")
	flag.Parse()

	log.Init("warn")

	frames, err := stills(*dir)
	if err != nil {
		log.Error("cannot list frames", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(frames) == 0 {
		log.Error("no .jpg frames found", "dir", *dir)
		os.Exit(1)
	}

	detector, err := motion.New(mcfg)
	if err != nil {
		log.Error("invalid motion config", "error", err)
		os.Exit(2)
	}
	defer detector.Close()

	rows := sweep(detector, pol, frames)

	report := writeTable
	if *asJSON {
		report = writeJSON
	}
	if err := report(os.Stdout, rows, pol.MotionThreshold); err != nil {
		log.Error("cannot write report", "error", err)
		os.Exit(1)
	}
}

// writeJSON prints one object per frame.
func writeJSON(w io.Writer, rows []row, _ int) error {
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// writeTable prints a frame table followed by a trigger summary.
func writeTable(w io.Writer, rows []row, threshold int) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Frame", "Score", "Trigger"})
	table.SetBorder(false)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	triggered := 0
	for _, r := range rows {
		mark := ""
		if r.Triggered {
			mark = "yes"
			triggered++
		}
		if r.Error != "" {
			mark = "error: " + r.Error
		}
		table.Append([]string{r.Frame, strconv.Itoa(r.Score), mark})
	}
	table.Render()

	_, err := fmt.Fprintf(w, "\n%d frames, %d would trigger (threshold %d)\n", len(rows), triggered, threshold)
	return err
}

// stills returns the .jpg files in dir sorted by name.
func stills(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if e.IsDir() || !(strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg")) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// sweep scores frames in order. Unreadable frames are reported and skipped
// without touching the background.
func sweep(d *motion.Detector, pol policy.Policy, frames []string) []row {
	rows := make([]row, 0, len(frames))
	for _, path := range frames {
		r := row{Frame: filepath.Base(path)}
		frame, err := capture.Load(path)
		if err != nil {
			r.Error = err.Error()
			rows = append(rows, r)
			continue
		}
		r.Score = d.Score(frame.Mat)
		r.Triggered = pol.Triggered(r.Score)
		frame.Close()
		rows = append(rows, r)
	}
	return rows
}
