// CSI Reader - Utility to display the contents of recorded CSI tables
// This program summarises a table written by esp-csi-recorder and can print the
// amplitude series of one subcarrier, statistics, or an ASCII heatmap.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"esp-csi-recorder/internal/csi"
	"esp-csi-recorder/internal/heatmap"
	"esp-csi-recorder/internal/table"
	"esp-csi-recorder/internal/version"
)

const appName = "csi-reader"

var (
	showVersion bool
	showSeries  bool
	showStats   bool
	showHeatmap bool
	useColor    bool
	subcarrier  int
	maxRows     int
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "csi-reader [file.csv]",
	Short: "Display contents of recorded CSI tables",
	Long: `CSI Reader displays a summary of a table recorded by esp-csi-recorder.

Display modes:
  --series     Print (seconds, amplitude) for one subcarrier
  --stats      Show amplitude and signal strength statistics
  --heatmap    Render the normalised amplitude heatmap as text`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.Get().Banner(appName))
			return
		}

		if len(args) == 0 {
			fmt.Fprintf(os.Stderr, "Error: filename required\n")
			cmd.Usage()
			os.Exit(1)
		}

		if err := displayFile(os.Stdout, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().BoolVarP(&showSeries, "series", "s", false, "print the amplitude series of --subcarrier")
	rootCmd.Flags().BoolVar(&showStats, "stats", false, "show statistics")
	rootCmd.Flags().BoolVar(&showHeatmap, "heatmap", false, "render the amplitude heatmap")
	rootCmd.Flags().BoolVar(&useColor, "color", false, "render the heatmap with 24-bit terminal colours")
	rootCmd.Flags().IntVarP(&subcarrier, "subcarrier", "k", 20, "subcarrier for --series and --stats")
	rootCmd.Flags().IntVar(&maxRows, "rows", 0, "limit --series and --heatmap to the last N rows (0 for all)")
}

// displayFile loads a table and prints the requested views
func displayFile(w io.Writer, filename string) error {
	info, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", filename, err)
	}

	t, err := table.Load(filename)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "CSI TABLE READER %s\n\n", version.Get().Short())
	fmt.Fprintf(w, "Name: %s\n", filepath.Base(filename))
	fmt.Fprintf(w, "Size: %s (%s bytes)\n", humanize.Bytes(uint64(info.Size())), humanize.Comma(info.Size()))
	fmt.Fprintf(w, "Modified: %s (%s)\n\n", info.ModTime().Format("2006-01-02 15:04:05"), humanize.Time(info.ModTime()))
	writeSummary(w, t)

	if showStats {
		if err := writeStats(w, t, subcarrier); err != nil {
			return err
		}
	}
	if showSeries {
		if err := writeSeries(w, t, subcarrier, maxRows); err != nil {
			return err
		}
	}
	if showHeatmap {
		writeHeatmap(w, t, maxRows, useColor)
	}
	return nil
}

func writeSummary(w io.Writer, t *table.Table) {
	fmt.Fprintf(w, "Rows: %s\n", humanize.Comma(int64(len(t.Frames))))
	fmt.Fprintf(w, "Subcarriers: %d\n", t.Subcarriers)
	if t.Skipped > 0 {
		fmt.Fprintf(w, "Skipped rows: %s\n", humanize.Comma(int64(t.Skipped)))
	}
	if len(t.Frames) == 0 {
		return
	}

	first, last := t.Frames[0], t.Frames[len(t.Frames)-1]
	span := csi.ElapsedSeconds(first.DeviceTimestamp, last)
	fmt.Fprintf(w, "Device time: %d .. %d us\n", first.DeviceTimestamp, last.DeviceTimestamp)
	fmt.Fprintf(w, "Span: %.3f s\n", span)
	if span > 0 && len(t.Frames) > 1 {
		fmt.Fprintf(w, "Frame rate: %.1f Hz\n", float64(len(t.Frames)-1)/span)
	}
}

func checkSubcarrier(t *table.Table, k int) error {
	if k < 0 || k >= t.Subcarriers {
		return fmt.Errorf("subcarrier %d out of range (table has %d)", k, t.Subcarriers)
	}
	return nil
}

func writeStats(w io.Writer, t *table.Table, k int) error {
	if err := checkSubcarrier(t, k); err != nil {
		return err
	}
	series := t.AmplitudeSeries(k)
	if len(series) == 0 {
		return nil
	}
	amps := make([]float64, len(series))
	for i, s := range series {
		amps[i] = s.Amplitude
	}
	rssi := make([]float64, len(t.Frames))
	for i, f := range t.Frames {
		rssi[i] = float64(f.SignalStrength)
	}

	fmt.Fprintf(w, "\nStatistics:\n")
	mean, std := stat.MeanStdDev(amps, nil)
	fmt.Fprintf(w, "Subcarrier %d amplitude: mean %.3f, std %.3f, min %.3f, max %.3f\n",
		k, mean, std, floats.Min(amps), floats.Max(amps))
	mean, std = stat.MeanStdDev(rssi, nil)
	fmt.Fprintf(w, "Signal strength: mean %.1f, std %.1f, min %.0f, max %.0f dBm\n",
		mean, std, floats.Min(rssi), floats.Max(rssi))
	return nil
}

func writeSeries(w io.Writer, t *table.Table, k, limit int) error {
	if err := checkSubcarrier(t, k); err != nil {
		return err
	}
	series := t.AmplitudeSeries(k)
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}

	fmt.Fprintf(w, "\nAmplitude series (subcarrier %d):\n", k)
	fmt.Fprintf(w, "%10s %12s\n", "seconds", "amplitude")
	for _, s := range series {
		fmt.Fprintf(w, "%10.6f %12.3f\n", s.Elapsed, s.Amplitude)
	}
	return nil
}

func writeHeatmap(w io.Writer, t *table.Table, limit int, color bool) {
	// Scale against the visible rows only
	rows := t.RawRows()
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	grid := heatmap.Normalize(rows, t.Subcarriers)

	fmt.Fprintf(w, "\nHeatmap (%d rows x %d subcarriers, oldest first):\n", grid.Rows(), grid.Cols())
	var b strings.Builder
	for _, row := range grid {
		b.Reset()
		for _, v := range row {
			if color {
				c := heatmap.Color(v)
				fmt.Fprintf(&b, "\033[48;2;%d;%d;%dm \033[0m", c.R, c.G, c.B)
			} else {
				b.WriteByte(heatmap.Shade(v))
			}
		}
		fmt.Fprintf(w, "|%s|\n", b.String())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
