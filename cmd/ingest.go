package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kozaktomas/evoface/internal/attendance"
	"github.com/kozaktomas/evoface/internal/biometric"
	"github.com/kozaktomas/evoface/internal/constants"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Replay detections from a JSON-lines file",
	Long: `Processes detections exported by capture devices, one JSON object per
line, in file order:

  {"timestamp":"2026-03-02T08:01:00Z","embedding":[...],"face_area_ratio":0.12,"liveness_score":0.98}

Use "-" to read from stdin. Invalid lines are counted and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().Bool("json", false, "Output summary as JSON")
}

// ingestLine is one exported detection.
type ingestLine struct {
	Timestamp     time.Time `json:"timestamp"`
	Embedding     []float32 `json:"embedding"`
	FaceAreaRatio float64   `json:"face_area_ratio"`
	LivenessScore float64   `json:"liveness_score"`
}

// IngestSummary counts what happened to the replayed detections.
type IngestSummary struct {
	Lines      int `json:"lines"`
	Invalid    int `json:"invalid"`
	Rejected   int `json:"rejected"`
	Suppressed int `json:"suppressed"`
	Punches    int `json:"punches"`
	Unmatched  int `json:"unmatched"`
	Evolved    int `json:"evolved"`
}

func (s *IngestSummary) add(res attendance.Result) {
	switch {
	case !res.Outcome.Accepted():
		s.Rejected++
	case res.Suppressed:
		s.Suppressed++
	case res.Punch != nil:
		s.Punches++
		if res.Unmatched {
			s.Unmatched++
		}
	}
	if res.Evolved {
		s.Evolved++
	}
}

func parseIngestLine(data []byte) (ingestLine, error) {
	var l ingestLine
	if err := json.Unmarshal(data, &l); err != nil {
		return l, fmt.Errorf("%w: %w", biometric.ErrInvalidDetection, err)
	}
	if l.Timestamp.IsZero() {
		return l, fmt.Errorf("%w: missing timestamp", biometric.ErrInvalidDetection)
	}
	return l, nil
}

// ingest feeds every line of r through process. Only errors other than
// invalid detections abort the run.
func ingest(
	ctx context.Context, r io.Reader, process func(context.Context, biometric.Detection, time.Time) (attendance.Result, error),
) (IngestSummary, error) {
	var summary IngestSummary
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), constants.IngestScannerBuffer)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		summary.Lines++

		l, err := parseIngestLine(line)
		if err == nil {
			var res attendance.Result
			res, err = process(ctx, biometric.Detection{
				Embedding:     l.Embedding,
				FaceAreaRatio: l.FaceAreaRatio,
				LivenessScore: l.LivenessScore,
			}, l.Timestamp)
			if err == nil {
				summary.add(res)
				continue
			}
		}
		if errors.Is(err, biometric.ErrInvalidDetection) {
			summary.Invalid++
			continue
		}
		return summary, fmt.Errorf("line %d: %w", summary.Lines, err)
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("reading detections: %w", err)
	}
	return summary, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	var in io.Reader = os.Stdin
	var bar *progressbar.ProgressBar
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening detections: %w", err)
		}
		defer f.Close()
		in = f

		if !jsonOutput {
			if info, err := f.Stat(); err == nil {
				bar = progressbar.DefaultBytes(info.Size(), "Ingesting detections")
				in = io.TeeReader(f, bar)
			}
		}
	}

	ctx := context.Background()
	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := ingest(ctx, in, a.pipeline.Process)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(summary)
	}
	fmt.Printf("Lines:      %d\n", summary.Lines)
	fmt.Printf("Invalid:    %d\n", summary.Invalid)
	fmt.Printf("Rejected:   %d\n", summary.Rejected)
	fmt.Printf("Suppressed: %d\n", summary.Suppressed)
	fmt.Printf("Punches:    %d (%d unmatched)\n", summary.Punches, summary.Unmatched)
	fmt.Printf("Evolved:    %d\n", summary.Evolved)
	return nil
}
