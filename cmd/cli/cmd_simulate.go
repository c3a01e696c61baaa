package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/api"
	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/ingest"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a virtual monitor against a server",
	Long: `Post synthetic readings to a running server at a fixed interval.
With --api-key the device webhook is used, otherwise the ingestion API.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	f := simulateCmd.Flags()
	f.String("url", "http://localhost:8059", "server base URL")
	f.String("api-key", "", "device API key (uses the webhook when set)")
	f.String("device-id", "", "device id for the ingestion API (defaults to DEFAULT_DEVICE_ID)")
	f.Duration("interval", 10*time.Second, "time between readings")
	f.Int("count", 0, "number of readings to send (0 runs until interrupted)")
	f.Uint64("seed", 0, "random seed (0 uses the clock)")
}

// readingGenerator produces a slowly drifting daily cycle with noise
type readingGenerator struct {
	rng  *rand.Rand
	tick int
}

func newReadingGenerator(seed uint64) *readingGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &readingGenerator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *readingGenerator) next(deviceID string) *ingest.Payload {
	phase := float64(g.tick) / 60 * 2 * math.Pi
	g.tick++

	temperature := 27 + 4*math.Sin(phase) + g.rng.NormFloat64()*0.5
	humidity := clamp(70-15*math.Sin(phase)+g.rng.NormFloat64()*3, 0, 100)
	gas := math.Max(0, 180+40*math.Cos(phase)+g.rng.NormFloat64()*10)
	dust := math.Max(0, 45+30*math.Cos(phase)+g.rng.NormFloat64()*8)

	return ingest.NewPayload(deviceID, round2(temperature), round2(humidity), round2(gas), round2(dust))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := configFrom(cmd)
	f := cmd.Flags()
	baseURL, _ := f.GetString("url")
	apiKey, _ := f.GetString("api-key")
	deviceID, _ := f.GetString("device-id")
	interval, _ := f.GetDuration("interval")
	count, _ := f.GetInt("count")
	seed, _ := f.GetUint64("seed")

	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if deviceID == "" {
		deviceID = cfg.DefaultDeviceID
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(baseURL, api.WithAPIKey(apiKey), api.WithAPIKeyHeader(cfg.DeviceAPIKeyHeader))
	gen := newReadingGenerator(seed)
	out := cmd.OutOrStdout()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; count == 0 || sent < count; sent++ {
		payload := gen.next(deviceID)
		if apiKey != "" {
			// the webhook identifies the device by its key
			payload.DeviceID = ""
		}

		line, err := sendReading(ctx, client, apiKey != "", payload)
		if err != nil {
			fmt.Fprintf(out, "❌ #%d %v\n", sent+1, err)
			if status := api.StatusCode(err); status == http.StatusUnauthorized || status == http.StatusBadRequest {
				return err
			}
		} else {
			fmt.Fprintf(out, "✓ #%d %s\n", sent+1, line)
		}

		if count != 0 && sent+1 >= count {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func sendReading(ctx context.Context, client *api.Client, webhook bool, payload *ingest.Payload) (string, error) {
	if webhook {
		resp, err := client.PostWebhook(ctx, payload)
		if err != nil {
			return "", err
		}
		if resp.DataID != nil {
			return fmt.Sprintf("%s, saved as #%d", resp.Message, *resp.DataID), nil
		}
		return resp.Message + ", cached", nil
	}

	resp, err := client.PostSensorData(ctx, payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s aqi=%d %s dust=%.1f saved=%t",
		resp.Data.DeviceID, resp.Data.AQI, resp.Data.Category, resp.Data.CorrectedDust, resp.SavedToDatabase), nil
}
