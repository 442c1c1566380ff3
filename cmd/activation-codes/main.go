// Package main implements the activation-code label tool. It derives
// HMAC-based activation codes for a batch of device IDs, records them in
// the backend's device_activations table and writes a QR code PNG per
// device for label printing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/c360/telemetrygate/store"
	"github.com/c360/telemetrygate/store/supabase"
)

type cliConfig struct {
	DeviceIDs string
	Range     string
	CSV       string
	OutputDir string
	SkipPNG   bool
	Timeout   time.Duration
}

func main() {
	cfg := parseFlags()

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() *cliConfig {
	cfg := &cliConfig{}

	flag.StringVar(&cfg.DeviceIDs, "device-ids", "", "Comma-separated device IDs (e.g., 100001,100002)")
	flag.StringVar(&cfg.Range, "range", "", "Range of device IDs (e.g., 100001-100010)")
	flag.StringVar(&cfg.CSV, "csv", "", "CSV file with device IDs, one per line")
	flag.StringVar(&cfg.OutputDir, "output", "labels", "Output directory for QR code PNGs")
	flag.BoolVar(&cfg.SkipPNG, "skip-png", false, "Skip QR code PNG generation")
	flag.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "Per-device backend timeout")

	flag.Parse()
	return cfg
}

func run(cfg *cliConfig) error {
	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_KEY")
	secret := os.Getenv("ACTIVATION_SECRET")
	if supabaseURL == "" || supabaseKey == "" || secret == "" {
		return fmt.Errorf("missing required environment variables: SUPABASE_URL, SUPABASE_KEY, ACTIVATION_SECRET")
	}

	deviceIDs, err := parseDeviceIDs(cfg.DeviceIDs, cfg.Range, cfg.CSV)
	if err != nil {
		return err
	}
	if len(deviceIDs) == 0 {
		return fmt.Errorf("no device IDs provided")
	}

	client, err := supabase.New(supabaseURL, supabaseKey)
	if err != nil {
		return fmt.Errorf("create store client: %w", err)
	}

	if !cfg.SkipPNG {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	fmt.Printf("Processing %d device(s)...\n\n", len(deviceIDs))

	succeeded := 0
	for _, deviceID := range deviceIDs {
		if err := processDevice(client, cfg, secret, deviceID); err != nil {
			fmt.Printf("  %s: %v\n", deviceID, err)
			continue
		}
		succeeded++
	}

	fmt.Printf("\nGenerated %d activation code(s)\n", succeeded)
	return nil
}

func processDevice(client *supabase.Client, cfg *cliConfig, secret, deviceID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	exists, err := client.DeviceExists(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("check device: %w", err)
	}
	if !exists {
		return fmt.Errorf("not found in device_config, add the device first")
	}

	if existing, err := client.ActivationCode(ctx, deviceID); err != nil {
		return fmt.Errorf("check existing code: %w", err)
	} else if existing != "" {
		return fmt.Errorf("activation code already exists: %s", existing)
	}

	code := generateActivationCode(secret, deviceID)
	if err := client.InsertActivation(ctx, store.Activation{
		DeviceID:       deviceID,
		ActivationCode: code,
	}); err != nil {
		return fmt.Errorf("save code: %w", err)
	}
	fmt.Printf("  %s: %s\n", deviceID, code)

	if cfg.SkipPNG {
		return nil
	}
	pngPath := filepath.Join(cfg.OutputDir, fmt.Sprintf("qr_%s.png", deviceID))
	if err := qrcode.WriteFile(code, qrcode.Medium, 512, pngPath); err != nil {
		return fmt.Errorf("write QR code: %w", err)
	}
	return nil
}
