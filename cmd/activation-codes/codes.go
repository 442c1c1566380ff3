package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// generateActivationCode derives the device's activation code from the
// shared secret: the first 16 hex characters of HMAC-SHA256(secret,
// deviceID), upper-cased and grouped as XXXX-XXXX-XXXX-XXXX.
func generateActivationCode(secret, deviceID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(deviceID))
	digest := hex.EncodeToString(mac.Sum(nil))

	raw := strings.ToUpper(digest[:16])
	return fmt.Sprintf("%s-%s-%s-%s", raw[0:4], raw[4:8], raw[8:12], raw[12:16])
}

// parseDeviceIDs resolves the three mutually exclusive input forms into a
// flat device ID list.
func parseDeviceIDs(deviceIDs, idRange, csvPath string) ([]string, error) {
	switch {
	case deviceIDs != "":
		var ids []string
		for _, id := range strings.Split(deviceIDs, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		return ids, nil

	case idRange != "":
		parts := strings.SplitN(idRange, "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("range must be in format START-END (e.g., 100001-100010)")
		}
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid range start %q: %w", parts[0], err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid range end %q: %w", parts[1], err)
		}
		if end < start {
			return nil, fmt.Errorf("range end %d is before start %d", end, start)
		}
		ids := make([]string, 0, end-start+1)
		for i := start; i <= end; i++ {
			ids = append(ids, strconv.Itoa(i))
		}
		return ids, nil

	case csvPath != "":
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, fmt.Errorf("open CSV file: %w", err)
		}
		defer func() { _ = f.Close() }()

		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read CSV file: %w", err)
		}
		var ids []string
		for _, row := range rows {
			if len(row) == 0 {
				continue
			}
			if id := strings.TrimSpace(row[0]); id != "" {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}

	return nil, fmt.Errorf("one of --device-ids, --range or --csv is required")
}
