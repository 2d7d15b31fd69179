package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/ingestion"
)

// maxLineBytes bounds one JSON line; a line may hold an array of samples.
const maxLineBytes = 16 << 20

// readSamples parses JSON lines of samples. Each line holds one sample
// object or an array of them; blank lines are skipped.
func readSamples(r io.Reader) ([]*domain.MovementSample, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var out []*domain.MovementSample
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		batch, err := ingestion.DecodeSamples(b)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, batch...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	return out, nil
}

func readSamplesFile(path string) ([]*domain.MovementSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readSamples(f)
}

// readZones parses a JSON array of zone definitions, applying defaults and
// validating each one.
func readZones(r io.Reader) ([]domain.ZoneDefinition, error) {
	var zones []domain.ZoneDefinition
	if err := json.NewDecoder(r).Decode(&zones); err != nil {
		return nil, fmt.Errorf("decode zones: %w", err)
	}
	for i := range zones {
		zones[i].ApplyDefaults()
		if err := zones[i].Validate(); err != nil {
			return nil, fmt.Errorf("zone %d: %w", i, err)
		}
	}
	return zones, nil
}

func readZonesFile(path string) ([]domain.ZoneDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readZones(f)
}
