// Package idhash derives deterministic identifiers from record contents.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/mr-tron/base58"
)

// ComputeAssessmentID computes a deterministic assessment_id.
// Formula: SHA256(entity_id|sample_id|timestamp_ms)
// Returns the base58-encoded hash (43-44 characters).
func ComputeAssessmentID(entityID, sampleID string, timestampMs int64) string {
	data := fmt.Sprintf("%s|%s|%d", entityID, sampleID, timestampMs)
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

// ComputeSampleKey identifies a location report by content, for sources that
// redeliver samples without a stable sample_id.
// Formula: SHA256(entity_id|timestamp_ms|lat|lon)
// Returns hex-encoded hash (64 characters).
func ComputeSampleKey(entityID string, timestampMs int64, lat, lon float64) string {
	data := entityID + "|" + strconv.FormatInt(timestampMs, 10) + "|" +
		strconv.FormatFloat(lat, 'f', 7, 64) + "|" +
		strconv.FormatFloat(lon, 'f', 7, 64)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
