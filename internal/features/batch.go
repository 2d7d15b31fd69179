package features

import (
	"sort"

	"tourist-safety-engine/internal/domain"
)

// ComputeFeatures derives feature records for a batch of recorded samples.
// Inputs are sorted by (entity_id, timestamp_ms) internally so each entity
// sees its samples in order. Invalid and duplicate-timestamp samples are skipped.
//
// Used to build training corpora; it never touches a live Extractor.
func ComputeFeatures(samples []domain.MovementSample, opts Options) []domain.FeatureRecord {
	if len(samples) == 0 {
		return nil
	}

	sorted := make([]domain.MovementSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].EntityID != sorted[j].EntityID {
			return sorted[i].EntityID < sorted[j].EntityID
		}
		return sorted[i].TimestampMs < sorted[j].TimestampMs
	})

	opts.Shards = 1
	ex := NewExtractor(opts)

	out := make([]domain.FeatureRecord, 0, len(sorted))
	for i := range sorted {
		s := &sorted[i]
		fv, err := ex.Ingest(s)
		if err != nil {
			continue
		}
		out = append(out, domain.FeatureRecord{
			EntityID:      s.EntityID,
			SampleID:      s.SampleID,
			FeatureVector: fv,
		})
	}
	return out
}

// Windows groups feature records into sliding windows of size n per entity.
// Records must be ordered by (entity_id, timestamp_ms). Entities with fewer
// than n records contribute no windows.
func Windows(records []domain.FeatureRecord, n int) [][]domain.FeatureVector {
	if n <= 0 {
		return nil
	}
	var out [][]domain.FeatureVector
	start := 0
	for i := 1; i <= len(records); i++ {
		if i < len(records) && records[i].EntityID == records[start].EntityID {
			continue
		}
		run := records[start:i]
		for j := 0; j+n <= len(run); j++ {
			w := make([]domain.FeatureVector, n)
			for k := 0; k < n; k++ {
				w[k] = run[j+k].FeatureVector
			}
			out = append(out, w)
		}
		start = i
	}
	return out
}
