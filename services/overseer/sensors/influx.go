// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sensors

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/overseer/services/overseer/datatypes"
)

// InfluxTrustSource reads the trust-score time series from InfluxDB.
//
// Deployments that already stream trust measurements into a TSDB can point
// the aggregator here instead of the embedded store; the aggregator only
// sees the TrustSource interface either way. Samples are stored as a
// "trust_scores" measurement with accuracy/consistency/compliance fields
// and a tenant tag.
type InfluxTrustSource struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	bucket   string
}

var _ TrustSource = (*InfluxTrustSource)(nil)

// NewInfluxTrustSource connects to InfluxDB.
func NewInfluxTrustSource(url, token, org, bucket string) *InfluxTrustSource {
	client := influxdb2.NewClient(url, token)
	return &InfluxTrustSource{
		client:   client,
		queryAPI: client.QueryAPI(org),
		bucket:   bucket,
	}
}

// RecentSamples returns up to limit samples for the tenant, newest first.
func (s *InfluxTrustSource) RecentSamples(ctx context.Context, tenantID string, limit int) ([]datatypes.TrustSample, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -30d)
		  |> filter(fn: (r) => r._measurement == "trust_scores")
		  |> filter(fn: (r) => r.tenant == "%s")
		  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: true)
		  |> limit(n: %d)
	`, s.bucket, tenantID, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query trust scores: %w", err)
	}
	defer result.Close()

	var samples []datatypes.TrustSample
	for result.Next() {
		record := result.Record()
		sample := datatypes.TrustSample{
			TenantID:    tenantID,
			Timestamp:   record.Time(),
			Accuracy:    fieldFloat(record.ValueByKey("accuracy")),
			Consistency: fieldFloat(record.ValueByKey("consistency")),
			Compliance:  fieldFloat(record.ValueByKey("compliance")),
		}
		if id, ok := record.ValueByKey("sample_id").(string); ok {
			sample.ID = id
		}
		samples = append(samples, sample)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("read trust scores: %w", result.Err())
	}
	return samples, nil
}

// Close releases the underlying HTTP client.
func (s *InfluxTrustSource) Close() {
	s.client.Close()
}

func fieldFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	default:
		return 0
	}
}
