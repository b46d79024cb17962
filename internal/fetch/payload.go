// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fetch

import (
	"encoding/json"
	"sort"
	"strconv"
)

// callRef is one provider call extracted from the opaque job payload.
type callRef struct {
	CallID     string
	UserID     int64
	OffsetMS   int64
	DurationMS int64
}

// payload mirrors the provider context stored in the job data column:
//
//	{"provider_data": {"users": {"<uid>": {"calls": {"<call_id>": {...}}}}}}
type payload struct {
	ProviderData struct {
		Users map[string]struct {
			Calls map[string]struct {
				OffsetMS   int64 `json:"offset_ms"`
				DurationMS int64 `json:"duration_ms"`
			} `json:"calls"`
		} `json:"users"`
	} `json:"provider_data"`
}

// parseCalls extracts the call references from the opaque payload. The
// result is deterministic: sorted by call id. An empty or absent payload
// yields no calls, which the pipeline treats as "no archive".
func parseCalls(data []byte) ([]callRef, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, wrap(err, "invalid provider payload")
	}

	var calls []callRef
	for uid, user := range p.ProviderData.Users {
		userID, err := strconv.ParseInt(uid, 10, 64)
		if err != nil {
			return nil, errorf("invalid user id %q in provider payload", uid)
		}
		for callID, c := range user.Calls {
			calls = append(calls, callRef{
				CallID:     callID,
				UserID:     userID,
				OffsetMS:   c.OffsetMS,
				DurationMS: c.DurationMS,
			})
		}
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].CallID < calls[j].CallID })
	return calls, nil
}
