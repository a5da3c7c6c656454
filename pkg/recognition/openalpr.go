package recognition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Response is the JSON document printed by `alpr -j`.
type Response struct {
	Version        float64  `json:"version"`
	DataType       string   `json:"data_type"`
	EpochTime      float64  `json:"epoch_time"`
	ImgWidth       int      `json:"img_width"`
	ImgHeight      int      `json:"img_height"`
	ProcessingTime float64  `json:"processing_time_ms"`
	Results        []Result `json:"results"`
}

// Result is one detected plate region.
type Result struct {
	Plate            string      `json:"plate"`
	Confidence       float64     `json:"confidence"`
	MatchesTemplate  int         `json:"matches_template"`
	PlateIndex       int         `json:"plate_index"`
	Region           string      `json:"region"`
	RegionConfidence float64     `json:"region_confidence"`
	ProcessingTime   float64     `json:"processing_time_ms"`
	Candidates       []Candidate `json:"candidates"`
}

// Parse decodes alpr output into candidates, one per detected plate
// region (the region's top reading). Missing or empty results yield no
// candidates; anything that is not a JSON object is ErrMalformedOutput.
func Parse(out []byte) ([]Candidate, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}

	var resp Response
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	cands := make([]Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		plate := strings.TrimSpace(r.Plate)
		if plate == "" {
			continue
		}
		cands = append(cands, Candidate{Plate: plate, Confidence: r.Confidence})
	}
	return cands, nil
}
