package labrequest

import (
	"encoding/json"
	"fmt"

	"github.com/dentallab/labdesk/internal/domain/quote"
	"github.com/dentallab/labdesk/internal/domain/treatment"
)

// jsonColumns holds the JSON-encoded parts of a request shared by the
// Postgres (JSONB) and SQLite (TEXT) stores.
type jsonColumns struct {
	groups, dates, pricing, quote []byte
}

func encodeColumns(req *Request) (jsonColumns, error) {
	var cols jsonColumns
	var err error
	groups := req.Groups
	if groups == nil {
		groups = []treatment.Group{}
	}
	if cols.groups, err = json.Marshal(groups); err != nil {
		return cols, fmt.Errorf("encode groups: %w", err)
	}
	if cols.dates, err = json.Marshal(req.Dates); err != nil {
		return cols, fmt.Errorf("encode dates: %w", err)
	}
	if cols.pricing, err = json.Marshal(req.Pricing); err != nil {
		return cols, fmt.Errorf("encode pricing: %w", err)
	}
	if req.Quote != nil {
		if cols.quote, err = json.Marshal(req.Quote); err != nil {
			return cols, fmt.Errorf("encode quote: %w", err)
		}
	}
	return cols, nil
}

func (cols jsonColumns) decodeInto(req *Request) error {
	if len(cols.groups) > 0 {
		if err := json.Unmarshal(cols.groups, &req.Groups); err != nil {
			return fmt.Errorf("decode groups: %w", err)
		}
	}
	if len(cols.dates) > 0 {
		if err := json.Unmarshal(cols.dates, &req.Dates); err != nil {
			return fmt.Errorf("decode dates: %w", err)
		}
	}
	if len(cols.pricing) > 0 {
		if err := json.Unmarshal(cols.pricing, &req.Pricing); err != nil {
			return fmt.Errorf("decode pricing: %w", err)
		}
	}
	if len(cols.quote) > 0 {
		req.Quote = new(quote.Quote)
		if err := json.Unmarshal(cols.quote, req.Quote); err != nil {
			return fmt.Errorf("decode quote: %w", err)
		}
	}
	return nil
}
