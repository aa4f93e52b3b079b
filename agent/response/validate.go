package response

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidEnvelope = errors.New("invalid response envelope")

// Validate reports the first contract violation in e.
func (e Envelope) Validate() error {
	switch e.Status {
	case StatusSuccess:
		if strings.TrimSpace(e.Answer) == "" {
			return fmt.Errorf("%w: success envelope requires an answer", ErrInvalidEnvelope)
		}
		if e.Error != "" {
			return fmt.Errorf("%w: success envelope carries an error", ErrInvalidEnvelope)
		}
	case StatusError:
		if strings.TrimSpace(e.Error) == "" {
			return fmt.Errorf("%w: error envelope requires an error message", ErrInvalidEnvelope)
		}
		if e.FormattedData != nil {
			return fmt.Errorf("%w: error envelope must not carry formatted_data", ErrInvalidEnvelope)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEnvelope, e.Status)
	}

	if e.FormattedData == nil {
		return nil
	}
	return e.FormattedData.Validate()
}

func (f *FormattedData) Validate() error {
	if f == nil || f.Data == nil {
		return fmt.Errorf("%w: formatted_data has no payload", ErrInvalidEnvelope)
	}

	switch data := f.Data.(type) {
	case *MetricsData:
		for i, m := range data.Metrics {
			if m.Format != FormatNumber && m.Format != FormatCurrency {
				return fmt.Errorf("%w: metric[%d] format %q", ErrInvalidEnvelope, i, m.Format)
			}
		}
	case *ChartData:
		if data.ChartType != ChartPie && data.ChartType != ChartBar {
			return fmt.Errorf("%w: chart_type %q", ErrInvalidEnvelope, data.ChartType)
		}
		for i, ds := range data.Datasets {
			if len(ds.Data) != len(data.Labels) {
				return fmt.Errorf("%w: dataset[%d] has %d points for %d labels", ErrInvalidEnvelope, i, len(ds.Data), len(data.Labels))
			}
		}
	case *TableData:
		keys := make(map[string]struct{}, len(data.Columns))
		for _, c := range data.Columns {
			keys[c.Key] = struct{}{}
		}
		for i, row := range data.Rows {
			for k := range row {
				if _, ok := keys[k]; !ok {
					return fmt.Errorf("%w: row[%d] key %q is not a declared column", ErrInvalidEnvelope, i, k)
				}
			}
		}
		if len(data.Rows) > data.TotalCount {
			return fmt.Errorf("%w: %d rows exceed total_count %d", ErrInvalidEnvelope, len(data.Rows), data.TotalCount)
		}
	case *ListData, *CardData:
	default:
		return fmt.Errorf("%w: unsupported payload %T", ErrInvalidEnvelope, f.Data)
	}
	return nil
}
