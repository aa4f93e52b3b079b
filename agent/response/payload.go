package response

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type DisplayType string

const (
	DisplayMetrics DisplayType = "metrics"
	DisplayChart   DisplayType = "chart"
	DisplayTable   DisplayType = "table"
	DisplayList    DisplayType = "list"
	DisplayCard    DisplayType = "card"
)

// Payload is implemented by the per-display data shapes.
type Payload interface {
	DisplayType() DisplayType
}

type Metadata map[string]any

// FormattedData pairs a display payload with rendering hints.
type FormattedData struct {
	Data     Payload
	Metadata Metadata
}

func NewFormattedData(data Payload, metadata Metadata) *FormattedData {
	if metadata == nil {
		metadata = Metadata{}
	}
	return &FormattedData{Data: data, Metadata: metadata}
}

func (f *FormattedData) DisplayType() DisplayType {
	if f == nil || f.Data == nil {
		return ""
	}
	return f.Data.DisplayType()
}

type formattedWire struct {
	DisplayType DisplayType     `json:"display_type"`
	Data        json.RawMessage `json:"data"`
	Metadata    Metadata        `json:"metadata"`
}

func (f FormattedData) MarshalJSON() ([]byte, error) {
	if f.Data == nil {
		return nil, fmt.Errorf("formatted data has no payload")
	}
	data, err := json.Marshal(f.Data)
	if err != nil {
		return nil, err
	}
	metadata := f.Metadata
	if metadata == nil {
		metadata = Metadata{}
	}
	return json.Marshal(formattedWire{
		DisplayType: f.Data.DisplayType(),
		Data:        data,
		Metadata:    metadata,
	})
}

func (f *FormattedData) UnmarshalJSON(raw []byte) error {
	var wire formattedWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	var payload Payload
	switch wire.DisplayType {
	case DisplayMetrics:
		payload = &MetricsData{}
	case DisplayChart:
		payload = &ChartData{}
	case DisplayTable:
		payload = &TableData{}
	case DisplayList:
		payload = &ListData{}
	case DisplayCard:
		payload = &CardData{}
	default:
		return fmt.Errorf("unknown display_type %q", wire.DisplayType)
	}
	if err := json.Unmarshal(wire.Data, payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", wire.DisplayType, err)
	}

	f.Data = payload
	f.Metadata = wire.Metadata
	if f.Metadata == nil {
		f.Metadata = Metadata{}
	}
	return nil
}

type MetricFormat string

const (
	FormatNumber   MetricFormat = "number"
	FormatCurrency MetricFormat = "currency"
)

type Metric struct {
	Label     string       `json:"label"`
	Value     float64      `json:"value"`
	Format    MetricFormat `json:"format"`
	Icon      string       `json:"icon"`
	Color     string       `json:"color,omitempty"`
	Formatted string       `json:"formatted"`
}

// NewMetric fills Formatted from value and format.
func NewMetric(label string, value float64, format MetricFormat, icon string) Metric {
	formatted := FormatNumberValue(value)
	if format == FormatCurrency {
		formatted = FormatCurrencyValue(value)
	}
	return Metric{
		Label:     label,
		Value:     value,
		Format:    format,
		Icon:      icon,
		Formatted: formatted,
	}
}

type MetricsData struct {
	Metrics []Metric `json:"metrics"`
}

func (*MetricsData) DisplayType() DisplayType { return DisplayMetrics }

type ChartType string

const (
	ChartPie ChartType = "pie"
	ChartBar ChartType = "bar"
)

// Colors marshals as a single string when it holds one color and as a list otherwise.
type Colors []string

func (c Colors) MarshalJSON() ([]byte, error) {
	if len(c) == 1 {
		return json.Marshal(c[0])
	}
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(c))
}

func (c *Colors) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return err
		}
		*c = Colors{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return err
	}
	*c = Colors(many)
	return nil
}

type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor Colors    `json:"backgroundColor"`
}

type ChartData struct {
	ChartType ChartType `json:"chart_type"`
	Labels    []string  `json:"labels"`
	Datasets  []Dataset `json:"datasets"`
}

func (*ChartData) DisplayType() DisplayType { return DisplayChart }

type Column struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Type       string `json:"type"`
	Width      string `json:"width,omitempty"`
	Sortable   bool   `json:"sortable,omitempty"`
	Filterable bool   `json:"filterable,omitempty"`
}

// Cell keeps the raw value for sorting next to its display string.
type Cell struct {
	Value     any    `json:"value"`
	Formatted string `json:"formatted"`
}

type Row map[string]Cell

type TableData struct {
	Columns    []Column `json:"columns"`
	Rows       []Row    `json:"rows"`
	TotalCount int      `json:"total_count"`
}

func (*TableData) DisplayType() DisplayType { return DisplayTable }

type ListItem struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle"`
	Details  []string `json:"details"`
	Status   string   `json:"status"`
	Icon     string   `json:"icon"`
}

type ListData struct {
	Items []ListItem `json:"items"`
}

func (*ListData) DisplayType() DisplayType { return DisplayList }

type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Section struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

type CardData struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

func (*CardData) DisplayType() DisplayType { return DisplayCard }
