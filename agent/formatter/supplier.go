package formatter

import (
	"fmt"

	"github.com/tanpawarit/bizai-insight/agent/response"
)

var supplierColumns = []response.Column{
	{Key: "supplierName", Label: "Supplier Name", Type: "text", Sortable: true},
	{Key: "contactPerson", Label: "Contact Person", Type: "text"},
	{Key: "supplierEmail", Label: "Email", Type: "email"},
	{Key: "supplierPhone", Label: "Phone", Type: "phone"},
}

func supplierTable(raw Result) (string, *response.FormattedData) {
	suppliers, total := rootNodes(raw, "allSuppliers")
	if len(suppliers) == 0 {
		return "No suppliers found.", nil
	}
	if total < len(suppliers) {
		total = len(suppliers)
	}
	if len(suppliers) > MaxRows {
		suppliers = suppliers[:MaxRows]
	}

	rows := make([]response.Row, 0, len(suppliers))
	for _, s := range suppliers {
		row := make(response.Row, len(supplierColumns))
		for _, c := range supplierColumns {
			row[c.Key] = response.Cell{Value: s[c.Key], Formatted: toText(s[c.Key])}
		}
		rows = append(rows, row)
	}

	table := &response.TableData{
		Columns:    append([]response.Column(nil), supplierColumns...),
		Rows:       rows,
		TotalCount: total,
	}
	meta := response.Metadata{"title": "Suppliers", "searchable": true}
	return fmt.Sprintf("Found %d suppliers.", total), response.NewFormattedData(table, meta)
}
