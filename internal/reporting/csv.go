package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the timeline table as CSV string.
func RenderCSV(rows []TimelineRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("ts_event_ns,type,order_id,side,price,quantity,detail\n")

	// Rows
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s,%s,%s\n",
			row.TsEventNs,
			row.Type,
			row.OrderID,
			row.Side,
			row.Price,
			row.Quantity,
			escapeCSVField(row.Detail),
		))
	}

	return sb.String()
}

func escapeCSVField(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}
