package transform

import (
	"github.com/gridport/gridport/internal/mapping"
	"github.com/gridport/gridport/internal/schema"
)

// Row converts one raw record into a column-keyed value map following the
// table plan. Values the claiming variant cannot coerce become null and are
// tallied as skipped; the record itself always survives. Fields absent from
// the record store as null without counting.
func Row(reg *mapping.Registry, plan *mapping.TablePlan, rec schema.RawRecord) (map[string]any, int) {
	values := make(map[string]any, len(plan.Columns))
	skipped := 0
	for _, pc := range plan.Columns {
		if pc.Column.MappedBy == "system" {
			values[pc.Column.Name] = rec.ID
			continue
		}
		raw, ok := rec.Fields[pc.Field.Name]
		if !ok {
			values[pc.Column.Name] = nil
			continue
		}
		v, err := reg.TransformValue(raw, pc.Field)
		if err != nil {
			values[pc.Column.Name] = nil
			skipped++
			continue
		}
		values[pc.Column.Name] = v
	}
	return values, skipped
}

// Page converts a page of raw records in order. The int is the total number
// of skipped values across the page.
func Page(reg *mapping.Registry, plan *mapping.TablePlan, recs []schema.RawRecord) ([]map[string]any, int) {
	rows := make([]map[string]any, 0, len(recs))
	skipped := 0
	for _, rec := range recs {
		row, n := Row(reg, plan, rec)
		rows = append(rows, row)
		skipped += n
	}
	return rows, skipped
}
