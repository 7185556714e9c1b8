package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/iancoleman/orderedmap"
	"github.com/jedib0t/go-pretty/v6/table"
)

/**
 * Convert a struct to an ordered map keeping the field order of its JSON form
 * @param {interface{}} v - Struct with json tags
 * @returns {*orderedmap.OrderedMap} Keys in declaration order
 */
func StructToOrderedMap(v interface{}) (*orderedmap.OrderedMap, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := orderedmap.New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

/**
 * Print records as a table
 * @param {[]*orderedmap.OrderedMap} dataList - Rows, the first row decides the columns
 * @description
 * - Column headers are the upper-cased keys
 * - Missing values print as empty cells
 */
func PrintFormat(dataList []*orderedmap.OrderedMap) {
	if len(dataList) == 0 {
		return
	}
	keys := dataList[0].Keys()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, 0, len(keys))
	for _, k := range keys {
		header = append(header, strings.ToUpper(k))
	}
	t.AppendHeader(header)

	for _, rec := range dataList {
		row := make(table.Row, 0, len(keys))
		for _, k := range keys {
			v, ok := rec.Get(k)
			if !ok || v == nil {
				row = append(row, "")
				continue
			}
			row = append(row, fmt.Sprint(v))
		}
		t.AppendRow(row)
	}
	t.Render()
}

// PrintJSON 以缩进格式输出任意结构
func PrintJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
