// Copyright 2022 Piprate Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

// IndexKind tags a DBIndex as naming a whole table or a single column.
type IndexKind int

const (
	IndexTable IndexKind = iota + 1
	IndexColumn
)

// DBIndex is a tagged reference to either a database table or one of its
// columns. Table and column names are opaque strings to the crypto
// core — no schema is enforced here.
type DBIndex struct {
	Kind   IndexKind `json:"kind"`
	Table  string    `json:"table"`
	Column string    `json:"column,omitempty"`
}

func TableIndex(table string) DBIndex {
	return DBIndex{Kind: IndexTable, Table: table}
}

func ColumnIndex(table, column string) DBIndex {
	return DBIndex{Kind: IndexColumn, Table: table, Column: column}
}

// IDForTable is the deterministic Bundle key for a whole table.
func IDForTable(table string) Uid {
	return UidFromBytes([]byte(tablePrefix + table))
}

// IDForColumn is the deterministic Bundle key for a single column.
func IDForColumn(table, column string) Uid {
	return UidFromBytes([]byte(tablePrefix + table + ":" + colPrefix + column))
}

// AsID returns the deterministic Bundle key for this index — the same
// value id_for_table/id_for_column would return for the equivalent
// Table/Column index.
func (idx DBIndex) AsID() Uid {
	switch idx.Kind {
	case IndexColumn:
		return IDForColumn(idx.Table, idx.Column)
	default:
		return IDForTable(idx.Table)
	}
}
