package schema

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Column describes one column of a logical table.
type Column struct {
	Name             string `bson:"name" json:"name"`
	Type             string `bson:"type" json:"type"`
	IsNullable       bool   `bson:"is_nullable" json:"is_nullable"`
	IsPrimaryKey     bool   `bson:"is_primary_key" json:"is_primary_key"`
	IsForeignKey     bool   `bson:"is_foreign_key" json:"is_foreign_key"`
	ReferencedTable  string `bson:"referenced_table,omitempty" json:"referenced_table,omitempty"`
	ReferencedColumn string `bson:"referenced_column,omitempty" json:"referenced_column,omitempty"`
	Default          any    `bson:"default,omitempty" json:"default,omitempty"`
	Extra            string `bson:"extra,omitempty" json:"extra,omitempty"`
}

type Table struct {
	TableName string   `bson:"table_name" json:"table_name"`
	Columns   []Column `bson:"columns" json:"columns"`
}

// Database is the logical schema document kept in the schema store.
type Database struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name   string             `bson:"name,omitempty" json:"name,omitempty"`
	Tables []Table            `bson:"tables" json:"tables"`
}

// Render produces the textual description the generation service expects:
//
//	Tabela users
//	Colunas:
//	id - INT - não nulo - chave primária
//
// Tables are separated by a blank line.
func (d *Database) Render() string {
	tables := make([]string, 0, len(d.Tables))
	for _, t := range d.Tables {
		lines := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			lines = append(lines, renderColumn(c))
		}
		tables = append(tables, "Tabela "+t.TableName+"\nColunas:\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(tables, "\n\n")
}

func renderColumn(c Column) string {
	nullable := "não nulo"
	if c.IsNullable {
		nullable = "nulo"
	}
	s := c.Name + " - " + c.Type + " - " + nullable
	if c.IsPrimaryKey {
		s += " - chave primária"
	}
	if c.IsForeignKey {
		s += fmt.Sprintf(" - referencia tabela %s, coluna %s", c.ReferencedTable, c.ReferencedColumn)
	}
	return s
}

// CreateTables renders one MySQL CREATE TABLE statement per table.
func (d *Database) CreateTables() []string {
	out := make([]string, 0, len(d.Tables))
	for _, t := range d.Tables {
		out = append(out, createTable(t))
	}
	return out
}

func createTable(t Table) string {
	var defs, pk, fks []string
	for _, c := range t.Columns {
		defs = append(defs, "  "+columnDefinition(c))
		if c.IsPrimaryKey {
			pk = append(pk, quoteIdent(c.Name))
		}
		if c.IsForeignKey && c.ReferencedTable != "" && c.ReferencedColumn != "" {
			fks = append(fks, fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s (%s)",
				quoteIdent(c.Name), quoteIdent(c.ReferencedTable), quoteIdent(c.ReferencedColumn)))
		}
	}
	if len(pk) > 0 {
		defs = append(defs, "  PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}
	defs = append(defs, fks...)
	return "CREATE TABLE " + quoteIdent(t.TableName) + " (\n" + strings.Join(defs, ",\n") + "\n);"
}

func columnDefinition(c Column) string {
	parts := []string{quoteIdent(c.Name), c.Type}
	if !c.IsNullable {
		parts = append(parts, "NOT NULL")
	}
	if def := renderDefault(c.Default); def != "" {
		parts = append(parts, "DEFAULT "+def)
	}
	if c.Extra != "" {
		parts = append(parts, c.Extra)
	}
	return strings.Join(parts, " ")
}

// renderDefault treats string defaults as SQL expressions (CURRENT_TIMESTAMP,
// 'literal'); everything else is printed as a literal.
func renderDefault(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	case bool:
		if d {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(d)
	}
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
