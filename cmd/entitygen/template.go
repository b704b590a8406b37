package main

import "text/template"

// outputTemplate renders the generated file. The output is passed through
// go/format, so whitespace here only needs to be valid Go.
var outputTemplate = template.Must(template.New("entity").Parse(`// Code generated by entitygen. DO NOT EDIT.

package {{.Package}}

import (
{{- range .Imports}}
	{{.}}
{{- end}}
)
{{range .Entities}}
// New{{.Name}} creates a new {{.Name}}.
func New{{.Name}}({{.Params}}) *{{.Name}} {
	return &{{.Name}}{ {{- .FieldInit -}} }
}

// Upsert inserts {{.Receiver}} into {{.Table}}, or overwrites the row with the same {{.PK.Column}}.
func ({{.Receiver}} *{{.Name}}) Upsert(ctx context.Context, db DBTX) error {
	_, err := db.ExecContext(ctx, {{printf "%q" .UpsertSQL}}, {{.ExecArgs}})
	return err
}

// Delete removes {{.Receiver}} from {{.Table}}. Deleting a missing row is not an error.
func ({{.Receiver}} *{{.Name}}) Delete(ctx context.Context, db DBTX) error {
	_, err := db.ExecContext(ctx, {{printf "%q" .DeleteSQL}}, {{.Receiver}}.{{.PK.Name}})
	return err
}

// Retrieve{{.Name}} returns the {{.Name}} with the given {{.PK.Column}}, or nil if there is none.
func Retrieve{{.Name}}(ctx context.Context, db DBTX, {{.PK.Param}} {{.PK.Type}}) (*{{.Name}}, error) {
	found, err := Retrieve{{.Name}}Many(ctx, db, []{{.PK.Type}}{ {{- .PK.Param -}} })
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

// Retrieve{{.Name}}Many returns the {{.Plural}} whose {{.PK.Column}} is listed. Missing
// rows are skipped; the result order is unspecified.
func Retrieve{{.Name}}Many(ctx context.Context, db DBTX, {{.PK.Param}}s []{{.PK.Type}}) ([]{{.Name}}, error) {
	if len({{.PK.Param}}s) == 0 {
		return nil, nil
	}
	args := make([]any, len({{.PK.Param}}s))
	for i, v := range {{.PK.Param}}s {
		args[i] = v
	}
	return query{{.Plural}}(ctx, db, {{printf "%q" .SelectSQL}}+" WHERE {{.PK.Column}} IN ("+placeholders(len(args))+")", args...)
}

// RetrieveAll{{.Plural}} returns every row of {{.Table}}.
func RetrieveAll{{.Plural}}(ctx context.Context, db DBTX) ([]{{.Name}}, error) {
	return query{{.Plural}}(ctx, db, {{printf "%q" .SelectSQL}})
}

func query{{.Plural}}(ctx context.Context, db DBTX, query string, args ...any) ([]{{.Name}}, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []{{.Name}}
	for rows.Next() {
		var e {{.Name}}
		if err := rows.Scan({{.ScanArgs}}); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
{{end}}`))
