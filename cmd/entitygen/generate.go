package main

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// marker opts a struct in to generation.
const marker = "//tally:entity"

// errNoEntities is returned by generate when nothing is marked.
var errNoEntities = errors.New("no entities")

// field is one column-mapped struct field.
type field struct {
	Name   string // Go field name
	Column string
	Type   string // Go type expression as written in the source
	Param  string // parameter name in generated signatures
	PK     bool
}

// entity is one //tally:entity struct and the SQL derived from it.
type entity struct {
	Name     string
	Plural   string
	Table    string
	Receiver string
	Fields   []field
	PK       field

	Params    string // "key uuid.UUID, value uint32"
	FieldInit string // "Key: key, Value: value"
	ExecArgs  string // "c.Key, c.Value"
	ScanArgs  string // "&e.Key, &e.Value"

	UpsertSQL string
	SelectSQL string
	DeleteSQL string
}

// file is the input to the output template.
type file struct {
	Package  string
	Imports  []string
	Entities []entity
}

// generate parses the non-test, non-generated Go files in dir and returns the
// formatted source of the generated file.
func generate(dir string) ([]byte, error) {
	f, err := load(dir)
	if err != nil {
		return nil, err
	}
	if len(f.Entities) == 0 {
		return nil, fmt.Errorf("%w: no %s structs in %s", errNoEntities, marker, dir)
	}

	var buf bytes.Buffer
	if err := outputTemplate.Execute(&buf, f); err != nil {
		return nil, fmt.Errorf("rendering: %w", err)
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting generated code: %w", err)
	}
	return src, nil
}

// load collects every marked struct in dir, in file then declaration order.
func load(dir string) (file, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return file{}, fmt.Errorf("reading %s: %w", dir, err)
	}

	var out file
	fset := token.NewFileSet()
	imports := map[string]bool{`"context"`: true}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") ||
			strings.HasSuffix(name, "_test.go") || strings.HasSuffix(name, "_gen.go") {
			continue
		}

		af, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ParseComments)
		if err != nil {
			return file{}, fmt.Errorf("parsing %s: %w", name, err)
		}
		if out.Package == "" {
			out.Package = af.Name.Name
		}

		fileImports := importsByName(af)
		for _, decl := range af.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec) //nolint:forcetypeassert // TYPE decls only hold TypeSpecs
				if !hasMarker(gd.Doc) && !hasMarker(ts.Doc) {
					continue
				}
				st, ok := ts.Type.(*ast.StructType)
				if !ok {
					return file{}, fmt.Errorf("%s: %s is marked but is not a struct", name, ts.Name.Name)
				}

				ent, used, err := buildEntity(ts.Name.Name, st)
				if err != nil {
					return file{}, fmt.Errorf("%s: %w", name, err)
				}
				for _, pkg := range used {
					spec, ok := fileImports[pkg]
					if !ok {
						return file{}, fmt.Errorf("%s: %s uses unknown package %q", name, ent.Name, pkg)
					}
					imports[spec] = true
				}
				out.Entities = append(out.Entities, ent)
			}
		}
	}

	for spec := range imports {
		out.Imports = append(out.Imports, spec)
	}
	sort.Strings(out.Imports)
	return out, nil
}

// hasMarker reports whether a doc comment contains the marker line.
func hasMarker(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.TrimSpace(c.Text) == marker {
			return true
		}
	}
	return false
}

// importsByName maps each import's local name to its import spec as it
// should appear in the generated file.
func importsByName(af *ast.File) map[string]string {
	m := make(map[string]string, len(af.Imports))
	for _, imp := range af.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		if imp.Name != nil {
			m[imp.Name.Name] = imp.Name.Name + " " + imp.Path.Value
			continue
		}
		m[filepath.Base(path)] = imp.Path.Value
	}
	return m
}

// buildEntity derives the entity model from a struct. It also returns the
// package names referenced by column field types.
func buildEntity(name string, st *ast.StructType) (entity, []string, error) {
	ent := entity{
		Name:     name,
		Plural:   name + "s",
		Table:    tableName(name),
		Receiver: strings.ToLower(name[:1]),
	}

	var used []string
	var pkCount int
	for _, f := range st.Fields.List {
		if f.Tag == nil || len(f.Names) == 0 {
			continue
		}
		tag, err := strconv.Unquote(f.Tag.Value)
		if err != nil {
			return entity{}, nil, fmt.Errorf("%s: bad tag %s", name, f.Tag.Value)
		}
		dbTag, ok := reflect.StructTag(tag).Lookup("db")
		if !ok || dbTag == "-" {
			continue
		}
		column, opts, _ := strings.Cut(dbTag, ",")
		if column == "" {
			return entity{}, nil, fmt.Errorf("%s: empty column name in tag %q", name, dbTag)
		}

		typ := types.ExprString(f.Type)
		used = append(used, selectorPackages(f.Type)...)

		for _, ident := range f.Names {
			fd := field{
				Name:   ident.Name,
				Column: column,
				Type:   typ,
				Param:  paramName(ident.Name),
				PK:     opts == "pk",
			}
			if fd.PK {
				pkCount++
				ent.PK = fd
			}
			ent.Fields = append(ent.Fields, fd)
		}
	}

	switch {
	case len(ent.Fields) == 0:
		return entity{}, nil, fmt.Errorf("%s: no db-tagged fields", name)
	case pkCount != 1:
		return entity{}, nil, fmt.Errorf("%s: need exactly one pk field, found %d", name, pkCount)
	}

	ent.fillSQL()
	return ent, used, nil
}

// fillSQL renders the statements and argument lists for ent.
func (ent *entity) fillSQL() {
	var (
		columns, params, inits, execArgs, scanArgs, updates []string
	)
	for _, f := range ent.Fields {
		columns = append(columns, f.Column)
		params = append(params, f.Param+" "+f.Type)
		inits = append(inits, f.Name+": "+f.Param)
		execArgs = append(execArgs, ent.Receiver+"."+f.Name)
		scanArgs = append(scanArgs, "&e."+f.Name)
		if !f.PK {
			updates = append(updates, f.Column+" = excluded."+f.Column)
		}
	}

	ent.Params = strings.Join(params, ", ")
	ent.FieldInit = strings.Join(inits, ", ")
	ent.ExecArgs = strings.Join(execArgs, ", ")
	ent.ScanArgs = strings.Join(scanArgs, ", ")

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	ent.UpsertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		ent.Table,
		strings.Join(columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "),
		ent.PK.Column,
		conflict,
	)
	ent.SelectSQL = fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), ent.Table)
	ent.DeleteSQL = fmt.Sprintf("DELETE FROM %s WHERE %s = ?", ent.Table, ent.PK.Column)
}

// selectorPackages returns the package names referenced in a type expression,
// e.g. "uuid" for uuid.UUID or []uuid.UUID.
func selectorPackages(expr ast.Expr) []string {
	var pkgs []string
	ast.Inspect(expr, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if id, ok := sel.X.(*ast.Ident); ok {
			pkgs = append(pkgs, id.Name)
		}
		return false
	})
	return pkgs
}

// tableName converts a type name to its table: snake_case, every inner
// underscore pluralising the word before it, plus a trailing "s".
//
//	Counter      -> counters
//	IdentityUser -> identitys_users
func tableName(typeName string) string {
	return strings.ReplaceAll(snakeCase(typeName), "_", "s_") + "s"
}

// snakeCase splits a Go identifier at case boundaries, keeping acronyms
// together: "HTTPServer" -> "http_server", "UserID" -> "user_id".
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// paramName lower-cases the leading word of a field name for use as a
// parameter: "Key" -> "key", "ID" -> "id", "UserID" -> "userID".
func paramName(fieldName string) string {
	runes := []rune(fieldName)
	upper := 0
	for upper < len(runes) && unicode.IsUpper(runes[upper]) {
		upper++
	}
	if upper > 1 && upper < len(runes) {
		upper--
	}
	for i := range upper {
		runes[i] = unicode.ToLower(runes[i])
	}

	name := string(runes)
	if token.IsKeyword(name) || name == "ctx" || name == "db" {
		name += "_"
	}
	return name
}
