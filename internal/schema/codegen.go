package schema

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/paramstore/paramstore/internal/paramtable"
	"github.com/paramstore/paramstore/internal/pvalue"
)

// codegenTemplate emits a generated Go source file with one id constant per
// parameter and a package-level Table, mirroring
// original_source/econfmanager/src/codegen.rs's generated parameter
// enumeration. Each emitted descriptor carries only ID, NameID and
// ValueType, and each group only its Name: defaults, validation, flags,
// titles and comments are not emitted, and no per-parameter get/set
// functions are generated. Constant names come from constName; sprig's
// function map is installed, but the template calls none of its functions.
var codegenTemplate = template.Must(template.New("paramtable").Funcs(sprig.TxtFuncMap()).Parse(`// Code generated by paramschemac. DO NOT EDIT.

package {{.Package}}

import "github.com/paramstore/paramstore/internal/paramtable"
import "github.com/paramstore/paramstore/internal/pvalue"

// Parameter ids, in declaration order.
const (
{{- range .Parameters}}
	{{.ConstName}} uint32 = {{.ID}}
{{- end}}
)

// Table is the compiled parameter table for this schema.
var Table = func() *paramtable.Table {
	tbl, err := paramtable.New(groupsData, parametersData)
	if err != nil {
		panic(err)
	}
	return tbl
}()

var groupsData = []paramtable.Group{
{{- range .Groups}}
	{Name: {{printf "%q" .Name}}},
{{- end}}
}

var parametersData = []paramtable.Descriptor{
{{- range .Parameters}}
	{
		ID:        {{.ID}},
		NameID:    {{printf "%q" .NameID}},
		ValueType: pvalue.{{.ValueTypeName}},
	},
{{- end}}
}
`))

type templateParam struct {
	ID            uint32
	NameID        string
	ConstName     string
	ValueTypeName string
}

type templateGroup struct {
	Name string
}

type templateData struct {
	Package    string
	Groups     []templateGroup
	Parameters []templateParam
}

// Generate renders tbl as Go source in package pkgName.
func Generate(pkgName string, tbl *paramtable.Table) ([]byte, error) {
	data := templateData{Package: pkgName}
	for _, g := range tbl.Groups {
		data.Groups = append(data.Groups, templateGroup{Name: g.Name})
	}
	for _, d := range tbl.Parameters {
		data.Parameters = append(data.Parameters, templateParam{
			ID:            d.ID,
			NameID:        d.NameID,
			ConstName:     constName(d.NameID),
			ValueTypeName: valueTypeConstName(d.ValueType),
		})
	}

	var buf bytes.Buffer
	if err := codegenTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("schema: codegen: %w", err)
	}

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("schema: codegen: generated source did not parse: %w", err)
	}
	return formatted, nil
}

// constName turns "group@field" into "GroupField", an exported Go
// identifier suitable for a parameter id constant.
func constName(nameID string) string {
	parts := strings.FieldsFunc(nameID, func(r rune) bool {
		return r == '@' || r == '_' || r == '-'
	})
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

func valueTypeConstName(k pvalue.Kind) string {
	switch k {
	case pvalue.KindBool:
		return "KindBool"
	case pvalue.KindI32:
		return "KindI32"
	case pvalue.KindU32:
		return "KindU32"
	case pvalue.KindI64:
		return "KindI64"
	case pvalue.KindU64:
		return "KindU64"
	case pvalue.KindF32:
		return "KindF32"
	case pvalue.KindF64:
		return "KindF64"
	case pvalue.KindString:
		return "KindString"
	case pvalue.KindBlob:
		return "KindBlob"
	case pvalue.KindEnum:
		return "KindEnum"
	default:
		return "KindNone"
	}
}
