package schema

import (
	"context"
	"fmt"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/linker"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/paramstore/paramstore/internal/paramtable"
	"github.com/paramstore/paramstore/internal/pvalue"
)

// configurationMessageName is the required top-level message name: one
// top-level Configuration whose fields are groups.
const configurationMessageName = "Configuration"

// Result is the schema compiler's build-time output: the table plus any
// non-fatal warnings (an allowed_values option set alongside Range, etc.).
type Result struct {
	Table    *paramtable.Table
	Warnings []string
}

// Compile parses schemaSrc (a .proto-shaped schema source, importing
// "paramstore/options.proto" for the metadata extensions) and produces the
// dense parameter table, applying the fatal validation rules below.
func Compile(ctx context.Context, schemaPath, schemaSrc string) (*Result, error) {
	resolver := newSourceResolver(schemaPath, schemaSrc)
	compiler := protocompile.Compiler{
		Resolver:       resolver,
		SourceInfoMode: protocompile.SourceInfoStandard,
	}

	files, err := compiler.Compile(ctx, schemaPath)
	if err != nil {
		return nil, fmt.Errorf("schema: compile failed: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("schema: compiler returned no files")
	}
	file := files[0]

	optionsFile, err := findImport(file, optionsProtoPath)
	if err != nil {
		return nil, err
	}
	ext, err := newExtensionSet(optionsFile)
	if err != nil {
		return nil, err
	}

	configMsg := file.Messages().ByName(configurationMessageName)
	if configMsg == nil {
		return nil, fmt.Errorf("schema: schema source must declare a top-level message %q", configurationMessageName)
	}

	c := &compilation{ext: ext}
	if err := c.walkConfiguration(configMsg); err != nil {
		return nil, err
	}

	tbl, err := paramtable.New(c.groups, c.params)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return &Result{Table: tbl, Warnings: c.warnings}, nil
}

func findImport(file linker.File, path string) (protoreflect.FileDescriptor, error) {
	if file.Path() == path {
		return file, nil
	}
	imports := file.Imports()
	for i := 0; i < imports.Len(); i++ {
		if imports.Get(i).Path() == path {
			return imports.Get(i).FileDescriptor, nil
		}
	}
	return nil, fmt.Errorf("schema: missing import %q", path)
}

// compilation accumulates the walk's output: dense parameter ids in
// declaration order, the group table, and non-fatal warnings.
type compilation struct {
	ext      *extensionSet
	groups   []paramtable.Group
	params   []paramtable.Descriptor
	warnings []string
}

// walkConfiguration walks the two required nesting levels: Configuration's
// fields are groups, each group message's fields are parameters (the
// configuration must have exactly two nesting levels).
func (c *compilation) walkConfiguration(configMsg protoreflect.MessageDescriptor) error {
	fields := configMsg.Fields()
	names := make(map[string]bool, fields.Len())

	for i := 0; i < fields.Len(); i++ {
		groupField := fields.Get(i)
		if groupField.Kind() != protoreflect.MessageKind {
			return fmt.Errorf("schema: Configuration field %q must be a group message", groupField.Name())
		}
		groupName := string(groupField.Name())
		if names[groupName] {
			return fmt.Errorf("schema: duplicate group name %q", groupName)
		}
		names[groupName] = true

		groupMsg := groupField.Message()
		c.groups = append(c.groups, paramtable.Group{Name: groupName})

		if err := c.walkGroup(groupName, groupMsg); err != nil {
			return err
		}
	}
	return nil
}

func (c *compilation) walkGroup(groupName string, groupMsg protoreflect.MessageDescriptor) error {
	fields := groupMsg.Fields()
	seen := make(map[string]bool, fields.Len())

	for i := 0; i < fields.Len(); i++ {
		field := fields.Get(i)
		if field.Message() != nil && field.Kind() == protoreflect.MessageKind {
			return fmt.Errorf("schema: parameter %s@%s must not itself be a group (exactly two nesting levels required)", groupName, field.Name())
		}

		fieldName := string(field.Name())
		if seen[fieldName] {
			return fmt.Errorf("schema: duplicate parameter name %s@%s", groupName, fieldName)
		}
		seen[fieldName] = true

		desc, err := c.buildDescriptor(groupName, field)
		if err != nil {
			return err
		}
		desc.ID = uint32(len(c.params))
		c.params = append(c.params, *desc)
	}
	return nil
}

func (c *compilation) buildDescriptor(groupName string, field protoreflect.FieldDescriptor) (*paramtable.Descriptor, error) {
	nameID := fmt.Sprintf("%s@%s", groupName, field.Name())
	valueType, enumName, err := kindOf(field)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", nameID, err)
	}

	opts, ok := field.Options().(*descriptorpb.FieldOptions)
	if !ok {
		return nil, fmt.Errorf("schema: %s: unexpected options type", nameID)
	}

	d := &paramtable.Descriptor{
		NameID:    nameID,
		ValueType: valueType,
		EnumName:  enumName,
	}

	if v, ok := c.ext.getString(opts, "comment"); ok {
		d.Comment = v
	}
	if v, ok := c.ext.getString(opts, "title"); ok {
		d.Title = v
	}
	if v, ok := c.ext.getBool(opts, "runtime"); ok {
		d.Runtime = v
	}
	if v, ok := c.ext.getBool(opts, "is_const"); ok {
		d.IsConst = v
	}
	if v, ok := c.ext.getBool(opts, "readonly"); ok {
		d.Readonly = v
	}
	if v, ok := c.ext.getBool(opts, "internal"); ok {
		d.Internal = v
	}

	validationKind, hasValidation := c.ext.getEnum(opts, "validation")
	defaultVal, hasDefault := c.ext.getScalar(opts, "default_value", valueType, enumName)
	minVal, hasMin := c.ext.getScalar(opts, "min", valueType, enumName)
	maxVal, hasMax := c.ext.getScalar(opts, "max", valueType, enumName)
	allowed, allowedNames, hasAllowed := c.ext.getScalarList(opts, "allowed_values", "allowed_value_names", valueType, enumName)

	if valueType == pvalue.KindEnum {
		// Enums force AllowedValues validation with values = enumerators,
		// names = enumerator names.
		values, enumNames, err := enumeratorsOf(field)
		if err != nil {
			return nil, fmt.Errorf("schema: %s: %w", nameID, err)
		}
		d.Validation = paramtable.Validation{Kind: paramtable.ValidationAllowedValues, Values: values, Names: enumNames}
	} else {
		switch {
		case hasValidation && validationKind == "VALIDATION_RANGE":
			if !hasMin || !hasMax {
				return nil, fmt.Errorf("schema: %s: Range validation requires both min and max", nameID)
			}
			if minVal.Kind != valueType || maxVal.Kind != valueType {
				return nil, fmt.Errorf("schema: %s: min/max must match value_type", nameID)
			}
			lt, err := pvalue.Less(maxVal, minVal)
			if err != nil {
				return nil, fmt.Errorf("schema: %s: %w", nameID, err)
			}
			if lt {
				return nil, fmt.Errorf("schema: %s: min must be <= max", nameID)
			}
			d.Validation = paramtable.Validation{Kind: paramtable.ValidationRange, Min: minVal, Max: maxVal}
			if hasAllowed {
				c.warn(nameID, "allowed_values set alongside Range validation; ignored")
			}
		case hasValidation && validationKind == "VALIDATION_ALLOWED_VALUES":
			if !hasAllowed {
				return nil, fmt.Errorf("schema: %s: AllowedValues validation requires allowed_values", nameID)
			}
			for _, v := range allowed {
				if v.Kind != valueType {
					return nil, fmt.Errorf("schema: %s: allowed_values entry does not match value_type", nameID)
				}
			}
			d.Validation = paramtable.Validation{Kind: paramtable.ValidationAllowedValues, Values: allowed, Names: allowedNames}
			if hasMin || hasMax {
				c.warn(nameID, "min/max set alongside AllowedValues validation; ignored")
			}
		case hasValidation && validationKind == "VALIDATION_CUSTOM_CALLBACK":
			d.Validation = paramtable.Validation{Kind: paramtable.ValidationCustomCallback}
		default:
			d.Validation = paramtable.Validation{Kind: paramtable.ValidationNone}
		}
	}

	switch {
	case valueType == pvalue.KindEnum:
		name, ok := c.ext.getEnumDefaultName(opts, "default_value")
		if !ok {
			d.Default = zeroValue(valueType, enumName)
			break
		}
		number, err := enumeratorNumber(field, name)
		if err != nil {
			return nil, fmt.Errorf("schema: %s: default_value: %w", nameID, err)
		}
		d.Default = pvalue.Enum(enumName, number)
	case hasDefault && defaultVal.Kind == pvalue.KindString && valueType == pvalue.KindBlob:
		d.DefaultPath = defaultVal.Str
	case hasDefault:
		if defaultVal.Kind != valueType {
			return nil, fmt.Errorf("schema: %s: default_value does not match value_type", nameID)
		}
		d.Default = defaultVal
	default:
		d.Default = zeroValue(valueType, enumName)
	}

	return d, nil
}

func (c *compilation) warn(nameID, msg string) {
	c.warnings = append(c.warnings, fmt.Sprintf("%s: %s", nameID, msg))
}

func kindOf(field protoreflect.FieldDescriptor) (pvalue.Kind, string, error) {
	switch field.Kind() {
	case protoreflect.BoolKind:
		return pvalue.KindBool, "", nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return pvalue.KindI32, "", nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return pvalue.KindU32, "", nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return pvalue.KindI64, "", nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return pvalue.KindU64, "", nil
	case protoreflect.FloatKind:
		return pvalue.KindF32, "", nil
	case protoreflect.DoubleKind:
		return pvalue.KindF64, "", nil
	case protoreflect.StringKind:
		return pvalue.KindString, "", nil
	case protoreflect.BytesKind:
		return pvalue.KindBlob, "", nil
	case protoreflect.EnumKind:
		return pvalue.KindEnum, string(field.Enum().Name()), nil
	default:
		return 0, "", fmt.Errorf("unsupported field kind %s for parameter %s", field.Kind(), field.Name())
	}
}

// enumeratorNumber resolves a named enum value attached to field.default_value's
// enum_name_value oneof arm to its wire number.
func enumeratorNumber(field protoreflect.FieldDescriptor, name string) (int32, error) {
	evd := field.Enum().Values().ByName(protoreflect.Name(name))
	if evd == nil {
		return 0, fmt.Errorf("unknown enumerator %q", name)
	}
	return int32(evd.Number()), nil
}

func enumeratorsOf(field protoreflect.FieldDescriptor) ([]pvalue.Value, []string, error) {
	enumDesc := field.Enum()
	values := enumDesc.Values()
	out := make([]pvalue.Value, 0, values.Len())
	names := make([]string, 0, values.Len())
	for i := 0; i < values.Len(); i++ {
		ev := values.Get(i)
		out = append(out, pvalue.Enum(string(enumDesc.Name()), int32(ev.Number())))
		names = append(names, string(ev.Name()))
	}
	return out, names, nil
}

func zeroValue(kind pvalue.Kind, enumName string) pvalue.Value {
	switch kind {
	case pvalue.KindBool:
		return pvalue.Bool(false)
	case pvalue.KindI32:
		return pvalue.I32(0)
	case pvalue.KindU32:
		return pvalue.U32(0)
	case pvalue.KindI64:
		return pvalue.I64(0)
	case pvalue.KindU64:
		return pvalue.U64(0)
	case pvalue.KindF32:
		return pvalue.F32(0)
	case pvalue.KindF64:
		return pvalue.F64(0)
	case pvalue.KindString:
		return pvalue.String("")
	case pvalue.KindBlob:
		return pvalue.Blob(nil)
	case pvalue.KindEnum:
		return pvalue.Enum(enumName, 0)
	default:
		return pvalue.None
	}
}

// extensionSet resolves the paramstore.schema.* custom FieldOptions
// extensions by simple name, building a dynamicpb.ExtensionType from each
// extension descriptor found in the compiled options.proto file.
type extensionSet struct {
	byName map[string]protoreflect.ExtensionDescriptor
}

func newExtensionSet(optionsFile protoreflect.FileDescriptor) (*extensionSet, error) {
	exts := optionsFile.Extensions()
	byName := make(map[string]protoreflect.ExtensionDescriptor, exts.Len())
	for i := 0; i < exts.Len(); i++ {
		e := exts.Get(i)
		byName[string(e.Name())] = e
	}
	if len(byName) == 0 {
		return nil, fmt.Errorf("schema: options file declares no extensions")
	}
	return &extensionSet{byName: byName}, nil
}

func (s *extensionSet) get(opts *descriptorpb.FieldOptions, name string) (protoreflect.Value, bool) {
	desc, ok := s.byName[name]
	if !ok {
		return protoreflect.Value{}, false
	}
	extType := dynamicpb.NewExtensionType(desc)
	if !proto.HasExtension(opts, extType) {
		return protoreflect.Value{}, false
	}
	return protoreflect.ValueOf(proto.GetExtension(opts, extType)), true
}

func (s *extensionSet) getString(opts *descriptorpb.FieldOptions, name string) (string, bool) {
	v, ok := s.get(opts, name)
	if !ok {
		return "", false
	}
	return v.String(), true
}

func (s *extensionSet) getBool(opts *descriptorpb.FieldOptions, name string) (bool, bool) {
	v, ok := s.get(opts, name)
	if !ok {
		return false, false
	}
	return v.Bool(), true
}

func (s *extensionSet) getEnum(opts *descriptorpb.FieldOptions, name string) (string, bool) {
	v, ok := s.get(opts, name)
	if !ok {
		return "", false
	}
	enumVal := v.Enum()
	desc := s.byName[name].Enum()
	if desc == nil {
		return "", false
	}
	evd := desc.Values().ByNumber(enumVal)
	if evd == nil {
		return "", false
	}
	return string(evd.Name()), true
}

// getEnumDefaultName reads the enum_name_value oneof arm of a Scalar
// extension field directly, bypassing scalarMessageToValue's wantKind
// matching (an enum default names an enumerator, not a pvalue.Kind).
func (s *extensionSet) getEnumDefaultName(opts *descriptorpb.FieldOptions, name string) (string, bool) {
	v, ok := s.get(opts, name)
	if !ok {
		return "", false
	}
	msg := v.Message()
	fields := msg.Descriptor().Fields()
	fd := fields.ByName("enum_name_value")
	if fd == nil || !msg.Has(fd) {
		return "", false
	}
	return msg.Get(fd).String(), true
}

func (s *extensionSet) getScalar(opts *descriptorpb.FieldOptions, name string, wantKind pvalue.Kind, enumName string) (pvalue.Value, bool) {
	v, ok := s.get(opts, name)
	if !ok {
		return pvalue.None, false
	}
	// A value of another kind is still returned, so the caller's
	// value_type checks reject it instead of treating it as absent.
	val, _ := scalarMessageToValue(v.Message(), wantKind, enumName)
	return val, val.Kind != pvalue.KindNone
}

func (s *extensionSet) getScalarList(opts *descriptorpb.FieldOptions, listName, namesFieldName string, wantKind pvalue.Kind, enumName string) ([]pvalue.Value, []string, bool) {
	v, ok := s.get(opts, listName)
	if !ok {
		return nil, nil, false
	}
	list := v.List()
	out := make([]pvalue.Value, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		item, _ := scalarMessageToValue(list.Get(i).Message(), wantKind, enumName)
		if item.Kind != pvalue.KindNone {
			out = append(out, item)
		}
	}

	var names []string
	if nv, ok := s.get(opts, namesFieldName); ok {
		nl := nv.List()
		for i := 0; i < nl.Len(); i++ {
			names = append(names, nl.Get(i).String())
		}
	}
	return out, names, true
}

// scalarMessageToValue converts the paramstore.schema.Scalar oneof message
// into a pvalue.Value of whichever arm is set, reporting whether that arm
// matches wantKind (a path_value arm always reports true).
func scalarMessageToValue(msg protoreflect.Message, wantKind pvalue.Kind, enumName string) (pvalue.Value, bool) {
	fields := msg.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if !msg.Has(fd) {
			continue
		}
		val := msg.Get(fd)
		switch fd.Name() {
		case "bool_value":
			return pvalue.Bool(val.Bool()), wantKind == pvalue.KindBool
		case "i32_value":
			return pvalue.I32(int32(val.Int())), wantKind == pvalue.KindI32
		case "u32_value":
			return pvalue.U32(uint32(val.Uint())), wantKind == pvalue.KindU32
		case "i64_value":
			return pvalue.I64(val.Int()), wantKind == pvalue.KindI64
		case "u64_value":
			return pvalue.U64(val.Uint()), wantKind == pvalue.KindU64
		case "f32_value":
			return pvalue.F32(float32(val.Float())), wantKind == pvalue.KindF32
		case "f64_value":
			return pvalue.F64(val.Float()), wantKind == pvalue.KindF64
		case "string_value":
			return pvalue.String(val.String()), wantKind == pvalue.KindString
		case "blob_value":
			return pvalue.Blob(val.Bytes()), wantKind == pvalue.KindBlob
		case "path_value":
			// special-cased by the caller for Blob defaults-from-path
			return pvalue.String(val.String()), true
		case "enum_name_value":
			return pvalue.Enum(enumName, 0), wantKind == pvalue.KindEnum
		}
	}
	return pvalue.None, false
}
