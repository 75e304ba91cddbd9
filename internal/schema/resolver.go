// Package schema implements the schema compiler (component A):
// a build-time program that reads a schema source file and emits a
// generated Go module containing the parameter table. It uses
// bufbuild/protocompile (a pure-Go protobuf compiler, no protoc binary) plus
// google.golang.org/protobuf's reflective descriptor API, mirroring
// original_source/econfmanager/src/schema.rs's use of prost_reflect's
// DescriptorPool/DynamicMessage. The resolver pattern below — a minimal,
// hand-embedded google/protobuf/descriptor.proto plus our own custom
// FieldOptions extension — is adapted from
// axonops-axonops-schema-registry/internal/schema/protobuf/resolver.go.
package schema

import (
	"strings"

	"github.com/bufbuild/protocompile"
)

// optionsProtoPath is the synthetic import path for the extension
// definitions every schema source must import to attach parameter
// metadata to a field.
const optionsProtoPath = "paramstore/options.proto"

// optionsProto declares the custom FieldOptions extensions a parameter
// descriptor requires: default_value, validation (kind), min, max,
// allowed_values, comment, title, is_const, runtime, readonly, internal.
const optionsProto = `
syntax = "proto2";
package paramstore.schema;

import "google/protobuf/descriptor.proto";

enum Validation {
 VALIDATION_NONE = 0;
 VALIDATION_RANGE = 1;
 VALIDATION_ALLOWED_VALUES = 2;
 VALIDATION_CUSTOM_CALLBACK = 3;
}

message Scalar {
 oneof kind {
 bool bool_value = 1;
 int32 i32_value = 2;
 uint32 u32_value = 3;
 int64 i64_value = 4;
 uint64 u64_value = 5;
 float f32_value = 6;
 double f64_value = 7;
 string string_value = 8;
 bytes blob_value = 9;
 string path_value = 10;
 string enum_name_value = 11;
 }
}

extend google.protobuf.FieldOptions {
 optional string comment = 50001;
 optional string title = 50002;
 optional bool runtime = 50003;
 optional bool is_const = 50004;
 optional bool readonly = 50005;
 optional bool internal = 50006;
 optional Validation validation = 50007;
 optional Scalar default_value = 50008;
 optional Scalar min = 50009;
 optional Scalar max = 50010;
 repeated Scalar allowed_values = 50011;
 repeated string allowed_value_names = 50012;
}
`

// descriptorProto is a minimal self-describing google/protobuf/descriptor.proto,
// sufficient to compile `extend google.protobuf.FieldOptions` clauses
// without the real protoc-bundled copy or a protoc binary.
const descriptorProto = `
syntax = "proto2";
package google.protobuf;

message FileDescriptorSet {
 repeated FileDescriptorProto file = 1;
}

message FileDescriptorProto {
 optional string name = 1;
 optional string package = 2;
 repeated string dependency = 3;
 repeated DescriptorProto message_type = 4;
 repeated EnumDescriptorProto enum_type = 5;
 repeated ServiceDescriptorProto service = 6;
 repeated FieldDescriptorProto extension = 7;
 optional FileOptions options = 8;
 optional string syntax = 12;
}

message DescriptorProto {
 optional string name = 1;
 repeated FieldDescriptorProto field = 2;
 repeated FieldDescriptorProto extension = 6;
 repeated DescriptorProto nested_type = 3;
 repeated EnumDescriptorProto enum_type = 4;
 repeated OneofDescriptorProto oneof_decl = 8;
 optional MessageOptions options = 7;
 message ExtensionRange {
 optional int32 start = 1;
 optional int32 end = 2;
 }
 repeated ExtensionRange extension_range = 5;
}

message FieldDescriptorProto {
 optional string name = 1;
 optional int32 number = 3;
 optional Label label = 4;
 optional Type type = 5;
 optional string type_name = 6;
 optional string extendee = 2;
 optional string default_value = 7;
 optional int32 oneof_index = 9;
 optional string json_name = 10;
 optional FieldOptions options = 8;

 enum Type {
 TYPE_DOUBLE = 1;
 TYPE_FLOAT = 2;
 TYPE_INT64 = 3;
 TYPE_UINT64 = 4;
 TYPE_INT32 = 5;
 TYPE_FIXED64 = 6;
 TYPE_FIXED32 = 7;
 TYPE_BOOL = 8;
 TYPE_STRING = 9;
 TYPE_GROUP = 10;
 TYPE_MESSAGE = 11;
 TYPE_BYTES = 12;
 TYPE_UINT32 = 13;
 TYPE_ENUM = 14;
 TYPE_SFIXED32 = 15;
 TYPE_SFIXED64 = 16;
 TYPE_SINT32 = 17;
 TYPE_SINT64 = 18;
 }

 enum Label {
 LABEL_OPTIONAL = 1;
 LABEL_REQUIRED = 2;
 LABEL_REPEATED = 3;
 }
}

message OneofDescriptorProto {
 optional string name = 1;
}

message EnumDescriptorProto {
 optional string name = 1;
 repeated EnumValueDescriptorProto value = 2;
}

message EnumValueDescriptorProto {
 optional string name = 1;
 optional int32 number = 2;
}

message ServiceDescriptorProto {
 optional string name = 1;
 repeated MethodDescriptorProto method = 2;
}

message MethodDescriptorProto {
 optional string name = 1;
 optional string input_type = 2;
 optional string output_type = 3;
}

message FileOptions {
 extensions 1000 to max;
}

message MessageOptions {
 extensions 1000 to max;
}

message FieldOptions {
 optional bool packed = 2;
 extensions 1000 to max;
}
`

// sourceResolver implements protocompile.Resolver, supplying the schema
// source text plus the synthetic options.proto/descriptor.proto files.
type sourceResolver struct {
	schemaPath string
	schemaSrc string
}

func newSourceResolver(schemaPath, schemaSrc string) *sourceResolver {
	return &sourceResolver{schemaPath: schemaPath, schemaSrc: schemaSrc}
}

func (r *sourceResolver) FindFileByPath(path string) (protocompile.SearchResult, error) {
	switch path {
	case r.schemaPath:
		return protocompile.SearchResult{Source: strings.NewReader(r.schemaSrc)}, nil
	case optionsProtoPath:
		return protocompile.SearchResult{Source: strings.NewReader(optionsProto)}, nil
	case "google/protobuf/descriptor.proto":
		return protocompile.SearchResult{Source: strings.NewReader(descriptorProto)}, nil
	default:
		return protocompile.SearchResult{}, &fileNotFoundError{path: path}
	}
}

type fileNotFoundError struct{ path string }

func (e *fileNotFoundError) Error() string { return "schema: file not found: " + e.path }

var _ protocompile.Resolver = (*sourceResolver)(nil)
