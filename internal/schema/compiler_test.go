package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paramstore/paramstore/internal/pvalue"
)

const sampleSchema = `
syntax = "proto2";
package sample;

import "paramstore/options.proto";

message Configuration {
  optional Device device = 1;
  optional Build build = 2;
}

message Device {
  optional int32 max_rate = 1 [
    (paramstore.schema.title) = "Max sample rate",
    (paramstore.schema.comment) = "Upper bound on samples per second.",
    (paramstore.schema.validation) = VALIDATION_RANGE,
    (paramstore.schema.min) = { i32_value: 0 },
    (paramstore.schema.max) = { i32_value: 100 },
    (paramstore.schema.default_value) = { i32_value: 10 }
  ];
}

message Build {
  optional string firmware_version = 1 [
    (paramstore.schema.is_const) = true,
    (paramstore.schema.default_value) = { string_value: "1.2.3" }
  ];
}
`

func TestCompileBuildsDenseTable(t *testing.T) {
	result, err := Compile(context.Background(), "sample.proto", sampleSchema)
	require.NoError(t, err)
	require.NotNil(t, result.Table)
	assert.Equal(t, 2, result.Table.Len())

	id, ok := result.Table.Lookup("device@max_rate")
	require.True(t, ok)
	d := result.Table.Descriptor(id)
	assert.Equal(t, pvalue.KindI32, d.ValueType)
	assert.True(t, d.Default.Equal(pvalue.I32(10)))
	assert.Equal(t, "Max sample rate", d.Title)
	require.NoError(t, d.ValidateValue(pvalue.I32(50)))
	assert.Error(t, d.ValidateValue(pvalue.I32(150)))

	id2, ok := result.Table.Lookup("build@firmware_version")
	require.True(t, ok)
	d2 := result.Table.Descriptor(id2)
	assert.True(t, d2.IsConst)
	assert.True(t, d2.Default.Equal(pvalue.String("1.2.3")))
}

const duplicateGroupSchema = `
syntax = "proto2";
package sample;

import "paramstore/options.proto";

message Configuration {
  optional Device device = 1;
}

message Device {
  optional int32 a = 1;
  optional int32 a = 2;
}
`

func TestCompileRejectsDuplicateParameterNames(t *testing.T) {
	_, err := Compile(context.Background(), "dup.proto", duplicateGroupSchema)
	assert.Error(t, err)
}

const badRangeSchema = `
syntax = "proto2";
package sample;

import "paramstore/options.proto";

message Configuration {
  optional Device device = 1;
}

message Device {
  optional int32 a = 1 [
    (paramstore.schema.validation) = VALIDATION_RANGE,
    (paramstore.schema.min) = { i32_value: 100 },
    (paramstore.schema.max) = { i32_value: 0 }
  ];
}
`

func TestCompileRejectsInvertedRange(t *testing.T) {
	_, err := Compile(context.Background(), "bad.proto", badRangeSchema)
	assert.Error(t, err)
}
