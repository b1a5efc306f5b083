package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lessonSource = `import React, { useState } from "react";

type Props = { title: string };

export default function Lesson({ title }: Props) {
  const [count, setCount] = useState<number>(0);
  return (
    <>
      <h1>{title}</h1>
      <button onClick={() => setCount(count + 1)}>Clicked {count}</button>
    </>
  );
}
`

func TestCompileLowersJSXAndStripsTypes(t *testing.T) {
	art, err := Compile(lessonSource)
	require.NoError(t, err)

	assert.Contains(t, art.Script, ".createElement(")
	assert.Contains(t, art.Script, ".Fragment")
	assert.Contains(t, art.Script, `require("react")`)
	assert.NotContains(t, art.Script, "type Props")
	assert.NotContains(t, art.Script, "<h1>")
	assert.NotContains(t, art.Script, "useState<number>")
}

func TestCompileIsDeterministic(t *testing.T) {
	a, err := Compile(lessonSource)
	require.NoError(t, err)
	b, err := Compile(lessonSource)
	require.NoError(t, err)
	assert.Equal(t, a.Script, b.Script)
}

func TestCompileFailureIsCompileError(t *testing.T) {
	_, err := Compile("export default function () { return <div> }")
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	require.NotEmpty(t, ce.Messages)
	assert.True(t, strings.HasPrefix(err.Error(), "compile failed"))
}

func TestCompileRejectsEmptySource(t *testing.T) {
	_, err := Compile("   ")
	require.Error(t, err)
}
