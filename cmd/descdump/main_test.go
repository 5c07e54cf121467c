package main

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaproto/pkg/typedesc"
)

func TestDumpHex(t *testing.T) {
	arr := &typedesc.ArrayType{
		ID:         typedesc.AnyTypeID,
		Element:    typedesc.NewBaseScalar(typedesc.PrimitiveStr),
		Dimensions: []int64{typedesc.UnboundedDimension},
	}
	stream, _, err := typedesc.Encode(arr)
	require.NoError(t, err)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--hex", "0x" + hex.EncodeToString(stream), "--count", "2"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	require.Equal(t, "set id: "+typedesc.SetID(stream).String(), lines[0])
	require.Equal(t, "0: base_scalar std::str", lines[2])
	require.Equal(t, "root 1: array<str>[-1]", lines[4])
}

func TestDumpErrors(t *testing.T) {
	var out bytes.Buffer
	require.ErrorIs(t, dump(&out, []byte{0x09}, -1, -1), typedesc.ErrUnknownDescriptorKind)

	_, err := readStream(nil, nil, "zz")
	require.Error(t, err)

	stream, _, err := typedesc.Encode(typedesc.NewBaseScalar(typedesc.PrimitiveBool))
	require.NoError(t, err)
	require.Error(t, dump(&out, stream, 1, 4))
}
