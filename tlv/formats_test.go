package tlv

import (
	"encoding/json"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleTree() Node {
	return Sequence(
		Primitive(TagInteger, []byte{0x05}),
		NewBitString([]byte{0xf0}, 4),
		Primitive(Tag(0x80), []byte{0x01}),
		Sequence(),
		Primitive(TagNull, nil),
	)
}

func TestNode_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(sampleTree())
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag":"Sequence","value":[
		{"tag":"Integer","value":"05"},
		{"tag":"BitString","value":"f0","unusedBits":4},
		{"tag":"0x80","value":"01"},
		{"tag":"Sequence","value":[]},
		{"tag":"Null","value":""}
	]}`, string(b))

	var n Node
	require.NoError(t, json.Unmarshal(b, &n))
	assert.True(t, sampleTree().Equal(n))
}

func TestNode_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		exp  Node
	}{
		{
			name: "raw tag values",
			in:   `{"tag":"0x30","value":[{"tag":"0x02","value":"0x05"}]}`,
			exp:  Sequence(Primitive(TagInteger, []byte{0x05})),
		},
		{
			name: "bit string without unused bits",
			in:   `{"tag":"BitString","value":"ff"}`,
			exp:  NewBitString([]byte{0xff}, 0),
		},
		{
			name: "full names",
			in:   `{"tag":"OCTET STRING","value":"abcd"}`,
			exp:  Primitive(TagOctetString, []byte{0xab, 0xcd}),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var n Node
			require.NoError(t, json.Unmarshal([]byte(test.in), &n))
			assert.Equal(t, test.exp, n)
		})
	}

	for _, in := range []string{
		`{"tag":"Bogus","value":"00"}`,
		`{"tag":"Integer","value":"0g"}`,
		`{"tag":"Integer","value":[]}`,
		`{"tag":"Sequence","value":"00"}`,
	} {
		var n Node
		assert.Error(t, json.Unmarshal([]byte(in), &n), "input %s", in)
	}

	_, err := json.Marshal(Node{Tag: TagInteger})
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

func TestNode_MarshalXML(t *testing.T) {
	b, err := xml.Marshal(sampleTree())
	require.NoError(t, err)
	assert.Equal(t, `<Sequence>`+
		`<Integer value="05"></Integer>`+
		`<BitString value="f0" unusedBits="4"></BitString>`+
		`<TLV tag="0x80" value="01"></TLV>`+
		`<Sequence></Sequence>`+
		`<Null value=""></Null>`+
		`</Sequence>`, string(b))

	var n Node
	require.NoError(t, xml.Unmarshal(b, &n))
	assert.True(t, sampleTree().Equal(n))
}

func TestNode_UnmarshalXML(t *testing.T) {
	in := `
<Sequence>
  <Integer value="0x05"/>
  <TLV tag="0x30">
    <OctetString value="abcd"/>
  </TLV>
  <BitString value="ff" unusedBits="0x01"/>
</Sequence>`

	var n Node
	require.NoError(t, xml.Unmarshal([]byte(in), &n))
	assert.Equal(t, Sequence(
		Primitive(TagInteger, []byte{0x05}),
		Sequence(Primitive(TagOctetString, []byte{0xab, 0xcd})),
		NewBitString([]byte{0xff}, 1),
	), n)

	for _, in := range []string{
		`<Bogus value="00"/>`,
		`<Integer value="zz"/>`,
		`<BitString value="00" unusedBits="300"/>`,
		`<Sequence><Bogus/></Sequence>`,
	} {
		var n Node
		assert.Error(t, xml.Unmarshal([]byte(in), &n), "input %s", in)
	}
}

func TestNode_MarshalCBOR(t *testing.T) {
	tests := []struct {
		name string
		in   Node
		exp  string
	}{
		{"primitive", Primitive(TagInteger, []byte{0x05}), "82 02 41 05"},
		{"empty primitive", Primitive(TagNull, nil), "82 05 40"},
		{"bit string", NewBitString([]byte{0xf0}, 4), "83 03 41 f0 04"},
		{"empty sequence", Sequence(), "82 18 30 80"},
		{"sequence", Sequence(Primitive(TagInteger, []byte{0x05})), "82 18 30 81 | 82 02 41 05"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b, err := encMode.Marshal(test.in)
			require.NoError(t, err)
			assert.Equal(t, Hex2bytes(test.exp), b)

			var n Node
			require.NoError(t, decMode.Unmarshal(b, &n))
			assert.Equal(t, test.in, n)
		})
	}
}

func TestNode_UnmarshalCBOR_errors(t *testing.T) {
	for _, in := range []string{
		"80",
		"81 02",
		"84 02 41 05 00 00",
		"82 61 61 41 05",
		"82 02 02",
		"82 18 30 41 05",
	} {
		var n Node
		assert.Error(t, decMode.Unmarshal(Hex2bytes(in), &n), "input %s", in)
	}
}

func TestNode_roundTripCBOR(t *testing.T) {
	b, err := encMode.Marshal(sampleTree())
	require.NoError(t, err)

	var n Node
	require.NoError(t, decMode.Unmarshal(b, &n))
	assert.True(t, sampleTree().Equal(n))

	// deterministic
	b2, err := encMode.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, b, b2)
}

func TestNode_YAML(t *testing.T) {
	b, err := yaml.Marshal(sampleTree())
	require.NoError(t, err)

	var n Node
	require.NoError(t, yaml.Unmarshal(b, &n))
	assert.True(t, sampleTree().Equal(n))

	in := `
tag: SEQUENCE
value:
  - tag: Integer
    value: "05"
  - tag: BitString
    value: f0
    unusedBits: 4
  - tag: "0x80"
    value: "0x01"
`
	n = Node{}
	require.NoError(t, yaml.Unmarshal([]byte(in), &n))
	assert.Equal(t, Sequence(
		Primitive(TagInteger, []byte{0x05}),
		NewBitString([]byte{0xf0}, 4),
		Primitive(Tag(0x80), []byte{0x01}),
	), n)

	for _, in := range []string{
		"tag: Bogus\nvalue: '00'\n",
		"tag: Integer\nvalue: zz\n",
		"tag: Sequence\nvalue: '00'\n",
		"tag: Integer\nvalue: [a]\n",
	} {
		var n Node
		assert.Error(t, yaml.Unmarshal([]byte(in), &n), "input %s", in)
	}
}
