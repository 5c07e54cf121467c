package novasqlwire

// ProtocolVersion is bumped on incompatible framing changes.
const ProtocolVersion = 1

// Hello opens a connection in both directions and is always JSON. The
// server answers with the codec every later control frame uses.
type Hello struct {
	Version    int    `json:"version" cbor:"version"`
	Codec      string `json:"codec,omitempty" cbor:"codec,omitempty"`
	Generation uint64 `json:"generation,omitempty" cbor:"generation,omitempty"`
}

// ExecuteRequest is a single SQL command request.
type ExecuteRequest struct {
	ID  uint64 `json:"id" cbor:"id"`
	SQL string `json:"sql" cbor:"sql"`
}

// ExecuteResponse is the header for a request ID.
//
// When DescriptorLen > 0 it is followed by one raw frame holding the
// descriptor stream, then RowCount raw frames, one encoded row each. Root is
// the position of the result set type inside the stream.
type ExecuteResponse struct {
	ID    uint64 `json:"id" cbor:"id"`
	Error string `json:"error,omitempty" cbor:"error,omitempty"`

	Columns      []string `json:"columns,omitempty" cbor:"columns,omitempty"`
	AffectedRows int64    `json:"affected_rows" cbor:"affected_rows"`
	Generation   uint64   `json:"generation" cbor:"generation"`

	DescriptorID    string `json:"descriptor_id,omitempty" cbor:"descriptor_id,omitempty"`
	DescriptorCount int    `json:"descriptor_count,omitempty" cbor:"descriptor_count,omitempty"`
	DescriptorLen   int    `json:"descriptor_len,omitempty" cbor:"descriptor_len,omitempty"`
	Root            uint16 `json:"root,omitempty" cbor:"root,omitempty"`
	RowCount        int    `json:"row_count,omitempty" cbor:"row_count,omitempty"`
}
