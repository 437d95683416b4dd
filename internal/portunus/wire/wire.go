// Package wire converts command messages to and from
// google.protobuf.Struct, the schema-less message shared by the protobuf
// HTTP body and the gRPC service. Field names follow the JSON form.
package wire

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

func CommandRequestFromStruct(s *structpb.Struct) (types.CommandRequest, error) {
	var req types.CommandRequest
	if err := FromStruct(s, &req); err != nil {
		return types.CommandRequest{}, err
	}
	return req, nil
}

func CommandResponseToStruct(r types.CommandResponse) (*structpb.Struct, error) {
	return ToStruct(r)
}

func CommandRequestToStruct(r types.CommandRequest) (*structpb.Struct, error) {
	return ToStruct(r)
}

func CommandResponseFromStruct(s *structpb.Struct) (types.CommandResponse, error) {
	var resp types.CommandResponse
	if err := FromStruct(s, &resp); err != nil {
		return types.CommandResponse{}, err
	}
	return resp, nil
}

// ToStruct encodes v through its JSON form.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("wire: to struct: %w", err)
	}
	return s, nil
}

// FromStruct decodes s into v through its JSON form. A nil s leaves v
// untouched.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("wire: from struct: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("wire: unmarshal: %w", err)
	}
	return nil
}
