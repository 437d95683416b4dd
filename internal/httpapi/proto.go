package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"google.golang.org/protobuf/proto"
)

// maxRequestBody caps request bodies in either encoding. A SYNC_UIDS
// command carrying two full partitions of 20-char UIDs stays well under
// 16 KiB.
const maxRequestBody = 16 << 10

var errBodyTooLarge = errors.New("request body too large")

// protobufTypes are the Content-Types treated as a protobuf-encoded
// google.protobuf.Struct.
var protobufTypes = map[string]bool{
	"application/x-protobuf":   true,
	"application/protobuf":     true,
	"application/octet-stream": true,
}

func isProtobuf(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && protobufTypes[mt]
}

// readProto unmarshals the body into msg, refusing bodies over the cap.
func readProto(r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return err
	}
	if len(body) > maxRequestBody {
		return errBodyTooLarge
	}
	return proto.Unmarshal(body, msg)
}

func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
