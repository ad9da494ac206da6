package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
)

var errEmptyBody = errors.New("empty body")

// ── Callback body ────────────────────────────────────────────────────────────

// decodeCallback turns a vendor callback into a flat field map.  The vendor
// posts form bodies; JSON and protobuf Struct bodies are accepted for relays
// and tests.
func decodeCallback(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	if isProtobuf(r) {
		var s structpb.Struct
		if err := readProto(r, &s); err != nil {
			return nil, fmt.Errorf("protobuf body: %w", err)
		}
		return s.AsMap(), nil
	}

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/json":
		return decodeJSONFields(io.LimitReader(r.Body, maxRequestBody))
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := r.ParseMultipartForm(maxRequestBody); err != nil {
			return nil, fmt.Errorf("multipart body: %w", err)
		}
	default:
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("form body: %w", err)
		}
	}

	if len(r.PostForm) == 0 {
		return nil, errEmptyBody
	}
	fields := make(map[string]any, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields, nil
}

func decodeJSONFields(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyBody
		}
		return nil, fmt.Errorf("json body: %w", err)
	}
	if fields == nil {
		return nil, errEmptyBody
	}
	return fields, nil
}

// ── Callback response ────────────────────────────────────────────────────────

type callbackResponse struct {
	Success  bool               `json:"success"`
	Accepted bool               `json:"accepted"`
	Status   types.HandleStatus `json:"status"`
}

func callbackResponseFrom(res types.HandleResult) callbackResponse {
	return callbackResponse{Success: true, Accepted: res.Accepted, Status: res.Status}
}

func callbackResponseToProto(r callbackResponse) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"success":  structpb.NewBoolValue(r.Success),
		"accepted": structpb.NewBoolValue(r.Accepted),
		"status":   structpb.NewStringValue(string(r.Status)),
	}}
}
