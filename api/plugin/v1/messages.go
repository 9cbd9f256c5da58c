package pluginv1

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// File mirrors record.File on the wire. Contents travel base64-encoded.
type File struct {
	Path     string
	Base     string
	Contents []byte
	Attrs    map[string]string
}

// EncodeFile builds an Apply request.
func EncodeFile(f File) (*structpb.Struct, error) {
	return structpb.NewStruct(fileMap(f))
}

// EncodeResponse builds an Apply response.
func EncodeResponse(status string, files []File, errMsg string) (*structpb.Struct, error) {
	list := make([]any, 0, len(files))
	for _, f := range files {
		list = append(list, fileMap(f))
	}
	return structpb.NewStruct(map[string]any{
		"status": status,
		"files":  list,
		"error":  errMsg,
	})
}

// DecodeFile reads an Apply request.
func DecodeFile(s *structpb.Struct) (File, error) {
	return fileFromMap(s.AsMap())
}

// DecodeResponse reads an Apply response.
func DecodeResponse(s *structpb.Struct) (status string, files []File, errMsg string, err error) {
	m := s.AsMap()
	status, _ = m["status"].(string)
	errMsg, _ = m["error"].(string)
	raw, _ := m["files"].([]any)
	for i, r := range raw {
		fm, ok := r.(map[string]any)
		if !ok {
			return "", nil, "", fmt.Errorf("files[%d]: want object, got %T", i, r)
		}
		f, err := fileFromMap(fm)
		if err != nil {
			return "", nil, "", fmt.Errorf("files[%d]: %w", i, err)
		}
		files = append(files, f)
	}
	if status == "" {
		status = StatusOK
	}
	return status, files, errMsg, nil
}

func fileMap(f File) map[string]any {
	attrs := make(map[string]any, len(f.Attrs))
	for k, v := range f.Attrs {
		attrs[k] = v
	}
	m := map[string]any{
		"path":  f.Path,
		"base":  f.Base,
		"attrs": attrs,
	}
	if f.Contents != nil {
		m["contents"] = base64.StdEncoding.EncodeToString(f.Contents)
	}
	return m
}

func fileFromMap(m map[string]any) (File, error) {
	var f File
	f.Path, _ = m["path"].(string)
	f.Base, _ = m["base"].(string)
	if f.Path == "" {
		return f, fmt.Errorf("missing path")
	}
	if enc, ok := m["contents"].(string); ok {
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return f, fmt.Errorf("contents: %w", err)
		}
		f.Contents = b
	}
	if attrs, ok := m["attrs"].(map[string]any); ok && len(attrs) > 0 {
		f.Attrs = make(map[string]string, len(attrs))
		for k, v := range attrs {
			f.Attrs[k] = fmt.Sprint(v)
		}
	}
	return f, nil
}
