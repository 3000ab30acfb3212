package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/smartfolder/internal/rules"
	"github.com/solatis/smartfolder/internal/types"
)

type evaluateFolderRequest struct {
	FolderID types.FolderID `json:"folderId"`
	Query    types.Query    `json:"query"`
}

type evaluateDocumentRequest struct {
	FolderID   types.FolderID   `json:"folderId"`
	DocumentID types.DocumentID `json:"documentId"`
	Fields     map[string]any   `json:"fields"`
}

type validateFolderRequest struct {
	Folder types.SmartFolder `json:"folder"`
}

type folderRequest struct {
	FolderID types.FolderID `json:"folderId"`
}

// Handler exposes a FolderService over gRPC.
type Handler struct {
	service *FolderService
}

var _ FolderServiceServer = (*Handler)(nil)

// NewHandler creates the gRPC handler for service.
func NewHandler(service *FolderService) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	return &Handler{service: service}, nil
}

// EvaluateFolder evaluates a stored folder over every stored document.
func (h *Handler) EvaluateFolder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in evaluateFolderRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}
	id, err := folderID(in.FolderID)
	if err != nil {
		return nil, err
	}

	result, err := h.service.EvaluateFolder(ctx, id, in.Query)
	if err != nil {
		return nil, statusError(err)
	}
	return encodeResponse(result)
}

// EvaluateDocument evaluates inline document metadata against a stored folder.
func (h *Handler) EvaluateDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in evaluateDocumentRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}
	id, err := folderID(in.FolderID)
	if err != nil {
		return nil, err
	}
	if in.DocumentID == "" {
		return nil, status.Error(codes.InvalidArgument, "documentId is required")
	}

	ev, err := h.service.EvaluateDocument(ctx, id, rules.NewMapDocument(in.DocumentID, in.Fields))
	if err != nil {
		return nil, statusError(err)
	}
	return encodeResponse(ev)
}

// ValidateFolder reports issues in a folder definition without saving it.
// An invalid rule set is a successful call with valid=false.
func (h *Handler) ValidateFolder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in validateFolderRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}
	return encodeResponse(h.service.ValidateFolder(in.Folder))
}

// GetFolderPerformance returns rolling statistics for a folder.
func (h *Handler) GetFolderPerformance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in folderRequest
	if err := decodeRequest(req, &in); err != nil {
		return nil, err
	}
	id, err := folderID(in.FolderID)
	if err != nil {
		return nil, err
	}

	perf, err := h.service.Performance(ctx, id)
	if err != nil {
		return nil, statusError(err)
	}
	return encodeResponse(perf)
}

// folderID rejects missing and malformed folder ids before any lookup.
func folderID(raw types.FolderID) (types.FolderID, error) {
	if raw == "" {
		return "", status.Error(codes.InvalidArgument, "folderId is required")
	}
	id, err := types.ParseFolderID(string(raw))
	if err != nil {
		return "", status.Error(codes.InvalidArgument, fmt.Sprintf("malformed folderId %q: %v", raw, err))
	}
	return id, nil
}

// decodeRequest maps a Struct onto v through its JSON form.
func decodeRequest(req *structpb.Struct, v any) error {
	if req == nil {
		return status.Error(codes.InvalidArgument, "empty request")
	}
	raw, err := protojson.Marshal(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("malformed request: %v", err))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("malformed request: %v", err))
	}
	return nil
}

func encodeResponse(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}
