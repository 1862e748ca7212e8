package api

import (
	"time"

	"vismatch/types"
)

// DiffRequest asks for the ranking of a project against one image
type DiffRequest struct {
	ProjectName string `json:"project_name"`
	Data        string `json:"data"`
	WithImage   bool   `json:"with_image"`
	TopK        int    `json:"top_k,omitempty"`
}

// SimilarImage is one ranked project image
type SimilarImage struct {
	ImageName string  `json:"image_name"`
	Distance  float64 `json:"distance"`
	Score     float64 `json:"score"`
	Data      string  `json:"data,omitempty"`
}

// DiffResponse carries the ranking, closest image first
type DiffResponse struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	ProjectName   string         `json:"project_name"`
	CompareResult []SimilarImage `json:"compare_result"`
}

// UploadRequest adds an image to a project, creating the project when needed.
// ProjectID is optional; when set it must match the project's descriptor
type UploadRequest struct {
	ProjectName string `json:"project_name"`
	ProjectID   string `json:"project_id,omitempty"`
	ImageName   string `json:"image_name"`
	Data        string `json:"data"`
}

// UploadResponse acknowledges an upload with a token and the project descriptor
type UploadResponse struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message"`
	Token   string                   `json:"token"`
	Project *types.ProjectDescriptor `json:"project,omitempty"`
}

// ProjectInfo describes one registered project
type ProjectInfo struct {
	types.ProjectDescriptor
	Images    int       `json:"images"`
	IndexedAt time.Time `json:"indexed_at"`
}

// ProjectsResponse lists the registered projects sorted by name
type ProjectsResponse struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Projects []ProjectInfo `json:"projects"`
}

// StatusResponse is the body of errors and of plain acknowledgements
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
