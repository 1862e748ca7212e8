package types

import "github.com/google/uuid"

// projectNamespace scopes descriptor ids derived from project names
var projectNamespace = uuid.MustParse("6f0c3c2e-5b7a-4d8e-9a43-2f1d0e6b7c55")

// ProjectDescriptor identifies a project. Two images belong to the same project
// iff their descriptors are equal field by field
type ProjectDescriptor struct {
	ID   string `json:"project_id"`
	Name string `json:"project_name"`
}

// NewProjectDescriptor builds a descriptor with an explicit id
func NewProjectDescriptor(id, name string) ProjectDescriptor {
	return ProjectDescriptor{ID: id, Name: name}
}

// DescriptorFor derives a stable descriptor from a project name, so the same
// directory gets the same id across restarts
func DescriptorFor(name string) ProjectDescriptor {
	return ProjectDescriptor{
		ID:   uuid.NewSHA1(projectNamespace, []byte(name)).String(),
		Name: name,
	}
}

// Describe returns the display name
func (d ProjectDescriptor) Describe() string {
	return d.Name
}

// Equal reports structural equality
func (d ProjectDescriptor) Equal(other ProjectDescriptor) bool {
	return d == other
}

// SameProject reports whether two descriptors denote the same project
func SameProject(a, b ProjectDescriptor) bool {
	return a.Equal(b)
}
