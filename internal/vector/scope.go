package vector

import (
	"fmt"
	"strings"
)

// Scope identifies the records one pipeline call operates on. Only non-empty
// fields take part in filtering.
type Scope struct {
	RepoTag     string
	CommitHash  string
	FilePath    string
	FileHash    string
	ContentHash string
}

// Filter maps the scope to exact-match metadata conditions.
func (s Scope) Filter() Filter {
	f := Filter{}
	set := func(k, v string) {
		if v != "" {
			f[k] = v
		}
	}
	set(KeyRepoTag, s.RepoTag)
	set(KeyCommitHash, s.CommitHash)
	set(KeyFilePath, s.FilePath)
	set(KeyFileHash, s.FileHash)
	set(KeyContentHash, s.ContentHash)
	return f
}

// ScopeField names a scope field for validation.
type ScopeField string

const (
	FieldRepoTag    ScopeField = "repoTag"
	FieldCommitHash ScopeField = "commitHash"
	FieldFilePath   ScopeField = "filePath"
)

// MissingFieldsError lists required scope fields that were empty.
type MissingFieldsError struct {
	Fields []ScopeField
}

func (e *MissingFieldsError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("missing required field(s): %s", strings.Join(names, ", "))
}

// Validate checks that the given fields are non-empty.
func (s Scope) Validate(required ...ScopeField) error {
	var missing []ScopeField
	for _, f := range required {
		var v string
		switch f {
		case FieldRepoTag:
			v = s.RepoTag
		case FieldCommitHash:
			v = s.CommitHash
		case FieldFilePath:
			v = s.FilePath
		}
		if strings.TrimSpace(v) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}
